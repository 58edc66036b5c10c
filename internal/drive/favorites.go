package drive

import (
	"context"
	"sort"

	"github.com/paperdrive/paperdrive/internal/events"
	"github.com/paperdrive/paperdrive/internal/metrics"
)

// IsFavorite reports whether the node is in the user's favorites set.
// A favorited id whose node has been deleted stays in the set until a
// refresh prunes it server-side; callers filter unresolvable ids when
// rendering.
func (s *Session) IsFavorite(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.favorites[nodeID]
	return ok
}

// Favorites returns the favorite node ids in stable order.
func (s *Session) Favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favoriteIDsLocked()
}

// ToggleFavorite flips a node's membership in the favorites set. The
// remote representation is read-modify-write, so toggles are serialized
// per user: a second toggle while one is pending is rejected with
// ErrBusy instead of queued, which would risk losing the first update.
// The local flip happens before the remote call and reverts on failure.
func (s *Session) ToggleFavorite(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	if s.favBusy {
		s.mu.Unlock()
		metrics.RecordBusyRejection("favorite_toggle")
		return ErrBusy
	}
	s.favBusy = true

	_, wasFavorite := s.favorites[nodeID]
	if wasFavorite {
		delete(s.favorites, nodeID)
	} else {
		s.favorites[nodeID] = struct{}{}
	}
	desired := s.favoriteIDsLocked()
	s.mu.Unlock()

	err := s.gw.SetFavorites(ctx, s.userID, desired)

	s.mu.Lock()
	s.favBusy = false
	if err != nil {
		// Revert to the pre-toggle value.
		if wasFavorite {
			s.favorites[nodeID] = struct{}{}
		} else {
			delete(s.favorites, nodeID)
		}
		s.mu.Unlock()
		metrics.RecordRollback("favorite_toggle")
		return err
	}
	s.mu.Unlock()

	s.events.Publish(events.Event{Type: events.EventFavoritesChanged, NodeID: nodeID})
	return nil
}

// favoriteIDsLocked returns the set as a sorted slice. Callers hold
// s.mu. Sorted so the write-back payload is deterministic.
func (s *Session) favoriteIDsLocked() []string {
	ids := make([]string, 0, len(s.favorites))
	for id := range s.favorites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
