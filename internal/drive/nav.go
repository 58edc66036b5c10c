package drive

import (
	"context"

	"go.uber.org/zap"

	"github.com/paperdrive/paperdrive/internal/logging"
	"github.com/paperdrive/paperdrive/internal/metrics"
	"github.com/paperdrive/paperdrive/pkg/models"
)

// EnterFolder pushes a folder onto the breadcrumb stack, makes it
// current, and fetches its contents. Valid from any state.
func (s *Session) EnterFolder(ctx context.Context, id, name string) error {
	s.mu.Lock()
	s.crumbs = append(s.crumbs, Breadcrumb{ID: id, Name: name})
	s.currentID = id
	token := s.nextFetchToken()
	announce := s.folderChangedLocked(id)
	s.mu.Unlock()

	announce()
	return s.fetchFolder(ctx, id, token)
}

// NavigateToBreadcrumb truncates the stack to index+1 entries and makes
// that entry current.
func (s *Session) NavigateToBreadcrumb(ctx context.Context, index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.crumbs) {
		s.mu.Unlock()
		return validationf("breadcrumb index %d out of range", index)
	}
	s.crumbs = s.crumbs[:index+1]
	id := s.crumbs[index].ID
	s.currentID = id
	token := s.nextFetchToken()
	announce := s.folderChangedLocked(id)
	s.mu.Unlock()

	announce()
	return s.fetchFolder(ctx, id, token)
}

// NavigateToRoot empties the stack and shows the top level.
func (s *Session) NavigateToRoot(ctx context.Context) error {
	s.mu.Lock()
	s.crumbs = nil
	s.currentID = models.RootID
	token := s.nextFetchToken()
	announce := s.folderChangedLocked(models.RootID)
	s.mu.Unlock()

	announce()
	return s.fetchFolder(ctx, models.RootID, token)
}

// Refresh re-fetches the current folder without touching the stack.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	id := s.currentID
	token := s.nextFetchToken()
	s.mu.Unlock()

	return s.fetchFolder(ctx, id, token)
}

// nextFetchToken issues a new folder-fetch token. Callers hold s.mu.
func (s *Session) nextFetchToken() uint64 {
	s.fetchSeq++
	return s.fetchSeq
}

// fetchFolder lists a folder's contents and applies the result only if
// no newer fetch was issued meanwhile. A stale response is dropped
// silently: it is not an error, just a superseded view.
func (s *Session) fetchFolder(ctx context.Context, id string, token uint64) error {
	listing, err := s.gw.ListFolderContents(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.fetchSeq {
		metrics.RecordStaleResponse("folder")
		logging.Debug("dropped stale folder fetch",
			zap.String("folder", id),
			zap.Uint64("token", token),
			zap.Uint64("current", s.fetchSeq))
		return nil
	}

	if err != nil {
		s.fetchErr = err
		return err
	}

	s.fetchErr = nil
	s.store.SetChildren(id, listing.Folders, listing.Documents)
	return nil
}

// BackfillDocumentMeta resolves a document's pending content type and
// size. The result is applied only if the node is still cached.
func (s *Session) BackfillDocumentMeta(ctx context.Context, id string) error {
	contentType, size, err := s.gw.DocumentMeta(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetDocumentMeta(id, contentType, size)
	return nil
}

// RefreshFavorites re-reads the favorites set, with the same stale
// suppression as folder fetches but on its own token sequence.
func (s *Session) RefreshFavorites(ctx context.Context) error {
	s.mu.Lock()
	s.favSeq++
	token := s.favSeq
	s.mu.Unlock()

	ids, err := s.gw.GetFavorites(ctx, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.favSeq {
		metrics.RecordStaleResponse("favorites")
		return nil
	}
	if err != nil {
		return err
	}

	s.favorites = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.favorites[id] = struct{}{}
	}
	return nil
}

// ResolveBreadcrumbs rebuilds the stack for an arbitrary folder id by
// walking the full folder list from the gateway. Used when a view is
// opened directly at a deep folder rather than navigated to.
func (s *Session) ResolveBreadcrumbs(ctx context.Context, folderID string) error {
	if folderID == models.RootID {
		return s.NavigateToRoot(ctx)
	}

	folders, err := s.gw.ListAllFolders(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]models.Node, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}

	var chain []Breadcrumb
	cur := folderID
	for steps := 0; steps <= len(byID); steps++ {
		f, ok := byID[cur]
		if !ok {
			return validationf("folder %s not found", cur)
		}
		chain = append([]Breadcrumb{{ID: f.ID, Name: f.Name}}, chain...)
		if f.ParentID == models.RootID {
			break
		}
		cur = f.ParentID
	}

	s.mu.Lock()
	s.crumbs = chain
	s.currentID = folderID
	token := s.nextFetchToken()
	announce := s.folderChangedLocked(folderID)
	s.mu.Unlock()

	announce()
	return s.fetchFolder(ctx, folderID, token)
}

// resetToRootLocked is used by lifecycle operations that force the
// session back to root after the current folder disappears.
func (s *Session) resetToRootLocked() func() {
	s.crumbs = nil
	s.currentID = models.RootID
	return s.folderChangedLocked(models.RootID)
}
