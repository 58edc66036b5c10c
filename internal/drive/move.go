package drive

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paperdrive/paperdrive/internal/events"
	"github.com/paperdrive/paperdrive/internal/logging"
	"github.com/paperdrive/paperdrive/internal/metrics"
	"github.com/paperdrive/paperdrive/pkg/models"
)

// Move reparents a node under targetFolderID (or the root). The new
// parent is applied locally before the remote call resolves; a remote
// failure rolls the node back to its exact prior state. Client-side
// validation runs first, but the server remains the final arbiter of
// cycle safety: a ConflictError on return means our view was stale.
//
// Moves of distinct nodes may run concurrently; a second move of the
// same node while one is pending is rejected with ErrBusy.
func (s *Session) Move(ctx context.Context, nodeID, targetFolderID string) error {
	s.mu.Lock()

	if err := s.validateMoveLocked(nodeID, targetFolderID); err != nil {
		s.mu.Unlock()
		return err
	}
	if node, _ := s.store.Get(nodeID); node.ParentID == targetFolderID {
		// Already there; nothing to persist.
		s.mu.Unlock()
		return nil
	}
	if _, pending := s.moving[nodeID]; pending {
		s.mu.Unlock()
		metrics.RecordBusyRejection("move")
		return ErrBusy
	}

	snap := s.store.SnapshotNode(nodeID)
	s.store.Reparent(nodeID, targetFolderID, time.Now().UTC())
	s.moving[nodeID] = struct{}{}
	s.mu.Unlock()

	err := s.gw.MoveNode(ctx, nodeID, targetFolderID)

	s.mu.Lock()
	delete(s.moving, nodeID)
	if err != nil {
		s.store.Restore(snap)
		s.mu.Unlock()
		metrics.RecordRollback("move")
		logging.Warn("move rolled back",
			zap.String("node", nodeID),
			zap.String("target", targetFolderID),
			zap.Error(err))
		return err
	}
	s.mu.Unlock()

	s.events.Publish(events.Event{Type: events.EventNodeMoved, NodeID: nodeID, FolderID: targetFolderID})
	return nil
}

// validateMoveLocked performs the pre-remote checks. Callers hold s.mu.
func (s *Session) validateMoveLocked(nodeID, targetFolderID string) error {
	if nodeID == targetFolderID {
		return validationf("cannot move a node into itself")
	}
	node, ok := s.store.Get(nodeID)
	if !ok {
		return validationf("unknown node %s", nodeID)
	}
	if targetFolderID != models.RootID {
		target, ok := s.store.Get(targetFolderID)
		if !ok {
			return validationf("unknown target folder %s", targetFolderID)
		}
		if !target.IsFolder() {
			return validationf("target %s is not a folder", targetFolderID)
		}
		if node.IsFolder() && s.store.IsDescendant(nodeID, targetFolderID) {
			return validationf("cannot move a folder into its own descendant")
		}
	}
	return nil
}
