package drive

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperdrive/paperdrive/internal/events"
	"github.com/paperdrive/paperdrive/internal/logging"
	"github.com/paperdrive/paperdrive/internal/metrics"
	"github.com/paperdrive/paperdrive/pkg/models"
)

// CreateFolder creates a folder under parentID and adds it to the local
// view. The server assigns the id.
func (s *Session) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationf("folder name is empty")
	}

	s.mu.Lock()
	if parentID != models.RootID {
		parent, ok := s.store.Get(parentID)
		if !ok || !parent.IsFolder() {
			s.mu.Unlock()
			return "", validationf("unknown parent folder %s", parentID)
		}
	}
	s.mu.Unlock()

	folder, err := s.gw.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.store.Upsert(folder)
	s.mu.Unlock()

	logging.Info("folder created", zap.String("id", folder.ID), zap.String("name", name))
	return folder.ID, nil
}

// RenameFolder renames a folder. A name that trims to the current one
// is a no-op success. The rename is applied optimistically and rolled
// back on remote failure; on success the breadcrumb entry for the
// folder, if present, is fixed up in place so the displayed path stays
// consistent without a re-navigation.
func (s *Session) RenameFolder(ctx context.Context, id, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return validationf("folder name is empty")
	}

	s.mu.Lock()
	node, ok := s.store.Get(id)
	if !ok || !node.IsFolder() {
		s.mu.Unlock()
		return validationf("unknown folder %s", id)
	}
	if node.Name == newName {
		s.mu.Unlock()
		return nil
	}

	snap := s.store.SnapshotNode(id)
	s.store.Rename(id, newName, time.Now().UTC())
	s.mu.Unlock()

	err := s.gw.RenameFolder(ctx, id, newName)

	s.mu.Lock()
	if err != nil {
		s.store.Restore(snap)
		s.mu.Unlock()
		metrics.RecordRollback("rename")
		return err
	}
	for i := range s.crumbs {
		if s.crumbs[i].ID == id {
			s.crumbs[i].Name = newName
		}
	}
	s.mu.Unlock()

	s.events.Publish(events.Event{Type: events.EventNodeRenamed, NodeID: id, Name: newName})
	return nil
}

// DeleteFolder deletes a folder and, server-side, its whole subtree.
// The client never walks the cascade itself: it invokes the server,
// awaits completion, and only then drops the subtree from the local
// view. If the current folder was inside the deleted subtree, the
// session falls back to root, since the folder no longer exists.
func (s *Session) DeleteFolder(ctx context.Context, id string) error {
	s.mu.Lock()
	node, ok := s.store.Get(id)
	if !ok || !node.IsFolder() {
		s.mu.Unlock()
		return validationf("unknown folder %s", id)
	}
	s.mu.Unlock()

	if err := s.gw.DeleteFolder(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	inDeleted := s.currentID == id || s.store.IsDescendant(id, s.currentID)
	if s.selectedID == id || s.store.IsDescendant(id, s.selectedID) {
		s.selectedID = ""
	}
	s.store.RemoveSubtree(id)

	var announce func()
	var token uint64
	if inDeleted {
		announce = s.resetToRootLocked()
		token = s.nextFetchToken()
	}
	s.mu.Unlock()

	s.events.Publish(events.Event{Type: events.EventNodeDeleted, NodeID: id})
	logging.Info("folder deleted", zap.String("id", id))

	if announce != nil {
		announce()
		return s.fetchFolder(ctx, models.RootID, token)
	}
	return nil
}

// DeleteDocument deletes a single document. If it was open in the
// detail view, the view is cleared.
func (s *Session) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	node, ok := s.store.Get(id)
	if !ok || !node.IsDocument() {
		s.mu.Unlock()
		return validationf("unknown document %s", id)
	}
	s.mu.Unlock()

	if err := s.gw.DeleteDocument(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	if s.selectedID == id {
		s.selectedID = ""
	}
	s.store.Remove(id)
	s.mu.Unlock()

	s.events.Publish(events.Event{Type: events.EventNodeDeleted, NodeID: id})
	return nil
}
