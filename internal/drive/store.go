// Package drive implements the client-side engine for the folder and
// document hierarchy: the local node store, navigation, moves,
// lifecycle operations, and favorites, all hanging off a Session.
package drive

import (
	"time"

	"github.com/paperdrive/paperdrive/internal/metrics"
	"github.com/paperdrive/paperdrive/pkg/models"
	"github.com/paperdrive/paperdrive/pkg/tree"
)

// Store is the in-memory arena of nodes by id, plus an explicit child
// order per parent so the rendered list position survives rollback.
// Store is not goroutine-safe: the Session is its exclusive writer and
// serializes access.
type Store struct {
	nodes    map[string]models.Node
	children map[string][]string // parentID -> ordered child ids
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		nodes:    make(map[string]models.Node),
		children: make(map[string][]string),
	}
}

// Get returns a node by id.
func (s *Store) Get(id string) (models.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Len returns the number of nodes held.
func (s *Store) Len() int {
	return len(s.nodes)
}

// ChildrenOf returns the nodes under parentID in stored order. Ids in
// the order list that no longer resolve are skipped.
func (s *Store) ChildrenOf(parentID string) []models.Node {
	ids := s.children[parentID]
	out := make([]models.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// SetChildren replaces the contents of a folder with a fetched listing.
// Children that disappeared since the last fetch are evicted together
// with any cached subtree under them.
func (s *Store) SetChildren(parentID string, folders, documents []models.Node) {
	incoming := make(map[string]struct{}, len(folders)+len(documents))
	order := make([]string, 0, len(folders)+len(documents))

	for _, n := range folders {
		s.nodes[n.ID] = n
		incoming[n.ID] = struct{}{}
		order = append(order, n.ID)
	}
	for _, n := range documents {
		s.nodes[n.ID] = n
		incoming[n.ID] = struct{}{}
		order = append(order, n.ID)
	}

	for _, id := range s.children[parentID] {
		if _, kept := incoming[id]; kept {
			continue
		}
		// Evict only nodes still claiming this parent; a node that was
		// optimistically moved elsewhere is not ours to drop.
		if n, ok := s.nodes[id]; ok && n.ParentID == parentID {
			s.removeSubtree(id)
		}
	}

	s.children[parentID] = order
	metrics.SetStoreNodeCount(len(s.nodes))
}

// Upsert inserts or replaces a node and appends it to its parent's
// order if not already present.
func (s *Store) Upsert(n models.Node) {
	_, existed := s.nodes[n.ID]
	s.nodes[n.ID] = n
	if !existed || s.indexIn(n.ParentID, n.ID) < 0 {
		s.children[n.ParentID] = append(s.children[n.ParentID], n.ID)
	}
	metrics.SetStoreNodeCount(len(s.nodes))
}

// Rename updates a node's name and bumps UpdatedAt.
func (s *Store) Rename(id, name string, now time.Time) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	n.Name = name
	n.UpdatedAt = now
	s.nodes[id] = n
}

// SetDocumentMeta backfills a document's content type and size.
func (s *Store) SetDocumentMeta(id, contentType string, sizeBytes int64) {
	n, ok := s.nodes[id]
	if !ok || !n.IsDocument() {
		return
	}
	n.ContentType = contentType
	n.SizeBytes = sizeBytes
	s.nodes[id] = n
}

// Reparent moves a node under a new parent, bumping UpdatedAt. The node
// leaves its old position and is appended to the target's order.
func (s *Store) Reparent(id, targetID string, now time.Time) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	s.detach(n.ParentID, id)
	n.ParentID = targetID
	n.UpdatedAt = now
	s.nodes[id] = n
	s.children[targetID] = append(s.children[targetID], id)
}

// Reorder moves a node to a new index within its parent's order. This
// is a local-only visual reorder; nothing is persisted.
func (s *Store) Reorder(id string, newIndex int) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	ids := s.children[n.ParentID]
	cur := s.indexIn(n.ParentID, id)
	if cur < 0 {
		return
	}
	ids = append(ids[:cur], ids[cur+1:]...)
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(ids) {
		newIndex = len(ids)
	}
	ids = append(ids[:newIndex], append([]string{id}, ids[newIndex:]...)...)
	s.children[n.ParentID] = ids
}

// Remove deletes a single node from the arena and its parent's order.
func (s *Store) Remove(id string) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	s.detach(n.ParentID, id)
	delete(s.nodes, id)
	delete(s.children, id)
	metrics.SetStoreNodeCount(len(s.nodes))
}

// RemoveSubtree deletes a node and every cached descendant.
func (s *Store) RemoveSubtree(id string) {
	s.removeSubtree(id)
	metrics.SetStoreNodeCount(len(s.nodes))
}

func (s *Store) removeSubtree(id string) {
	for _, child := range s.children[id] {
		if n, ok := s.nodes[child]; ok && n.ParentID == id {
			s.removeSubtree(child)
		}
	}
	if n, ok := s.nodes[id]; ok {
		s.detach(n.ParentID, id)
	}
	delete(s.nodes, id)
	delete(s.children, id)
}

// IsDescendant reports whether candidate lies inside the subtree rooted
// at ancestorID, per the store's current view.
func (s *Store) IsDescendant(ancestorID, candidate string) bool {
	return tree.IsDescendant(s.nodes, ancestorID, candidate)
}

// PathToRoot returns the parent chain for id, bounded by store size.
func (s *Store) PathToRoot(id string) ([]string, bool) {
	return tree.PathToRoot(s.nodes, id)
}

// Snapshot captures everything needed to undo a mutation of one node:
// the node value plus its position in its parent's order.
type Snapshot struct {
	node   models.Node
	parent string
	index  int
	exists bool
}

// SnapshotNode captures the current state of a node for rollback.
func (s *Store) SnapshotNode(id string) Snapshot {
	n, ok := s.nodes[id]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{
		node:   n,
		parent: n.ParentID,
		index:  s.indexIn(n.ParentID, id),
		exists: true,
	}
}

// Restore puts a snapshotted node back exactly where it was: same
// parent, same position, same field values.
func (s *Store) Restore(snap Snapshot) {
	if !snap.exists {
		return
	}
	id := snap.node.ID
	if cur, ok := s.nodes[id]; ok {
		s.detach(cur.ParentID, id)
	}
	s.nodes[id] = snap.node

	ids := s.children[snap.parent]
	idx := snap.index
	if idx < 0 || idx > len(ids) {
		idx = len(ids)
	}
	s.children[snap.parent] = append(ids[:idx], append([]string{id}, ids[idx:]...)...)
	metrics.SetStoreNodeCount(len(s.nodes))
}

func (s *Store) detach(parentID, id string) {
	ids := s.children[parentID]
	for i, cur := range ids {
		if cur == id {
			s.children[parentID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

func (s *Store) indexIn(parentID, id string) int {
	for i, cur := range s.children[parentID] {
		if cur == id {
			return i
		}
	}
	return -1
}
