// Package models contains the node types shared by the drive engine and
// its gateway implementations.
package models

import "time"

// Kind discriminates the two node variants.
type Kind string

const (
	KindFolder   Kind = "folder"
	KindDocument Kind = "document"
)

// RootID is the sentinel parent id for top-level nodes. It never
// resolves to a real node.
const RootID = "root"

// SizeUnknown marks a document whose size has not been backfilled yet.
const SizeUnknown int64 = -1

// Node represents a folder or document in the hierarchy. Folder nodes
// leave the document-only fields zero.
type Node struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Document-only fields.
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	StorageRef  string `json:"storage_ref,omitempty"`
}

// IsFolder reports whether the node is a folder.
func (n Node) IsFolder() bool {
	return n.Kind == KindFolder
}

// IsDocument reports whether the node is a document.
func (n Node) IsDocument() bool {
	return n.Kind == KindDocument
}

// HasKnownSize reports whether a document's size has been resolved.
func (n Node) HasKnownSize() bool {
	return n.Kind == KindDocument && n.SizeBytes >= 0
}

// NewFolder builds a folder node with both timestamps set to now.
func NewFolder(id, name, parentID string, now time.Time) Node {
	return Node{
		ID:        id,
		Kind:      KindFolder,
		Name:      name,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewDocument builds a document node with an unknown size.
func NewDocument(id, name, parentID string, now time.Time) Node {
	return Node{
		ID:        id,
		Kind:      KindDocument,
		Name:      name,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
		SizeBytes: SizeUnknown,
	}
}
