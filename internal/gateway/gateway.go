// Package gateway defines the RemoteGateway contract the drive session
// talks to, and the error taxonomy its implementations share.
package gateway

import (
	"context"

	"github.com/paperdrive/paperdrive/pkg/models"
)

// Listing holds the contents of one folder, folders and documents split.
type Listing struct {
	Folders   []models.Node
	Documents []models.Node
}

// Gateway is the persistent-backend contract. All calls are fallible
// with a RemoteError that callers must surface distinctly from local
// validation failures; ConflictError means the server rejected an
// operation the client thought valid. The server is the final arbiter
// of cycle safety on MoveNode and is the sole executor of the
// DeleteFolder cascade.
type Gateway interface {
	// ListFolderContents lists the immediate children of a folder.
	// folderID may be models.RootID. Documents may come back with
	// SizeUnknown; DocumentMeta backfills them.
	ListFolderContents(ctx context.Context, folderID string) (*Listing, error)

	// ListAllFolders returns every folder in the caller's tree, for
	// move-target pickers and breadcrumb-by-id resolution.
	ListAllFolders(ctx context.Context) ([]models.Node, error)

	// CreateFolder creates a folder and returns the server-assigned node.
	CreateFolder(ctx context.Context, name, parentID string) (models.Node, error)

	// RenameFolder renames a folder.
	RenameFolder(ctx context.Context, id, newName string) error

	// DeleteFolder deletes a folder and, server-side, its whole subtree.
	DeleteFolder(ctx context.Context, id string) error

	// DeleteDocument deletes a single document.
	DeleteDocument(ctx context.Context, id string) error

	// MoveNode reparents a node. targetFolderID may be models.RootID.
	// The server re-validates cycle safety.
	MoveNode(ctx context.Context, nodeID, targetFolderID string) error

	// DocumentMeta returns a document's content type and size.
	DocumentMeta(ctx context.Context, id string) (contentType string, sizeBytes int64, err error)

	// GetFavorites returns the user's favorite node ids.
	GetFavorites(ctx context.Context, userID string) ([]string, error)

	// SetFavorites replaces the user's favorite set (read-modify-write).
	SetFavorites(ctx context.Context, userID string, nodeIDs []string) error
}
