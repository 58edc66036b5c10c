// Package protocol defines the API request/response types.
package protocol

import "github.com/paperdrive/paperdrive/pkg/models"

// ListChildrenResponse is returned by GET /api/v1/folders/{id}/children.
// Folders and documents are split so clients can render the
// folders-first convention without re-partitioning.
type ListChildrenResponse struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
	Folders   []models.Node `json:"folders"`
	Documents []models.Node `json:"documents"`
}

// FolderListResponse is returned by GET /api/v1/folders. Used for move
// target pickers and breadcrumb-by-id resolution.
type FolderListResponse struct {
	Folders []models.Node `json:"folders"`
}

// CreateFolderRequest is the body for POST /api/v1/folders.
type CreateFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

// CreateFolderResponse is returned when a folder is created.
type CreateFolderResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Folder  models.Node `json:"folder"`
}

// RenameFolderRequest is the body for PATCH /api/v1/folders/{id}.
type RenameFolderRequest struct {
	Name string `json:"name"`
}

// MoveRequest is the body for POST /api/v1/nodes/{id}/move.
// A nil TargetFolderID moves the node to the top level.
type MoveRequest struct {
	TargetFolderID *string `json:"target_folder_id"`
}

// StatusResponse is the generic mutation result.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// DocumentMetaResponse is returned by GET /api/v1/documents/{id}/meta.
type DocumentMetaResponse struct {
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// FavoritesResponse is returned by GET /api/v1/users/{id}/favorites.
type FavoritesResponse struct {
	NodeIDs []string `json:"node_ids"`
}

// SetFavoritesRequest is the body for PUT /api/v1/users/{id}/favorites.
// The full set is written back; the server treats it as
// read-modify-write, not a delta.
type SetFavoritesRequest struct {
	NodeIDs []string `json:"node_ids"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// ConflictResponse is returned with 409 when the server rejects an
// operation the client thought valid (cycle check, vanished target).
type ConflictResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}
