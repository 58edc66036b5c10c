// Package postgres implements the RemoteGateway contract on top of
// PostgreSQL. It is the authoritative side of the protocol: the cycle
// check on move and the cascading delete both run here, inside
// transactions, regardless of what the client's local view claimed.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/paperdrive/paperdrive/internal/gateway"
	"github.com/paperdrive/paperdrive/internal/logging"
	"github.com/paperdrive/paperdrive/internal/metrics"
	"github.com/paperdrive/paperdrive/pkg/models"
)

// Store is a PostgreSQL-backed gateway.
type Store struct {
	db *sql.DB
}

var _ gateway.Gateway = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id           TEXT PRIMARY KEY,
	parent_id    TEXT NOT NULL,
	name         TEXT NOT NULL,
	kind         TEXT NOT NULL CHECK (kind IN ('folder', 'document')),
	content_type TEXT NOT NULL DEFAULT '',
	size_bytes   BIGINT NOT NULL DEFAULT -1,
	storage_ref  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes (parent_id);

CREATE TABLE IF NOT EXISTS user_favorites (
	user_id    TEXT NOT NULL,
	node_id    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, node_id)
);
`

// New creates a new PostgreSQL gateway.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// UpdateConnectionMetrics updates the database connection gauge.
func (s *Store) UpdateConnectionMetrics() {
	metrics.SetDBConnectionsOpen(s.db.Stats().OpenConnections)
}

const nodeColumns = `id, parent_id, name, kind, content_type, size_bytes, storage_ref, created_at, updated_at`

func scanNode(sc interface{ Scan(...interface{}) error }) (models.Node, error) {
	var n models.Node
	err := sc.Scan(&n.ID, &n.ParentID, &n.Name, &n.Kind, &n.ContentType,
		&n.SizeBytes, &n.StorageRef, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// ListFolderContents lists the immediate children of a folder.
func (s *Store) ListFolderContents(ctx context.Context, folderID string) (*gateway.Listing, error) {
	const op = "list_folder_contents"
	start := time.Now()
	var err error
	defer func() { metrics.RecordGatewayOp(op, time.Since(start), err) }()

	rows, qerr := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE parent_id = $1 ORDER BY kind DESC, name, id`, folderID)
	if qerr != nil {
		err = &gateway.RemoteError{Op: op, Err: qerr}
		return nil, err
	}
	defer rows.Close()

	listing := &gateway.Listing{}
	for rows.Next() {
		n, serr := scanNode(rows)
		if serr != nil {
			err = &gateway.RemoteError{Op: op, Err: serr}
			return nil, err
		}
		if n.IsFolder() {
			listing.Folders = append(listing.Folders, n)
		} else {
			listing.Documents = append(listing.Documents, n)
		}
	}
	if rerr := rows.Err(); rerr != nil {
		err = &gateway.RemoteError{Op: op, Err: rerr}
		return nil, err
	}
	return listing, nil
}

// ListAllFolders returns every folder in the tree.
func (s *Store) ListAllFolders(ctx context.Context) ([]models.Node, error) {
	const op = "list_all_folders"
	start := time.Now()
	var err error
	defer func() { metrics.RecordGatewayOp(op, time.Since(start), err) }()

	rows, qerr := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE kind = 'folder' ORDER BY name, id`)
	if qerr != nil {
		err = &gateway.RemoteError{Op: op, Err: qerr}
		return nil, err
	}
	defer rows.Close()

	var folders []models.Node
	for rows.Next() {
		n, serr := scanNode(rows)
		if serr != nil {
			err = &gateway.RemoteError{Op: op, Err: serr}
			return nil, err
		}
		folders = append(folders, n)
	}
	if rerr := rows.Err(); rerr != nil {
		err = &gateway.RemoteError{Op: op, Err: rerr}
		return nil, err
	}
	return folders, nil
}

// CreateFolder creates a folder under parentID.
func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (models.Node, error) {
	const op = "create_folder"
	start := time.Now()
	var err error
	defer func() { metrics.RecordGatewayOp(op, time.Since(start), err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		err = &gateway.ConflictError{Op: op, Reason: "folder name is empty"}
		return models.Node{}, err
	}

	if parentID != models.RootID {
		ok, cerr := s.folderExists(ctx, parentID)
		if cerr != nil {
			err = &gateway.RemoteError{Op: op, Err: cerr}
			return models.Node{}, err
		}
		if !ok {
			err = &gateway.ConflictError{Op: op, Reason: "parent folder does not exist"}
			return models.Node{}, err
		}
	}

	id := uuid.NewString()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO nodes (id, parent_id, name, kind) VALUES ($1, $2, $3, 'folder')
		 RETURNING `+nodeColumns, id, parentID, name)
	n, serr := scanNode(row)
	if serr != nil {
		err = &gateway.RemoteError{Op: op, Err: serr}
		return models.Node{}, err
	}

	logging.Debug("created folder", zap.String("id", n.ID), zap.String("parent", parentID))
	return n, nil
}

// RenameFolder renames a folder.
func (s *Store) RenameFolder(ctx context.Context, id, newName string) error {
	const op = "rename_folder"
	start := time.Now()
	var err error
	defer func() { metrics.RecordGatewayOp(op, time.Since(start), err) }()

	newName = strings.TrimSpace(newName)
	if newName == "" {
		err = &gateway.ConflictError{Op: op, Reason: "folder name is empty"}
		return err
	}

	res, xerr := s.db.ExecContext(ctx,
		`UPDATE nodes SET name = $1, updated_at = NOW() WHERE id = $2 AND kind = 'folder'`,
		newName, id)
	if xerr != nil {
		err = &gateway.RemoteError{Op: op, Err: xerr}
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		err = &gateway.ConflictError{Op: op, Reason: "folder does not exist"}
		return err
	}
	return nil
}

// DeleteFolder deletes a folder and its whole subtree in one
// transaction, favorites rows included for the deleted ids.
func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	const op = "delete_folder"
	start := time.Now()
	var err error
	defer func() { metrics.RecordGatewayOp(op, time.Since(start), err) }()

	tx, terr := s.db.BeginTx(ctx, nil)
	if terr != nil {
		err = &gateway.RemoteError{Op: op, Err: terr}
		return err
	}
	defer tx.Rollback()

	res, xerr := tx.ExecContext(ctx,
		`WITH RECURSIVE subtree AS (
			SELECT id FROM nodes WHERE id = $1 AND kind = 'folder'
			UNION ALL
			SELECT n.id FROM nodes n JOIN subtree s ON n.parent_id = s.id
		 )
		 DELETE FROM nodes WHERE id IN (SELECT id FROM subtree)`, id)
	if xerr != nil {
		err = &gateway.RemoteError{Op: op, Err: xerr}
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		err = &gateway.ConflictError{Op: op, Reason: "folder does not exist"}
		return err
	}

	// Drop favorites pointing at nodes that no longer resolve.
	if _, xerr := tx.ExecContext(ctx,
		`DELETE FROM user_favorites WHERE node_id NOT IN (SELECT id FROM nodes)`); xerr != nil {
		err = &gateway.RemoteError{Op: op, Err: xerr}
		return err
	}

	if cerr := tx.Commit(); cerr != nil {
		err = &gateway.RemoteError{Op: op, Err: cerr}
		return err
	}

	logging.Debug("deleted folder subtree", zap.String("id", id), zap.Int64("rows", rows))
	return nil
}

// DeleteDocument deletes a single document.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	const op = "delete_document"
	start := time.Now()
	var err error
	defer func() { metrics.RecordGatewayOp(op, time.Since(start), err) }()

	res, xerr := s.db.ExecContext(ctx,
		`DELETE FROM nodes WHERE id = $1 AND kind = 'document'`, id)
	if xerr != nil {
		err = &gateway.RemoteError{Op: op, Err: xerr}
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		err = &gateway.ConflictError{Op: op, Reason: "document does not exist"}
		return err
	}
	return nil
}

// MoveNode reparents a node after re-validating cycle safety: the
// target must exist, be a folder, and must not sit inside the moved
// node's own subtree.
func (s *Store) MoveNode(ctx context.Context, nodeID, targetFolderID string) error {
	const op = "move_node"
	start := time.Now()
	var err error
	defer func() { metrics.RecordGatewayOp(op, time.Since(start), err) }()

	if nodeID == targetFolderID {
		err = &gateway.ConflictError{Op: op, Reason: "cannot move a node into itself"}
		return err
	}

	tx, terr := s.db.BeginTx(ctx, nil)
	if terr != nil {
		err = &gateway.RemoteError{Op: op, Err: terr}
		return err
	}
	defer tx.Rollback()

	if targetFolderID != models.RootID {
		var kind string
		qerr := tx.QueryRowContext(ctx,
			`SELECT kind FROM nodes WHERE id = $1`, targetFolderID).Scan(&kind)
		if qerr == sql.ErrNoRows {
			err = &gateway.ConflictError{Op: op, Reason: "target folder does not exist"}
			return err
		}
		if qerr != nil {
			err = &gateway.RemoteError{Op: op, Err: qerr}
			return err
		}
		if kind != string(models.KindFolder) {
			err = &gateway.ConflictError{Op: op, Reason: "target is not a folder"}
			return err
		}

		var inSubtree bool
		qerr = tx.QueryRowContext(ctx,
			`WITH RECURSIVE subtree AS (
				SELECT id FROM nodes WHERE id = $1
				UNION ALL
				SELECT n.id FROM nodes n JOIN subtree s ON n.parent_id = s.id
			 )
			 SELECT EXISTS(SELECT 1 FROM subtree WHERE id = $2)`,
			nodeID, targetFolderID).Scan(&inSubtree)
		if qerr != nil {
			err = &gateway.RemoteError{Op: op, Err: qerr}
			return err
		}
		if inSubtree {
			err = &gateway.ConflictError{Op: op, Reason: "target is a descendant of the moved node"}
			return err
		}
	}

	res, xerr := tx.ExecContext(ctx,
		`UPDATE nodes SET parent_id = $1, updated_at = NOW() WHERE id = $2`,
		targetFolderID, nodeID)
	if xerr != nil {
		err = &gateway.RemoteError{Op: op, Err: xerr}
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		err = &gateway.ConflictError{Op: op, Reason: "node does not exist"}
		return err
	}

	if cerr := tx.Commit(); cerr != nil {
		err = &gateway.RemoteError{Op: op, Err: cerr}
		return err
	}
	return nil
}

// DocumentMeta returns a document's content type and size.
func (s *Store) DocumentMeta(ctx context.Context, id string) (string, int64, error) {
	const op = "document_meta"
	start := time.Now()
	var err error
	defer func() { metrics.RecordGatewayOp(op, time.Since(start), err) }()

	var contentType string
	var size int64
	qerr := s.db.QueryRowContext(ctx,
		`SELECT content_type, size_bytes FROM nodes WHERE id = $1 AND kind = 'document'`, id).
		Scan(&contentType, &size)
	if qerr == sql.ErrNoRows {
		err = &gateway.ConflictError{Op: op, Reason: "document does not exist"}
		return "", 0, err
	}
	if qerr != nil {
		err = &gateway.RemoteError{Op: op, Err: qerr}
		return "", 0, err
	}
	return contentType, size, nil
}

// GetFavorites returns the user's favorite node ids.
func (s *Store) GetFavorites(ctx context.Context, userID string) ([]string, error) {
	const op = "get_favorites"
	start := time.Now()
	var err error
	defer func() { metrics.RecordGatewayOp(op, time.Since(start), err) }()

	rows, qerr := s.db.QueryContext(ctx,
		`SELECT node_id FROM user_favorites WHERE user_id = $1 ORDER BY created_at`, userID)
	if qerr != nil {
		err = &gateway.RemoteError{Op: op, Err: qerr}
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if serr := rows.Scan(&id); serr != nil {
			err = &gateway.RemoteError{Op: op, Err: serr}
			return nil, err
		}
		ids = append(ids, id)
	}
	if rerr := rows.Err(); rerr != nil {
		err = &gateway.RemoteError{Op: op, Err: rerr}
		return nil, err
	}
	return ids, nil
}

// SetFavorites replaces the user's favorite set in one transaction.
func (s *Store) SetFavorites(ctx context.Context, userID string, nodeIDs []string) error {
	const op = "set_favorites"
	start := time.Now()
	var err error
	defer func() { metrics.RecordGatewayOp(op, time.Since(start), err) }()

	tx, terr := s.db.BeginTx(ctx, nil)
	if terr != nil {
		err = &gateway.RemoteError{Op: op, Err: terr}
		return err
	}
	defer tx.Rollback()

	if _, xerr := tx.ExecContext(ctx,
		`DELETE FROM user_favorites WHERE user_id = $1`, userID); xerr != nil {
		err = &gateway.RemoteError{Op: op, Err: xerr}
		return err
	}
	for _, nodeID := range nodeIDs {
		if _, xerr := tx.ExecContext(ctx,
			`INSERT INTO user_favorites (user_id, node_id) VALUES ($1, $2)
			 ON CONFLICT (user_id, node_id) DO NOTHING`, userID, nodeID); xerr != nil {
			err = &gateway.RemoteError{Op: op, Err: xerr}
			return err
		}
	}

	if cerr := tx.Commit(); cerr != nil {
		err = &gateway.RemoteError{Op: op, Err: cerr}
		return err
	}
	return nil
}

func (s *Store) folderExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM nodes WHERE id = $1 AND kind = 'folder')`, id).Scan(&exists)
	return exists, err
}
