// Package httpapi implements the RemoteGateway contract over the drive
// HTTP API. Idempotent reads retry with backoff; mutations are sent
// exactly once, because an automatic retry of a delete or move could
// duplicate its side effect.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paperdrive/paperdrive/internal/gateway"
	"github.com/paperdrive/paperdrive/internal/logging"
	"github.com/paperdrive/paperdrive/internal/metrics"
	"github.com/paperdrive/paperdrive/pkg/models"
	"github.com/paperdrive/paperdrive/pkg/protocol"
	"github.com/paperdrive/paperdrive/pkg/retry"
)

// Client talks to a drive server and implements gateway.Gateway.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu        sync.RWMutex
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		authToken:   cfg.AuthToken,
	}
}

var _ gateway.Gateway = (*Client)(nil)

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// applyAuth adds the auth header to a request if a token is set.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// ListFolderContents lists the immediate children of a folder.
func (c *Client) ListFolderContents(ctx context.Context, folderID string) (*gateway.Listing, error) {
	const op = "list_folder_contents"
	start := time.Now()

	var listing *gateway.Listing
	err := retry.Do(ctx, c.retryConfig, func() error {
		var resp protocol.ListChildrenResponse
		if err := c.getJSON(ctx, op, "/api/v1/folders/"+url.PathEscape(folderID)+"/children", &resp); err != nil {
			return err
		}
		if !resp.Success {
			return &gateway.RemoteError{Op: op, Err: fmt.Errorf("server: %s", resp.Message)}
		}
		listing = &gateway.Listing{Folders: resp.Folders, Documents: resp.Documents}
		return nil
	})

	metrics.RecordGatewayOp(op, time.Since(start), err)
	if err != nil {
		return nil, unwrapRetryable(op, err)
	}
	return listing, nil
}

// ListAllFolders returns every folder in the caller's tree.
func (c *Client) ListAllFolders(ctx context.Context) ([]models.Node, error) {
	const op = "list_all_folders"
	start := time.Now()

	var folders []models.Node
	err := retry.Do(ctx, c.retryConfig, func() error {
		var resp protocol.FolderListResponse
		if err := c.getJSON(ctx, op, "/api/v1/folders", &resp); err != nil {
			return err
		}
		folders = resp.Folders
		return nil
	})

	metrics.RecordGatewayOp(op, time.Since(start), err)
	if err != nil {
		return nil, unwrapRetryable(op, err)
	}
	return folders, nil
}

// CreateFolder creates a folder and returns the server-assigned node.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (models.Node, error) {
	const op = "create_folder"
	start := time.Now()

	var resp protocol.CreateFolderResponse
	err := c.mutateJSON(ctx, op, http.MethodPost, "/api/v1/folders",
		protocol.CreateFolderRequest{Name: name, ParentID: parentID}, &resp)

	metrics.RecordGatewayOp(op, time.Since(start), err)
	if err != nil {
		return models.Node{}, err
	}
	if !resp.Success {
		return models.Node{}, &gateway.RemoteError{Op: op, Err: fmt.Errorf("server: %s", resp.Message)}
	}
	return resp.Folder, nil
}

// RenameFolder renames a folder.
func (c *Client) RenameFolder(ctx context.Context, id, newName string) error {
	const op = "rename_folder"
	start := time.Now()

	var resp protocol.StatusResponse
	err := c.mutateJSON(ctx, op, http.MethodPatch, "/api/v1/folders/"+url.PathEscape(id),
		protocol.RenameFolderRequest{Name: newName}, &resp)

	metrics.RecordGatewayOp(op, time.Since(start), err)
	return err
}

// DeleteFolder deletes a folder; the server cascades to its subtree.
func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	const op = "delete_folder"
	start := time.Now()

	var resp protocol.StatusResponse
	err := c.mutateJSON(ctx, op, http.MethodDelete, "/api/v1/folders/"+url.PathEscape(id), nil, &resp)

	metrics.RecordGatewayOp(op, time.Since(start), err)
	return err
}

// DeleteDocument deletes a single document.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	const op = "delete_document"
	start := time.Now()

	var resp protocol.StatusResponse
	err := c.mutateJSON(ctx, op, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(id), nil, &resp)

	metrics.RecordGatewayOp(op, time.Since(start), err)
	return err
}

// MoveNode reparents a node; the server re-validates cycle safety.
func (c *Client) MoveNode(ctx context.Context, nodeID, targetFolderID string) error {
	const op = "move_node"
	start := time.Now()

	req := protocol.MoveRequest{}
	if targetFolderID != models.RootID {
		req.TargetFolderID = &targetFolderID
	}

	var resp protocol.StatusResponse
	err := c.mutateJSON(ctx, op, http.MethodPost, "/api/v1/nodes/"+url.PathEscape(nodeID)+"/move", req, &resp)

	metrics.RecordGatewayOp(op, time.Since(start), err)
	return err
}

// DocumentMeta returns a document's content type and size.
func (c *Client) DocumentMeta(ctx context.Context, id string) (string, int64, error) {
	const op = "document_meta"
	start := time.Now()

	var meta protocol.DocumentMetaResponse
	err := retry.Do(ctx, c.retryConfig, func() error {
		return c.getJSON(ctx, op, "/api/v1/documents/"+url.PathEscape(id)+"/meta", &meta)
	})

	metrics.RecordGatewayOp(op, time.Since(start), err)
	if err != nil {
		return "", 0, unwrapRetryable(op, err)
	}
	return meta.ContentType, meta.SizeBytes, nil
}

// GetFavorites returns the user's favorite node ids.
func (c *Client) GetFavorites(ctx context.Context, userID string) ([]string, error) {
	const op = "get_favorites"
	start := time.Now()

	var resp protocol.FavoritesResponse
	err := retry.Do(ctx, c.retryConfig, func() error {
		return c.getJSON(ctx, op, "/api/v1/users/"+url.PathEscape(userID)+"/favorites", &resp)
	})

	metrics.RecordGatewayOp(op, time.Since(start), err)
	if err != nil {
		return nil, unwrapRetryable(op, err)
	}
	return resp.NodeIDs, nil
}

// SetFavorites replaces the user's favorite set.
func (c *Client) SetFavorites(ctx context.Context, userID string, nodeIDs []string) error {
	const op = "set_favorites"
	start := time.Now()

	if nodeIDs == nil {
		nodeIDs = []string{}
	}
	var resp protocol.StatusResponse
	err := c.mutateJSON(ctx, op, http.MethodPut, "/api/v1/users/"+url.PathEscape(userID)+"/favorites",
		protocol.SetFavoritesRequest{NodeIDs: nodeIDs}, &resp)

	metrics.RecordGatewayOp(op, time.Since(start), err)
	return err
}

// getJSON performs a GET and decodes the response. Transport failures
// and 5xx responses are marked retryable for the caller's retry.Do.
func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &gateway.RemoteError{Op: op, Err: err}
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(&gateway.RemoteError{Op: op, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := c.errorFromResponse(op, resp)
		if resp.StatusCode >= 500 {
			return retry.Retryable(err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &gateway.RemoteError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// mutateJSON performs a single-shot mutating request.
func (c *Client) mutateJSON(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &gateway.RemoteError{Op: op, Err: err}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &gateway.RemoteError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &gateway.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.errorFromResponse(op, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &gateway.RemoteError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// errorFromResponse maps an HTTP error status to the gateway taxonomy.
// 409 and 404 become ConflictError: the server refused something the
// client's view said was fine.
func (c *Client) errorFromResponse(op string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusConflict:
		var cr protocol.ConflictResponse
		if json.NewDecoder(resp.Body).Decode(&cr) == nil && cr.Reason != "" {
			return &gateway.ConflictError{Op: op, Reason: cr.Reason}
		}
		return &gateway.ConflictError{Op: op, Reason: "conflict"}
	case http.StatusNotFound:
		return &gateway.ConflictError{Op: op, Reason: "not found"}
	}

	var er protocol.ErrorResponse
	if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
		logging.Debug("server error response",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("error", er.Error))
		return &gateway.RemoteError{Op: op, Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, er.Error)}
	}
	return &gateway.RemoteError{Op: op, Err: fmt.Errorf("server returned %d", resp.StatusCode)}
}

// unwrapRetryable strips the retry marker so callers see the taxonomy
// error underneath.
func unwrapRetryable(op string, err error) error {
	var re retry.RetryableError
	if errors.As(err, &re) {
		err = re.Err
	}
	if _, ok := gateway.AsConflict(err); ok {
		return err
	}
	if _, ok := gateway.AsRemote(err); ok {
		return err
	}
	return &gateway.RemoteError{Op: op, Err: err}
}
