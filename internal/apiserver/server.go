// Package apiserver exposes the drive gateway over HTTP at the
// endpoints the httpapi client consumes. It is a thin protocol shim:
// all hierarchy rules live in the gateway behind it.
package apiserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/paperdrive/paperdrive/internal/events"
	"github.com/paperdrive/paperdrive/internal/gateway"
	"github.com/paperdrive/paperdrive/internal/logging"
	"github.com/paperdrive/paperdrive/internal/metrics"
	"github.com/paperdrive/paperdrive/pkg/models"
	"github.com/paperdrive/paperdrive/pkg/protocol"
)

// Server serves the drive API over a gateway implementation.
type Server struct {
	gw          gateway.Gateway
	broadcaster *events.Broadcaster
	authToken   string
}

// New creates a server. authToken, when non-empty, is required as a
// bearer token on every /api/v1 request.
func New(gw gateway.Gateway, broadcaster *events.Broadcaster, authToken string) *Server {
	return &Server{gw: gw, broadcaster: broadcaster, authToken: authToken}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/folders/{id}/children", s.handleListChildren)
	api.HandleFunc("GET /api/v1/folders", s.handleListFolders)
	api.HandleFunc("POST /api/v1/folders", s.handleCreateFolder)
	api.HandleFunc("PATCH /api/v1/folders/{id}", s.handleRenameFolder)
	api.HandleFunc("DELETE /api/v1/folders/{id}", s.handleDeleteFolder)
	api.HandleFunc("DELETE /api/v1/documents/{id}", s.handleDeleteDocument)
	api.HandleFunc("GET /api/v1/documents/{id}/meta", s.handleDocumentMeta)
	api.HandleFunc("POST /api/v1/nodes/{id}/move", s.handleMoveNode)
	api.HandleFunc("GET /api/v1/users/{user}/favorites", s.handleGetFavorites)
	api.HandleFunc("PUT /api/v1/users/{user}/favorites", s.handleSetFavorites)
	api.HandleFunc("GET /api/v1/events", s.handleEvents)

	mux.Handle("/api/v1/", s.requireAuth(api))
	return mux
}

// requireAuth checks the bearer token when one is configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != s.authToken {
				s.sendError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	listing, err := s.gw.ListFolderContents(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendGatewayError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.ListChildrenResponse{
		Success:   true,
		Folders:   emptyNotNil(listing.Folders),
		Documents: emptyNotNil(listing.Documents),
	})
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.gw.ListAllFolders(r.Context())
	if err != nil {
		s.sendGatewayError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.FolderListResponse{Folders: emptyNotNil(folders)})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParentID == "" {
		req.ParentID = models.RootID
	}

	folder, err := s.gw.CreateFolder(r.Context(), req.Name, req.ParentID)
	if err != nil {
		s.sendGatewayError(w, err)
		return
	}

	s.publish(events.Event{Type: events.EventFolderChanged, FolderID: req.ParentID})
	s.sendJSON(w, http.StatusCreated, protocol.CreateFolderResponse{Success: true, Folder: folder})
}

func (s *Server) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req protocol.RenameFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.gw.RenameFolder(r.Context(), id, req.Name); err != nil {
		s.sendGatewayError(w, err)
		return
	}

	s.publish(events.Event{Type: events.EventNodeRenamed, NodeID: id, Name: req.Name})
	s.sendJSON(w, http.StatusOK, protocol.StatusResponse{Success: true})
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.gw.DeleteFolder(r.Context(), id); err != nil {
		s.sendGatewayError(w, err)
		return
	}

	s.publish(events.Event{Type: events.EventNodeDeleted, NodeID: id})
	s.sendJSON(w, http.StatusOK, protocol.StatusResponse{Success: true})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.gw.DeleteDocument(r.Context(), id); err != nil {
		s.sendGatewayError(w, err)
		return
	}

	s.publish(events.Event{Type: events.EventNodeDeleted, NodeID: id})
	s.sendJSON(w, http.StatusOK, protocol.StatusResponse{Success: true})
}

func (s *Server) handleDocumentMeta(w http.ResponseWriter, r *http.Request) {
	contentType, size, err := s.gw.DocumentMeta(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendGatewayError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.DocumentMetaResponse{
		ContentType: contentType,
		SizeBytes:   size,
	})
}

func (s *Server) handleMoveNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req protocol.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target := models.RootID
	if req.TargetFolderID != nil {
		target = *req.TargetFolderID
	}

	if err := s.gw.MoveNode(r.Context(), id, target); err != nil {
		s.sendGatewayError(w, err)
		return
	}

	s.publish(events.Event{Type: events.EventNodeMoved, NodeID: id, FolderID: target})
	s.sendJSON(w, http.StatusOK, protocol.StatusResponse{Success: true})
}

func (s *Server) handleGetFavorites(w http.ResponseWriter, r *http.Request) {
	ids, err := s.gw.GetFavorites(r.Context(), r.PathValue("user"))
	if err != nil {
		s.sendGatewayError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.FavoritesResponse{NodeIDs: emptyNotNil(ids)})
}

func (s *Server) handleSetFavorites(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	var req protocol.SetFavoritesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.gw.SetFavorites(r.Context(), user, req.NodeIDs); err != nil {
		s.sendGatewayError(w, err)
		return
	}

	s.publish(events.Event{Type: events.EventFavoritesChanged})
	s.sendJSON(w, http.StatusOK, protocol.StatusResponse{Success: true})
}

// handleEvents streams drive change events over SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if s.broadcaster == nil {
		s.sendError(w, http.StatusNotFound, "events not enabled")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) publish(event events.Event) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(event)
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: message, Code: code})
}

// sendGatewayError maps gateway errors onto the wire: conflicts about
// missing entities go out as 404, other conflicts as 409 with the
// reason attached, and anything else as a 500.
func (s *Server) sendGatewayError(w http.ResponseWriter, err error) {
	if ce, ok := gateway.AsConflict(err); ok {
		code := http.StatusConflict
		if strings.Contains(ce.Reason, "does not exist") {
			code = http.StatusNotFound
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(protocol.ConflictResponse{Error: ce.Error(), Reason: ce.Reason})
		return
	}
	logging.Error("gateway error", zap.Error(err))
	s.sendError(w, http.StatusInternalServerError, "internal error")
}

// emptyNotNil keeps list payloads as [] instead of null.
func emptyNotNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
