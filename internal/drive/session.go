package drive

import (
	"sync"

	"go.uber.org/zap"

	"github.com/paperdrive/paperdrive/internal/events"
	"github.com/paperdrive/paperdrive/internal/gateway"
	"github.com/paperdrive/paperdrive/internal/logging"
	"github.com/paperdrive/paperdrive/internal/view"
	"github.com/paperdrive/paperdrive/pkg/models"
)

// Breadcrumb is one entry on the path from root to the current folder.
type Breadcrumb struct {
	ID   string
	Name string
}

// Config holds session construction parameters.
type Config struct {
	Gateway  gateway.Gateway
	UserID   string
	PageSize int
	View     view.Config
}

// Session is the explicit dashboard state object: it owns the node
// store, navigation, favorites, selection, and the view configuration,
// and is the exclusive writer of all of them. Every mutation entry
// point takes the session mutex, so mutations never interleave.
type Session struct {
	mu sync.Mutex

	gw     gateway.Gateway
	store  *Store
	events *events.Broadcaster
	userID string

	// Navigation
	crumbs    []Breadcrumb
	currentID string
	fetchSeq  uint64 // folder-content fetch token
	fetchErr  error  // last fetch outcome for the current folder

	// Favorites
	favorites map[string]struct{}
	favSeq    uint64 // favorites fetch token
	favBusy   bool

	// Moves in flight, per node
	moving map[string]struct{}

	// Detail view
	selectedID string

	// View projection state
	viewCfg       view.Config
	pageSize      int
	pagesRevealed int
}

// NewSession creates a session rooted at the top level.
func NewSession(cfg Config) *Session {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.View.PageSize == 0 {
		cfg.View.PageSize = cfg.PageSize
	}
	return &Session{
		gw:            cfg.Gateway,
		store:         NewStore(),
		events:        events.NewBroadcaster(),
		userID:        cfg.UserID,
		currentID:     models.RootID,
		favorites:     make(map[string]struct{}),
		moving:        make(map[string]struct{}),
		viewCfg:       cfg.View,
		pageSize:      cfg.PageSize,
		pagesRevealed: 1,
	}
}

// Events returns the session's event broadcaster. Holders of derived
// state (an open document, a move picker) subscribe here.
func (s *Session) Events() *events.Broadcaster {
	return s.events
}

// Store exposes the node store for read-only inspection in callers and
// tests. Mutation stays inside the session.
func (s *Session) Store() *Store {
	return s.store
}

// CurrentFolder returns the id of the folder being viewed.
func (s *Session) CurrentFolder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Breadcrumbs returns a copy of the breadcrumb stack.
func (s *Session) Breadcrumbs() []Breadcrumb {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Breadcrumb, len(s.crumbs))
	copy(out, s.crumbs)
	return out
}

// FetchError returns the last fetch failure for the current folder, or
// nil. Renderers use it to show an error affordance instead of the list.
func (s *Session) FetchError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchErr
}

// Select marks a node as the open detail view.
func (s *Session) Select(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = nodeID
}

// Selected returns the detail-view node id, or "" if none.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

// SetViewConfig replaces the sort/group configuration and resets the
// reveal count, since the row sequence changes wholesale.
func (s *Session) SetViewConfig(cfg view.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.PageSize == 0 {
		cfg.PageSize = s.pageSize
	}
	s.viewCfg = cfg
	s.pagesRevealed = 1
}

// RevealMore exposes one more page of rows.
func (s *Session) RevealMore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pagesRevealed++
}

// Project returns the renderable projection of the current folder's
// contents under the active configuration.
func (s *Session) Project() view.Projection {
	s.mu.Lock()
	nodes := s.store.ChildrenOf(s.currentID)
	cfg := s.viewCfg
	pages := s.pagesRevealed
	s.mu.Unlock()
	return view.Project(nodes, cfg, pages)
}

// ReorderLocal changes a node's position within its folder's rendered
// order. The new order is not persisted; a refetch restores server
// order.
func (s *Session) ReorderLocal(nodeID string, newIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Reorder(nodeID, newIndex)
}

// folderChangedLocked resets per-folder state and announces the change.
// Callers hold s.mu; the event is published after unlocking via the
// returned func to keep subscribers out of the critical section.
func (s *Session) folderChangedLocked(folderID string) func() {
	s.selectedID = ""
	s.fetchErr = nil
	s.pagesRevealed = 1
	return func() {
		s.events.Publish(events.Event{Type: events.EventFolderChanged, FolderID: folderID})
		logging.Debug("folder changed", zap.String("folder", folderID))
	}
}
