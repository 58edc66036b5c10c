package drive

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/paperdrive/paperdrive/internal/gateway"
	"github.com/paperdrive/paperdrive/pkg/models"
)

// fakeGateway is an in-memory Gateway with per-method error injection
// and hooks for exercising in-flight races.
type fakeGateway struct {
	mu       sync.Mutex
	listings map[string]*gateway.Listing
	folders  []models.Node
	favs     []string
	calls    map[string]int

	listErr   error
	createErr error
	renameErr error
	deleteErr error
	moveErr   error
	favErr    error

	// listHook runs inside ListFolderContents before it returns,
	// outside any session lock.
	listHook func(folderID string)
	// moveStarted/moveGate make MoveNode announce itself and then
	// block until released.
	moveStarted chan struct{}
	moveGate    chan struct{}
	favStarted  chan struct{}
	favGate     chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		listings: make(map[string]*gateway.Listing),
		calls:    make(map[string]int),
	}
}

func (g *fakeGateway) record(op string) {
	g.mu.Lock()
	g.calls[op]++
	g.mu.Unlock()
}

func (g *fakeGateway) callCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) setListing(folderID string, folders, documents []models.Node) {
	g.mu.Lock()
	g.listings[folderID] = &gateway.Listing{Folders: folders, Documents: documents}
	g.mu.Unlock()
}

func (g *fakeGateway) ListFolderContents(ctx context.Context, folderID string) (*gateway.Listing, error) {
	g.record("list")
	if g.listHook != nil {
		g.listHook(folderID)
	}
	if g.listErr != nil {
		return nil, g.listErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.listings[folderID]; ok {
		return &gateway.Listing{Folders: l.Folders, Documents: l.Documents}, nil
	}
	return &gateway.Listing{}, nil
}

func (g *fakeGateway) ListAllFolders(ctx context.Context) ([]models.Node, error) {
	g.record("listAll")
	return g.folders, nil
}

func (g *fakeGateway) CreateFolder(ctx context.Context, name, parentID string) (models.Node, error) {
	g.record("create")
	if g.createErr != nil {
		return models.Node{}, g.createErr
	}
	return models.NewFolder("srv-"+name, name, parentID, time.Now().UTC()), nil
}

func (g *fakeGateway) RenameFolder(ctx context.Context, id, newName string) error {
	g.record("rename")
	return g.renameErr
}

func (g *fakeGateway) DeleteFolder(ctx context.Context, id string) error {
	g.record("deleteFolder")
	return g.deleteErr
}

func (g *fakeGateway) DeleteDocument(ctx context.Context, id string) error {
	g.record("deleteDocument")
	return g.deleteErr
}

func (g *fakeGateway) MoveNode(ctx context.Context, nodeID, targetFolderID string) error {
	g.record("move")
	if g.moveStarted != nil {
		g.moveStarted <- struct{}{}
	}
	if g.moveGate != nil {
		<-g.moveGate
	}
	return g.moveErr
}

func (g *fakeGateway) DocumentMeta(ctx context.Context, id string) (string, int64, error) {
	g.record("meta")
	return "application/pdf", 2048, nil
}

func (g *fakeGateway) GetFavorites(ctx context.Context, userID string) ([]string, error) {
	g.record("getFavs")
	if g.favErr != nil {
		return nil, g.favErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.favs...), nil
}

func (g *fakeGateway) SetFavorites(ctx context.Context, userID string, nodeIDs []string) error {
	g.record("setFavs")
	if g.favStarted != nil {
		g.favStarted <- struct{}{}
	}
	if g.favGate != nil {
		<-g.favGate
	}
	if g.favErr != nil {
		return g.favErr
	}
	g.mu.Lock()
	g.favs = append([]string(nil), nodeIDs...)
	g.mu.Unlock()
	return nil
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func newTestSession(gw gateway.Gateway) *Session {
	return NewSession(Config{Gateway: gw, UserID: "u1", PageSize: 50})
}

var sessNow = time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)

// seedTree loads a two-level tree: root -> f1 (Projects) -> f2 (Archive)
// plus document d1 under f1.
func seedTree(t *testing.T, gw *fakeGateway, s *Session) {
	t.Helper()
	gw.setListing(models.RootID,
		[]models.Node{models.NewFolder("f1", "Projects", models.RootID, sessNow)}, nil)
	gw.setListing("f1",
		[]models.Node{models.NewFolder("f2", "Archive", "f1", sessNow)},
		[]models.Node{models.NewDocument("d1", "Q1.pdf", "f1", sessNow)})

	if err := s.NavigateToRoot(context.Background()); err != nil {
		t.Fatalf("NavigateToRoot: %v", err)
	}
	if err := s.EnterFolder(context.Background(), "f1", "Projects"); err != nil {
		t.Fatalf("EnterFolder: %v", err)
	}
}

func TestEnterFolderAndBreadcrumbs(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	if got := s.CurrentFolder(); got != "f1" {
		t.Errorf("current = %s, want f1", got)
	}
	crumbs := s.Breadcrumbs()
	if len(crumbs) != 1 || crumbs[0].Name != "Projects" {
		t.Errorf("crumbs = %+v", crumbs)
	}

	if err := s.EnterFolder(context.Background(), "f2", "Archive"); err != nil {
		t.Fatal(err)
	}
	crumbs = s.Breadcrumbs()
	if len(crumbs) != 2 || crumbs[1].ID != "f2" {
		t.Errorf("crumbs = %+v", crumbs)
	}

	if err := s.NavigateToBreadcrumb(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if got := s.CurrentFolder(); got != "f1" {
		t.Errorf("current after crumb nav = %s", got)
	}
	if got := len(s.Breadcrumbs()); got != 1 {
		t.Errorf("crumbs after truncation = %d", got)
	}
}

func TestNavigateToBreadcrumbOutOfRange(t *testing.T) {
	s := newTestSession(newFakeGateway())
	if _, ok := AsValidation(s.NavigateToBreadcrumb(context.Background(), 3)); !ok {
		t.Error("expected validation error for out-of-range index")
	}
}

func TestStaleFolderResponseDropped(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	gw.setListing("f1", nil, []models.Node{models.NewDocument("d1", "one.pdf", "f1", sessNow)})
	gw.setListing("f2", nil, []models.Node{models.NewDocument("d2", "two.pdf", "f2", sessNow)})

	// While f1's listing is in flight the user navigates to f2. The
	// nested navigation completes first; f1's response arrives late and
	// must be dropped without error.
	gw.listHook = func(folderID string) {
		if folderID != "f1" {
			return
		}
		gw.listHook = nil
		if err := s.EnterFolder(context.Background(), "f2", "Two"); err != nil {
			t.Errorf("nested EnterFolder: %v", err)
		}
	}

	if err := s.EnterFolder(context.Background(), "f1", "One"); err != nil {
		t.Fatalf("EnterFolder: %v", err)
	}

	if got := s.CurrentFolder(); got != "f2" {
		t.Errorf("current = %s, want f2", got)
	}
	if _, ok := s.Store().Get("d1"); ok {
		t.Error("stale f1 listing was applied")
	}
	if _, ok := s.Store().Get("d2"); !ok {
		t.Error("winning f2 listing was not applied")
	}
	if err := s.FetchError(); err != nil {
		t.Errorf("stale drop surfaced an error: %v", err)
	}
}

func TestFetchErrorSurfacedAndClearedOnRetry(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	gw.listErr = errors.New("boom")

	if err := s.NavigateToRoot(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if s.FetchError() == nil {
		t.Error("fetch error not retained for the renderer")
	}

	gw.listErr = nil
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if s.FetchError() != nil {
		t.Error("fetch error not cleared after successful refetch")
	}
}

func TestMoveOptimisticThenConfirmed(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	if err := s.Move(context.Background(), "d1", "f2"); err != nil {
		t.Fatalf("Move: %v", err)
	}

	n, _ := s.Store().Get("d1")
	if n.ParentID != "f2" {
		t.Errorf("parent = %s, want f2", n.ParentID)
	}
	if gw.callCount("move") != 1 {
		t.Errorf("move calls = %d", gw.callCount("move"))
	}
}

func TestMoveRollbackRestoresExactState(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)
	gw.moveErr = &gateway.RemoteError{Op: "move", Err: errors.New("tcp reset")}

	before, _ := s.Store().Get("d1")
	orderBefore := s.Store().ChildrenOf("f1")

	err := s.Move(context.Background(), "d1", "f2")
	if err == nil {
		t.Fatal("expected move failure")
	}

	after, _ := s.Store().Get("d1")
	if !reflect.DeepEqual(before, after) {
		t.Errorf("rollback differs:\n before %+v\n after  %+v", before, after)
	}
	if !reflect.DeepEqual(orderBefore, s.Store().ChildrenOf("f1")) {
		t.Error("sibling order changed across rollback")
	}
}

func TestMoveValidationRunsBeforeRemoteCall(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	tests := []struct {
		name   string
		node   string
		target string
	}{
		{"into itself", "f1", "f1"},
		{"into a document", "f2", "d1"},
		{"into own descendant", "f1", "f2"},
		{"unknown node", "ghost", "f1"},
		{"unknown target", "d1", "ghost"},
	}
	for _, tt := range tests {
		err := s.Move(context.Background(), tt.node, tt.target)
		if _, ok := AsValidation(err); !ok {
			t.Errorf("%s: err = %v, want validation error", tt.name, err)
		}
	}
	if gw.callCount("move") != 0 {
		t.Errorf("remote move issued %d times for invalid requests", gw.callCount("move"))
	}
}

func TestMoveSameParentIsNoOp(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	if err := s.Move(context.Background(), "d1", "f1"); err != nil {
		t.Fatalf("same-parent move: %v", err)
	}
	if gw.callCount("move") != 0 {
		t.Error("same-parent move reached the gateway")
	}
}

func TestMoveToRoot(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	if err := s.Move(context.Background(), "d1", models.RootID); err != nil {
		t.Fatalf("Move to root: %v", err)
	}
	n, _ := s.Store().Get("d1")
	if n.ParentID != models.RootID {
		t.Errorf("parent = %s, want root", n.ParentID)
	}
}

func TestConcurrentMoveOfSameNodeRejected(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	gw.moveStarted = make(chan struct{}, 1)
	gw.moveGate = make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.Move(context.Background(), "d1", "f2")
	}()
	<-gw.moveStarted

	if err := s.Move(context.Background(), "d1", models.RootID); !errors.Is(err, ErrBusy) {
		t.Errorf("second move err = %v, want ErrBusy", err)
	}

	close(gw.moveGate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first move: %v", err)
	}

	// The pending flag clears once the move settles.
	if err := s.Move(context.Background(), "d1", models.RootID); err != nil {
		t.Errorf("move after settle: %v", err)
	}
}

func TestRenameFixesBreadcrumbInPlace(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	if err := s.RenameFolder(context.Background(), "f1", "Renamed"); err != nil {
		t.Fatal(err)
	}
	crumbs := s.Breadcrumbs()
	if crumbs[0].Name != "Renamed" {
		t.Errorf("crumb name = %s", crumbs[0].Name)
	}
	n, _ := s.Store().Get("f1")
	if n.Name != "Renamed" {
		t.Errorf("node name = %s", n.Name)
	}
}

func TestRenameRollbackOnRemoteFailure(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)
	gw.renameErr = &gateway.ConflictError{Op: "rename", Reason: "name taken"}

	if err := s.RenameFolder(context.Background(), "f1", "Taken"); err == nil {
		t.Fatal("expected rename failure")
	}
	n, _ := s.Store().Get("f1")
	if n.Name != "Projects" {
		t.Errorf("name after rollback = %s", n.Name)
	}
	if got := s.Breadcrumbs()[0].Name; got != "Projects" {
		t.Errorf("crumb after rollback = %s", got)
	}
}

func TestRenameToSameNameIsNoOp(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	if err := s.RenameFolder(context.Background(), "f1", "  Projects  "); err != nil {
		t.Fatal(err)
	}
	if gw.callCount("rename") != 0 {
		t.Error("no-op rename reached the gateway")
	}
}

func TestDeleteFolderInsideCurrentNavigatesToRoot(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)
	if err := s.EnterFolder(context.Background(), "f2", "Archive"); err != nil {
		t.Fatal(err)
	}
	s.Select("d1")

	// The server's root listing no longer includes the deleted folder.
	gw.setListing(models.RootID, nil, nil)

	if err := s.DeleteFolder(context.Background(), "f1"); err != nil {
		t.Fatal(err)
	}

	if got := s.CurrentFolder(); got != models.RootID {
		t.Errorf("current = %s, want root", got)
	}
	if got := len(s.Breadcrumbs()); got != 0 {
		t.Errorf("crumbs = %d, want 0", got)
	}
	for _, id := range []string{"f1", "f2", "d1"} {
		if _, ok := s.Store().Get(id); ok {
			t.Errorf("%s survived the cascade", id)
		}
	}
	if got := s.Selected(); got != "" {
		t.Errorf("selection = %q, want cleared", got)
	}
}

func TestDeleteFolderElsewhereKeepsNavigation(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	if err := s.DeleteFolder(context.Background(), "f2"); err != nil {
		t.Fatal(err)
	}
	if got := s.CurrentFolder(); got != "f1" {
		t.Errorf("current = %s, want f1", got)
	}
	if got := len(s.Breadcrumbs()); got != 1 {
		t.Errorf("crumbs = %d, want 1", got)
	}
}

func TestDeleteFolderRemoteFailureLeavesTree(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)
	gw.deleteErr = &gateway.RemoteError{Op: "delete", Err: errors.New("timeout")}

	if err := s.DeleteFolder(context.Background(), "f2"); err == nil {
		t.Fatal("expected delete failure")
	}
	if _, ok := s.Store().Get("f2"); !ok {
		t.Error("folder removed locally despite remote failure")
	}
}

func TestDeleteDocumentClearsDetailView(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)
	s.Select("d1")

	if err := s.DeleteDocument(context.Background(), "d1"); err != nil {
		t.Fatal(err)
	}
	if got := s.Selected(); got != "" {
		t.Errorf("selection = %q, want cleared", got)
	}
	if _, ok := s.Store().Get("d1"); ok {
		t.Error("document still cached")
	}
}

func TestCreateFolderUsesServerAssignedID(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	id, err := s.CreateFolder(context.Background(), "Reports", "f1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "srv-Reports" {
		t.Errorf("id = %s", id)
	}
	n, ok := s.Store().Get(id)
	if !ok || n.ParentID != "f1" {
		t.Errorf("created node = %+v, ok = %v", n, ok)
	}

	if _, err := s.CreateFolder(context.Background(), "   ", "f1"); err == nil {
		t.Error("blank name accepted")
	}
}

func TestBackfillDocumentMeta(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	if err := s.BackfillDocumentMeta(context.Background(), "d1"); err != nil {
		t.Fatal(err)
	}
	n, _ := s.Store().Get("d1")
	if n.ContentType != "application/pdf" || n.SizeBytes != 2048 {
		t.Errorf("meta = %s/%d", n.ContentType, n.SizeBytes)
	}
}

func TestToggleFavoriteRoundTrip(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)

	if err := s.ToggleFavorite(context.Background(), "d1"); err != nil {
		t.Fatal(err)
	}
	if !s.IsFavorite("d1") {
		t.Error("toggle on did not stick")
	}
	if got := gw.favs; !reflect.DeepEqual(got, []string{"d1"}) {
		t.Errorf("server set = %v", got)
	}

	if err := s.ToggleFavorite(context.Background(), "d1"); err != nil {
		t.Fatal(err)
	}
	if s.IsFavorite("d1") {
		t.Error("toggle off did not stick")
	}
	if got := len(gw.favs); got != 0 {
		t.Errorf("server set has %d entries after untoggle", got)
	}
}

func TestToggleFavoriteRevertsOnFailure(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	gw.favErr = &gateway.RemoteError{Op: "favorites", Err: errors.New("boom")}

	if err := s.ToggleFavorite(context.Background(), "d1"); err == nil {
		t.Fatal("expected toggle failure")
	}
	if s.IsFavorite("d1") {
		t.Error("failed toggle left the local flip in place")
	}
}

func TestConcurrentToggleRejected(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	gw.favStarted = make(chan struct{}, 1)
	gw.favGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- s.ToggleFavorite(context.Background(), "d1")
	}()
	<-gw.favStarted

	if err := s.ToggleFavorite(context.Background(), "d2"); !errors.Is(err, ErrBusy) {
		t.Errorf("second toggle err = %v, want ErrBusy", err)
	}

	close(gw.favGate)
	if err := <-done; err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !s.IsFavorite("d1") {
		t.Error("first toggle lost")
	}
}

func TestRefreshFavorites(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	gw.favs = []string{"a", "b"}

	if err := s.RefreshFavorites(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.Favorites(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("favorites = %v", got)
	}
}

func TestResolveBreadcrumbsForDeepFolder(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	gw.folders = []models.Node{
		models.NewFolder("f1", "Projects", models.RootID, sessNow),
		models.NewFolder("f2", "Archive", "f1", sessNow),
		models.NewFolder("f3", "2025", "f2", sessNow),
	}

	if err := s.ResolveBreadcrumbs(context.Background(), "f3"); err != nil {
		t.Fatal(err)
	}

	crumbs := s.Breadcrumbs()
	want := []Breadcrumb{{ID: "f1", Name: "Projects"}, {ID: "f2", Name: "Archive"}, {ID: "f3", Name: "2025"}}
	if !reflect.DeepEqual(crumbs, want) {
		t.Errorf("crumbs = %+v", crumbs)
	}
	if got := s.CurrentFolder(); got != "f3" {
		t.Errorf("current = %s", got)
	}
}

func TestProjectUsesCurrentFolder(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	p := s.Project()
	if p.Total != 2 {
		t.Errorf("total = %d, want 2 (Archive + Q1.pdf)", p.Total)
	}
	rows := p.Rows()
	if rows[0].Name != "Archive" || rows[1].Name != "Q1.pdf" {
		t.Errorf("rows = %v", rows)
	}
}

func TestEventsPublishedOnMutations(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw)
	seedTree(t, gw, s)

	ch := s.Events().Subscribe()
	defer s.Events().Unsubscribe(ch)

	if err := s.Move(context.Background(), "d1", "f2"); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-ch:
		if ev.Type != "node_moved" || ev.NodeID != "d1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}
