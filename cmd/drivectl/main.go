// drivectl - command line client and server for the paperdrive
// folder/document hierarchy.
//
// Sub-commands:
//
//	drivectl ls [flags] [folder-id]   List a folder (sorted/grouped/paged)
//	drivectl tree [folder-id]         Print the folder tree
//	drivectl mkdir -parent <id> name  Create a folder
//	drivectl mv <node-id> <folder-id> Move a node (folder-id "root" allowed)
//	drivectl rename <folder-id> name  Rename a folder
//	drivectl rm <id>                  Delete a folder (cascades) or document
//	drivectl fav <node-id>            Toggle a favorite
//	drivectl favs                     List favorites
//	drivectl serve                    Serve the drive API (postgres backend)
//	drivectl serve-metrics            Serve only the Prometheus endpoint
//
// Configuration comes from the environment; see internal/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/paperdrive/paperdrive/internal/apiserver"
	"github.com/paperdrive/paperdrive/internal/config"
	"github.com/paperdrive/paperdrive/internal/drive"
	"github.com/paperdrive/paperdrive/internal/events"
	"github.com/paperdrive/paperdrive/internal/gateway"
	"github.com/paperdrive/paperdrive/internal/gateway/httpapi"
	"github.com/paperdrive/paperdrive/internal/gateway/postgres"
	"github.com/paperdrive/paperdrive/internal/logging"
	"github.com/paperdrive/paperdrive/internal/metrics"
	"github.com/paperdrive/paperdrive/internal/view"
	"github.com/paperdrive/paperdrive/pkg/models"
	"github.com/paperdrive/paperdrive/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cmdErr error
	switch os.Args[1] {
	case "ls":
		cmdErr = cmdLs(ctx, cfg, os.Args[2:])
	case "tree":
		cmdErr = cmdTree(ctx, cfg, os.Args[2:])
	case "mkdir":
		cmdErr = cmdMkdir(ctx, cfg, os.Args[2:])
	case "mv":
		cmdErr = cmdMv(ctx, cfg, os.Args[2:])
	case "rename":
		cmdErr = cmdRename(ctx, cfg, os.Args[2:])
	case "rm":
		cmdErr = cmdRm(ctx, cfg, os.Args[2:])
	case "fav":
		cmdErr = cmdFav(ctx, cfg, os.Args[2:])
	case "favs":
		cmdErr = cmdFavs(ctx, cfg)
	case "serve":
		cmdErr = cmdServe(ctx, cfg)
	case "serve-metrics":
		cmdErr = cmdServeMetrics(ctx, cfg)
	default:
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		fmt.Fprintln(os.Stderr, "error:", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: drivectl <command> [flags] [args]
commands: ls, tree, mkdir, mv, rename, rm, fav, favs, serve, serve-metrics`)
}

// openGateway builds the configured gateway backend. The returned
// close func releases backend resources.
func openGateway(ctx context.Context, cfg *config.Config) (gateway.Gateway, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		client := httpapi.New(httpapi.Config{
			BaseURL:     cfg.ServerURL,
			Timeout:     cfg.RequestTimeout,
			RetryConfig: retry.DefaultConfig(),
			AuthToken:   cfg.AuthToken,
		})
		return client, func() {}, nil
	}
}

func newSession(gw gateway.Gateway, cfg *config.Config, viewCfg view.Config) *drive.Session {
	return drive.NewSession(drive.Config{
		Gateway:  gw,
		UserID:   cfg.UserID,
		PageSize: cfg.PageSize,
		View:     viewCfg,
	})
}

func cmdLs(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	sortKey := fs.String("sort", "name", "sort key: name, size, dateAdded, dateModified")
	sortDir := fs.String("dir", "asc", "sort direction: asc, desc")
	groupKey := fs.String("group", "none", "grouping: none, type, date")
	pages := fs.Int("pages", 1, "pages of results to show")
	fs.Parse(args)

	folderID := models.RootID
	if fs.NArg() > 0 {
		folderID = fs.Arg(0)
	}

	gw, closeGw, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGw()

	sess := newSession(gw, cfg, view.Config{
		SortKey:  view.SortKey(*sortKey),
		SortDir:  view.SortDirection(*sortDir),
		GroupKey: view.GroupKey(*groupKey),
		PageSize: cfg.PageSize,
	})

	if folderID == models.RootID {
		err = sess.NavigateToRoot(ctx)
	} else {
		err = sess.ResolveBreadcrumbs(ctx, folderID)
	}
	if err != nil {
		return err
	}
	for i := 1; i < *pages; i++ {
		sess.RevealMore()
	}
	if err := sess.RefreshFavorites(ctx); err != nil {
		logging.Warn("favorites unavailable", zap.Error(err))
	}

	if crumbs := sess.Breadcrumbs(); len(crumbs) > 0 {
		parts := make([]string, len(crumbs))
		for i, c := range crumbs {
			parts[i] = c.Name
		}
		fmt.Println("/" + strings.Join(parts, "/"))
	} else {
		fmt.Println("/")
	}

	p := sess.Project()
	for _, g := range p.Groups {
		if g.Label != "" {
			fmt.Printf("%s (%d)\n", g.Label, g.Total)
		}
		for _, n := range g.Rows {
			printNode(n, sess.IsFavorite(n.ID))
		}
	}
	if p.HasMore {
		fmt.Printf("... %d of %d shown (use -pages)\n", p.Visible, p.Total)
	}
	return nil
}

func printNode(n models.Node, favorite bool) {
	marker := " "
	if favorite {
		marker = "*"
	}
	if n.IsFolder() {
		fmt.Printf("%s %-36s  %s/\n", marker, n.ID, n.Name)
		return
	}
	size := "?"
	if n.HasKnownSize() {
		size = fmt.Sprintf("%d", n.SizeBytes)
	}
	fmt.Printf("%s %-36s  %s  %s  %s\n", marker, n.ID, n.Name, n.ContentType, size)
}

func cmdTree(ctx context.Context, cfg *config.Config, args []string) error {
	rootID := models.RootID
	if len(args) > 0 {
		rootID = args[0]
	}

	gw, closeGw, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGw()

	return printTree(ctx, gw, rootID, "")
}

func printTree(ctx context.Context, gw gateway.Gateway, folderID, indent string) error {
	listing, err := gw.ListFolderContents(ctx, folderID)
	if err != nil {
		return err
	}
	for _, f := range listing.Folders {
		fmt.Printf("%s%s/  (%s)\n", indent, f.Name, f.ID)
		if err := printTree(ctx, gw, f.ID, indent+"  "); err != nil {
			return err
		}
	}
	for _, d := range listing.Documents {
		fmt.Printf("%s%s  (%s)\n", indent, d.Name, d.ID)
	}
	return nil
}

func cmdMkdir(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("mkdir", flag.ExitOnError)
	parent := fs.String("parent", models.RootID, "parent folder id")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: drivectl mkdir [-parent id] <name>")
	}

	gw, closeGw, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGw()

	folder, err := gw.CreateFolder(ctx, fs.Arg(0), *parent)
	if err != nil {
		return err
	}
	fmt.Println(folder.ID)
	return nil
}

func cmdMv(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: drivectl mv <node-id> <target-folder-id>")
	}

	gw, closeGw, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGw()

	if err := gw.MoveNode(ctx, args[0], args[1]); err != nil {
		return err
	}
	logging.Info("moved", zap.String("node", args[0]), zap.String("target", args[1]))
	return nil
}

func cmdRename(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: drivectl rename <folder-id> <new-name>")
	}

	gw, closeGw, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGw()

	return gw.RenameFolder(ctx, args[0], args[1])
}

func cmdRm(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	document := fs.Bool("document", false, "delete a document instead of a folder")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: drivectl rm [-document] <id>")
	}

	gw, closeGw, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGw()

	if *document {
		return gw.DeleteDocument(ctx, fs.Arg(0))
	}
	// Folder deletes cascade server-side.
	return gw.DeleteFolder(ctx, fs.Arg(0))
}

func cmdFav(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: drivectl fav <node-id>")
	}

	gw, closeGw, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGw()

	sess := newSession(gw, cfg, view.Config{})
	if err := sess.RefreshFavorites(ctx); err != nil {
		return err
	}
	if err := sess.ToggleFavorite(ctx, args[0]); err != nil {
		return err
	}
	if sess.IsFavorite(args[0]) {
		fmt.Println("favorited", args[0])
	} else {
		fmt.Println("unfavorited", args[0])
	}
	return nil
}

func cmdFavs(ctx context.Context, cfg *config.Config) error {
	gw, closeGw, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGw()

	sess := newSession(gw, cfg, view.Config{})
	if err := sess.RefreshFavorites(ctx); err != nil {
		return err
	}
	for _, id := range sess.Favorites() {
		fmt.Println(id)
	}
	return nil
}

func cmdServe(ctx context.Context, cfg *config.Config) error {
	if cfg.Backend != config.BackendPostgres {
		return fmt.Errorf("serve requires DRIVE_BACKEND=postgres")
	}

	store, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	broadcaster := events.NewBroadcaster()
	srv := apiserver.New(store, broadcaster, cfg.AuthToken)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Handler()}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		logging.Info("shutting down...")
		httpServer.Close()
		if metricsServer != nil {
			metricsServer.Close()
		}
	}()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.UpdateConnectionMetrics()
			}
		}
	}()

	logging.Info("drive API listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func cmdServeMetrics(ctx context.Context, cfg *config.Config) error {
	addr := cfg.MetricsAddr
	if addr == "" {
		addr = ":9090"
	}

	server := &http.Server{Addr: addr, Handler: metrics.Handler()}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	logging.Info("metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
