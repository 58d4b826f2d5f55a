package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memesearch/internal/app"
	"github.com/Aman-CERP/memesearch/internal/async"
	"github.com/Aman-CERP/memesearch/internal/config"
	"github.com/Aman-CERP/memesearch/internal/daemon"
	"github.com/Aman-CERP/memesearch/internal/search"
	"github.com/Aman-CERP/memesearch/internal/ui"
)

// backend is what CLI commands need from memesearch. It is served by the
// daemon when one is running and by an in-process App otherwise; only one
// process may own a data dir at a time.
type backend interface {
	Config() *config.Config
	Folders(ctx context.Context) ([]string, error)
	SetRoots(ctx context.Context, paths []string) ([]string, error)
	AddFolder(ctx context.Context, path string) (bool, error)
	RemoveFolder(ctx context.Context, path string) (bool, error)
	StartSync(ctx context.Context) bool
	Poll(ctx context.Context) (async.ProgressSnapshot, error)
	SearchWithOptions(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	Status(ctx context.Context) app.Status
	StatusInfo(ctx context.Context) (ui.StatusInfo, error)
	Thumbnail(ctx context.Context, path string) ([]byte, error)
	Close() error
}

// openBackend connects to the daemon for cfg's data dir, or opens the
// index in process when no daemon answers.
func openBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	client := daemon.NewClient(daemon.ConfigFrom(cfg))
	if client.IsRunning() {
		slog.Debug("backend_daemon", slog.String("socket", cfg.SocketPath()))
		return &remoteBackend{client: client, cfg: cfg}, nil
	}

	slog.Debug("backend_local", slog.String("data_dir", cfg.Paths.DataDir))
	a, err := app.New(ctx, cfg, app.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	return &localBackend{App: a}, nil
}

// ============================================================================
// In-process
// ============================================================================

type localBackend struct {
	*app.App
}

func (b *localBackend) Poll(context.Context) (async.ProgressSnapshot, error) {
	return b.Progress().Snapshot(), nil
}

func (b *localBackend) StatusInfo(ctx context.Context) (ui.StatusInfo, error) {
	return ui.StatusInfo{Status: b.Status(ctx)}, nil
}

// ============================================================================
// Daemon
// ============================================================================

// remoteBackend forwards to the daemon over its socket. It also satisfies
// the MCP server's backend, so an MCP session can share a running daemon.
type remoteBackend struct {
	client *daemon.Client
	cfg    *config.Config
}

func (b *remoteBackend) Config() *config.Config { return b.cfg }

func (b *remoteBackend) Folders(ctx context.Context) ([]string, error) {
	return b.client.Folders(ctx)
}

func (b *remoteBackend) SetRoots(ctx context.Context, paths []string) ([]string, error) {
	return b.client.SetRoots(ctx, paths)
}

func (b *remoteBackend) AddFolder(ctx context.Context, path string) (bool, error) {
	res, err := b.client.AddFolder(ctx, path)
	if err != nil {
		return false, err
	}
	return res.Changed, nil
}

func (b *remoteBackend) RemoveFolder(ctx context.Context, path string) (bool, error) {
	res, err := b.client.RemoveFolder(ctx, path)
	if err != nil {
		return false, err
	}
	return res.Changed, nil
}

func (b *remoteBackend) StartSync(ctx context.Context) bool {
	started, err := b.client.StartSync(ctx)
	if err != nil {
		slog.Warn("daemon_start_sync_failed", slog.String("error", err.Error()))
		return false
	}
	return started
}

func (b *remoteBackend) Poll(ctx context.Context) (async.ProgressSnapshot, error) {
	res, err := b.client.Status(ctx)
	if err != nil {
		return async.ProgressSnapshot{}, err
	}
	return res.Sync, nil
}

func (b *remoteBackend) SearchWithOptions(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	res, err := b.client.Search(ctx, daemon.SearchParams{
		Query:    query,
		Limit:    opts.Limit,
		MinScore: opts.MinScore,
		Explain:  true,
	})
	if err != nil {
		return nil, err
	}
	results := make([]search.Result, len(res))
	for i, r := range res {
		results[i] = search.Result{Path: r.Path, Score: r.Score, OCRPreview: r.OCRPreview}
		if r.Semantic != nil {
			results[i].Semantic = *r.Semantic
		}
		if r.Lexical != nil {
			results[i].Lexical = *r.Lexical
		}
	}
	return results, nil
}

// Status reports an unreachable daemon as a sync error rather than failing,
// matching the in-process Status which never fails.
func (b *remoteBackend) Status(ctx context.Context) app.Status {
	res, err := b.client.Status(ctx)
	if err != nil {
		return app.Status{
			DataDir: b.cfg.Paths.DataDir,
			Sync:    async.ProgressSnapshot{Status: string(async.StatusError), ErrorMessage: err.Error()},
		}
	}
	return res.Status
}

func (b *remoteBackend) StatusInfo(ctx context.Context) (ui.StatusInfo, error) {
	res, err := b.client.Status(ctx)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	return ui.StatusInfo{
		Status: res.Status,
		Daemon: &ui.DaemonInfo{PID: res.PID, Uptime: res.Uptime, Socket: b.cfg.SocketPath()},
	}, nil
}

func (b *remoteBackend) Thumbnail(ctx context.Context, path string) ([]byte, error) {
	return b.client.Thumbnail(ctx, path)
}

func (b *remoteBackend) Close() error { return nil }

// withBackend loads the config, opens a backend for the command and closes
// it when fn returns.
func (g *globalFlags) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b backend) error) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			slog.Warn("backend_close_failed", slog.String("error", cerr.Error()))
		}
	}()
	return fn(ctx, b)
}
