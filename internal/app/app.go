// Package app is the process-scoped library context. An App owns the index
// store, the embedder, the thumbnail cache, the sync gate and the background
// services, and exposes the operations every surface (CLI, daemon, MCP) uses.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/memesearch/internal/async"
	"github.com/Aman-CERP/memesearch/internal/config"
	"github.com/Aman-CERP/memesearch/internal/embed"
	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/index"
	"github.com/Aman-CERP/memesearch/internal/ocr"
	"github.com/Aman-CERP/memesearch/internal/scanner"
	"github.com/Aman-CERP/memesearch/internal/search"
	"github.com/Aman-CERP/memesearch/internal/store"
	"github.com/Aman-CERP/memesearch/internal/telemetry"
	"github.com/Aman-CERP/memesearch/internal/thumbs"
	"github.com/Aman-CERP/memesearch/internal/watcher"
)

// Option customizes New.
type Option func(*options)

type options struct {
	embedder embed.Provider
	ocr      ocr.Provider
	logger   *slog.Logger
	noLock   bool
}

// WithEmbedder injects an embedding provider instead of building one from
// the config. The App takes ownership and closes it.
func WithEmbedder(p embed.Provider) Option {
	return func(o *options) { o.embedder = p }
}

// WithOCR injects an OCR provider instead of the configured command.
func WithOCR(p ocr.Provider) Option {
	return func(o *options) { o.ocr = p }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithoutLock skips the data-dir lock. Only for tests that open several
// Apps on one directory in sequence.
func WithoutLock() Option {
	return func(o *options) { o.noLock = true }
}

// App is the memesearch library context.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	lock     *DirLock
	store    *store.SQLiteStore
	embedder embed.Provider
	thumbs   *thumbs.Cache
	syncer   *index.Syncer
	gate     *index.Gate
	runner   *async.Runner
	searcher *search.Searcher
	stats    *telemetry.Stats

	// eligibility is the scanner's file rule, applied to watcher events.
	eligibility scanner.Filter

	// foldersMu serializes root set changes.
	foldersMu sync.Mutex
	// rootsDirty marks a root change that happened while a pass or watcher
	// batch held the gate; it may have re-added entries under a removed root.
	rootsDirty atomic.Bool

	bgMu      sync.Mutex
	bgCancel  context.CancelFunc
	bgDone    sync.WaitGroup
	scheduler *index.Scheduler
	watch     *watcher.Watcher

	closeOnce sync.Once
	closeErr  error
}

// New opens the index in cfg's data directory and wires every component.
// Background services are not running until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (a *App, err error) {
	if cfg == nil {
		return nil, merrors.New(merrors.ErrCodeConfigInvalid, "config is required", nil)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	a = &App{cfg: cfg, logger: o.logger, gate: &index.Gate{}, stats: telemetry.New(telemetry.Config{})}
	a.eligibility = (&scanner.ScanOptions{Extensions: cfg.Paths.Extensions}).Filter()
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if !o.noLock {
		lock := NewDirLock(cfg.LockPath())
		if err := lock.TryLock(); err != nil {
			return nil, err
		}
		a.lock = lock
	}

	if a.store, err = store.NewSQLiteStore(cfg.StorePath()); err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	a.embedder = o.embedder
	if a.embedder == nil {
		a.embedder, err = embed.NewProvider(ctx, EmbedOptions(cfg))
		if err != nil {
			return nil, err
		}
	}

	ocrProvider := o.ocr
	if ocrProvider == nil && cfg.OCR.Enabled {
		cmd, cerr := ocr.NewCommand(cfg.OCR.Command, cfg.OCR.Timeout)
		if cerr != nil {
			// Images are still indexed, with empty OCR text.
			a.logger.Warn("ocr_unavailable",
				slog.String("command", cfg.OCR.Command),
				slog.String("error", cerr.Error()))
		} else {
			ocrProvider = cmd
		}
	}

	a.thumbs, err = thumbs.New(cfg.ThumbnailDir(),
		thumbs.WithSize(cfg.Thumbnails.Size),
		thumbs.WithQuality(cfg.Thumbnails.Quality))
	if err != nil {
		return nil, err
	}

	a.syncer, err = index.NewSyncer(index.SyncerDependencies{
		Store:    a.store,
		Embedder: a.embedder,
		OCR:      ocrProvider,
		Thumbs:   a.thumbs,
		Logger:   a.logger,
	}, index.SyncerConfig{
		Workers:               cfg.Sync.Workers,
		Extensions:            cfg.Paths.Extensions,
		ExcludePatterns:       cfg.Paths.Exclude,
		PregenerateThumbnails: cfg.Sync.PregenerateThumbnails,
		ThumbnailRate:         cfg.Sync.ThumbnailRate,
	})
	if err != nil {
		return nil, err
	}

	a.runner = async.NewRunner(a.gate, a.syncer.Run, cfg.Paths.DataDir)
	a.runner.OnFinish = a.onPassFinished

	engine, err := search.NewEngine(a.store, a.embedder, searchConfig(cfg), search.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.searcher = search.NewSearcher(engine, a.thumbs, cfg.Search.WarmThumbnails)

	if async.HasInterruptedSync(cfg.Paths.DataDir) {
		a.logger.Info("sync_interrupted_previously",
			slog.String("data_dir", cfg.Paths.DataDir))
	}
	return a, nil
}

// EmbedOptions maps the embeddings section onto provider options.
func EmbedOptions(cfg *config.Config) embed.Options {
	return embed.Options{
		Provider:      embed.ProviderType(strings.ToLower(cfg.Embeddings.Provider)),
		Endpoint:      cfg.Embeddings.Endpoint,
		Model:         cfg.Embeddings.Model,
		Dimensions:    cfg.Embeddings.Dimensions,
		Timeout:       cfg.Embeddings.Timeout,
		TokenizerPath: cfg.Embeddings.TokenizerPath,
		VocabPath:     cfg.Embeddings.VocabPath,
		MergesPath:    cfg.Embeddings.MergesPath,
		CacheSize:     cfg.Embeddings.CacheSize,
	}
}

func searchConfig(cfg *config.Config) search.Config {
	return search.Config{
		SemanticWeight: cfg.Search.SemanticWeight,
		LexicalWeight:  cfg.Search.LexicalWeight,
		ExactScore:     cfg.Search.ExactScore,
		TokenScore:     cfg.Search.TokenScore,
		BatchSize:      cfg.Search.BatchSize,
		Limit:          cfg.Search.Limit,
		MinScore:       cfg.Search.MinScore,
	}
}

// Config returns the configuration the App was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Store returns the index store.
func (a *App) Store() store.VectorStore { return a.store }

// Progress returns the sync progress tracker.
func (a *App) Progress() *async.Progress { return a.runner.Progress() }

// ============================================================================
// Folders
// ============================================================================

// Folders returns the tracked roots in lexical order.
func (a *App) Folders(ctx context.Context) ([]string, error) {
	return a.store.Roots(ctx)
}

// SetRoots replaces the tracked roots. Paths are normalized and nested
// folders collapse into their parents.
func (a *App) SetRoots(ctx context.Context, paths []string) ([]string, error) {
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		n, err := NormalizeFolder(p)
		if err != nil {
			return nil, err
		}
		roots = append(roots, n)
	}
	roots = CollapseFolders(roots)

	a.foldersMu.Lock()
	defer a.foldersMu.Unlock()
	if err := a.applyRootsLocked(ctx, roots); err != nil {
		return nil, err
	}
	return roots, nil
}

// AddFolder tracks path. Adding a folder already inside a tracked root
// changes nothing and returns false.
func (a *App) AddFolder(ctx context.Context, path string) (bool, error) {
	folder, err := NormalizeFolder(path)
	if err != nil {
		return false, err
	}
	if err := requireDir(folder); err != nil {
		return false, err
	}

	a.foldersMu.Lock()
	defer a.foldersMu.Unlock()
	current, err := a.store.Roots(ctx)
	if err != nil {
		return false, err
	}
	roots, changed := withFolder(current, folder)
	if !changed {
		return false, nil
	}
	return true, a.applyRootsLocked(ctx, roots)
}

// RemoveFolder stops tracking path and removes its entries. Returns false
// when path was not a tracked root.
func (a *App) RemoveFolder(ctx context.Context, path string) (bool, error) {
	folder, err := NormalizeFolder(path)
	if err != nil {
		return false, err
	}

	a.foldersMu.Lock()
	defer a.foldersMu.Unlock()
	current, err := a.store.Roots(ctx)
	if err != nil {
		return false, err
	}
	roots, changed := withoutFolder(current, folder)
	if !changed {
		return false, nil
	}
	return true, a.applyRootsLocked(ctx, roots)
}

// applyRootsLocked reconciles the index to roots, retargets the watcher and
// triggers a pass. Callers hold foldersMu.
func (a *App) applyRootsLocked(ctx context.Context, roots []string) error {
	if _, err := a.syncer.ReconcileRoots(ctx, roots); err != nil {
		return err
	}

	a.bgMu.Lock()
	if a.watch != nil {
		a.watch.SetRoots(roots)
	}
	a.bgMu.Unlock()

	if !a.runner.Start() {
		a.rootsDirty.Store(true)
	}
	return nil
}

// onPassFinished runs after every pass with the gate released.
func (a *App) onPassFinished(*index.Result, error) {
	a.reconcileIfDirty()
}

// reconcileIfDirty re-applies a root change that could not start its pass
// because the gate was held, then starts that pass.
func (a *App) reconcileIfDirty() {
	if !a.rootsDirty.Swap(false) {
		return
	}

	a.foldersMu.Lock()
	defer a.foldersMu.Unlock()
	ctx := context.Background()
	roots, rerr := a.store.Roots(ctx)
	if rerr == nil {
		_, rerr = a.syncer.ReconcileRoots(ctx, roots)
	}
	if rerr != nil {
		a.logger.Warn("roots_reconcile_failed", slog.String("error", rerr.Error()))
	}
	a.runner.Start()
}

// ============================================================================
// Sync
// ============================================================================

// StartSync begins a background pass. Returns false when one is already
// running.
func (a *App) StartSync(ctx context.Context) bool {
	return a.runner.Start()
}

// IsSyncing reports whether a pass is running.
func (a *App) IsSyncing() bool {
	return a.runner.IsRunning()
}

// SyncNow runs a pass in the calling goroutine. It fails with
// ERR_505_SYNC_BUSY when a pass is already running.
func (a *App) SyncNow(ctx context.Context) (*index.Result, error) {
	return a.runner.RunNow(ctx)
}

// ============================================================================
// Search and thumbnails
// ============================================================================

// Search ranks the index against query with the configured limit and
// minimum score. A newer search cancels this one.
func (a *App) Search(ctx context.Context, query string) ([]search.Result, error) {
	return a.SearchWithOptions(ctx, query, search.Options{
		Limit:    a.cfg.Search.Limit,
		MinScore: a.cfg.Search.MinScore,
	})
}

// SearchWithOptions is Search with explicit limits.
func (a *App) SearchWithOptions(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	start := time.Now()
	results, err := a.searcher.Search(ctx, query, opts)
	// Superseded and abandoned searches are not counted.
	if !errors.Is(err, context.Canceled) {
		a.stats.Record(telemetry.Event{
			Query:   query,
			Results: len(results),
			Latency: time.Since(start),
			Failed:  err != nil,
		})
	}
	return results, err
}

// Thumbnail returns the JPEG thumbnail for an indexed image, generating it
// on a miss. Paths without an index entry fail with ERR_201_FILE_NOT_FOUND,
// so the cache only ever holds thumbnails that sync will clean up.
func (a *App) Thumbnail(ctx context.Context, path string) ([]byte, error) {
	if filepath.IsAbs(path) {
		path = filepath.Clean(path)
	}
	indexed, err := a.store.Has(ctx, path)
	if err != nil {
		return nil, err
	}
	if !indexed {
		return nil, merrors.New(merrors.ErrCodeFileNotFound, "image is not indexed", nil).
			WithDetail("path", path).
			WithSuggestion("Add its folder with: memesearch folders add <dir>")
	}
	return a.thumbs.Bytes(ctx, path)
}

// ============================================================================
// Status
// ============================================================================

// Status is a point-in-time report on the index and sync state.
type Status struct {
	Sync        async.ProgressSnapshot `json:"sync"`
	Folders     []string               `json:"folders"`
	Entries     int                    `json:"entries"`
	Dimensions  int                    `json:"dimensions"`
	Model       string                 `json:"model"`
	IndexBytes  int64                  `json:"index_bytes"`
	Thumbnails  int                    `json:"cached_thumbnails"`
	DataDir     string                 `json:"data_dir"`
	Watching    bool                   `json:"watching"`
	Interrupted bool                   `json:"interrupted_sync"`
	Searches    telemetry.Snapshot     `json:"searches"`
}

// Status reports index contents and sync progress. Store read failures are
// logged and leave the affected fields empty.
func (a *App) Status(ctx context.Context) Status {
	st := Status{
		Sync:        a.runner.Progress().Snapshot(),
		Model:       a.embedder.ModelName(),
		Dimensions:  a.embedder.Dimensions(),
		Thumbnails:  a.thumbs.Len(),
		DataDir:     a.cfg.Paths.DataDir,
		Interrupted: !a.IsSyncing() && async.HasInterruptedSync(a.cfg.Paths.DataDir),
		Searches:    a.stats.Snapshot(),
	}

	if roots, err := a.store.Roots(ctx); err == nil {
		st.Folders = roots
	} else {
		a.logger.Warn("status_roots_failed", slog.String("error", err.Error()))
	}
	if stats, err := a.store.Stats(ctx); err == nil {
		st.Entries = stats.Entries
		st.IndexBytes = stats.SizeBytes
		if stats.Dimensions > 0 {
			st.Dimensions = stats.Dimensions
		}
	} else {
		a.logger.Warn("status_stats_failed", slog.String("error", err.Error()))
	}

	a.bgMu.Lock()
	st.Watching = a.watch != nil
	a.bgMu.Unlock()
	return st
}

// ============================================================================
// Lifecycle
// ============================================================================

// Close stops background services, waits for a running pass to observe
// cancellation and releases every resource. Safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.stopBackground()

		var errs []error
		if a.runner != nil {
			a.runner.Stop()
		}
		if a.searcher != nil {
			a.searcher.Close()
		}
		if a.syncer != nil {
			a.syncer.Close()
		}
		if a.embedder != nil {
			errs = append(errs, a.embedder.Close())
		}
		if a.store != nil {
			errs = append(errs, a.store.Close())
		}
		if a.lock != nil {
			errs = append(errs, a.lock.Unlock())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
