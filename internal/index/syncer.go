package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/Aman-CERP/memesearch/internal/embed"
	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/ocr"
	"github.com/Aman-CERP/memesearch/internal/scanner"
	"github.com/Aman-CERP/memesearch/internal/store"
)

// ProgressFunc receives the file being processed and the fraction of the pass
// completed. Fractions never decrease; the last call of a completed pass is
// ("", 1.0).
type ProgressFunc func(currentPath string, fraction float64)

// Thumbnailer is the part of the thumbnail cache the sync pass drives.
type Thumbnailer interface {
	Pregenerate(ctx context.Context, path string) error
	Delete(path string)
}

// SyncerConfig tunes a Syncer.
type SyncerConfig struct {
	// Workers bounds concurrent file reads, preprocessing and OCR (0 = NumCPU/2).
	Workers int

	// Extensions and ExcludePatterns are passed to the scanner.
	Extensions      []string
	ExcludePatterns []string

	// PregenerateThumbnails renders the thumbnail of every (re)indexed image.
	PregenerateThumbnails bool

	// ThumbnailRate caps thumbnail pregeneration per second (0 = unlimited).
	ThumbnailRate float64
}

// SyncerDependencies contains the injected collaborators.
type SyncerDependencies struct {
	Store    store.VectorStore // required
	Embedder embed.Provider    // required
	OCR      ocr.Provider      // optional, nil disables OCR
	Thumbs   Thumbnailer       // optional
	Logger   *slog.Logger
}

// Result summarizes one sync pass.
type Result struct {
	Roots        int           `json:"roots"`
	MissingRoots int           `json:"missing_roots"`
	Scanned      int           `json:"scanned"`
	Indexed      int           `json:"indexed"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Removed      int           `json:"removed"`
	OCRFailures  int           `json:"ocr_failures"`
	Duration     time.Duration `json:"duration"`
}

// Syncer runs incremental sync passes over the tracked roots.
type Syncer struct {
	store    store.VectorStore
	embedder embed.Provider
	ocr      ocr.Provider
	thumbs   Thumbnailer
	scanner  *scanner.Scanner
	pool     *ants.Pool
	limiter  *rate.Limiter
	cfg      SyncerConfig
	logger   *slog.Logger
}

// NewSyncer creates a Syncer. Call Close to release its worker pool.
func NewSyncer(deps SyncerDependencies, cfg SyncerConfig) (*Syncer, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
	}
	if workers < 1 {
		workers = 1
	}
	cfg.Workers = workers

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.ThumbnailRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ThumbnailRate), 1)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Syncer{
		store:    deps.Store,
		embedder: deps.Embedder,
		ocr:      deps.OCR,
		thumbs:   deps.Thumbs,
		scanner:  scanner.New(),
		pool:     pool,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Close releases the worker pool.
func (s *Syncer) Close() {
	s.pool.Release()
}

// rootFiles is the scan result of one reachable root.
type rootFiles struct {
	root       string
	files      []scanner.FileInfo
	unreadable []string
}

// passState is shared by the workers of one pass.
type passState struct {
	stamps   map[string]int64
	progress ProgressFunc

	mu    sync.Mutex
	done  int
	total int

	indexed, skipped, failed, ocrFailures atomic.Int32

	storeErrOnce sync.Once
	storeErr     error
}

func (p *passState) advance(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if p.progress != nil && p.total > 0 {
		p.progress(path, float64(p.done)/float64(p.total))
	}
}

// Run performs one pass over every tracked root. Missing roots are skipped.
// Per-file failures are logged and counted; only store write failures and
// cancellation abort the pass.
func (s *Syncer) Run(ctx context.Context, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	result := &Result{}

	roots, err := s.store.Roots(ctx)
	if err != nil {
		return result, err
	}
	result.Roots = len(roots)

	// Enumerate everything first so the fraction spans all roots.
	var work []rootFiles
	total := 0
	for _, root := range roots {
		listing, err := s.scanner.List(ctx, s.scanOptions(root))
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.MissingRoots++
			s.logger.Warn("sync_root_skipped",
				slog.String("root", root),
				slog.String("error", err.Error()))
			continue
		}
		if len(listing.Unreadable) > 0 {
			s.logger.Warn("sync_paths_unreadable",
				slog.String("root", root),
				slog.Int("count", len(listing.Unreadable)),
				slog.String("first", listing.Unreadable[0]))
		}
		work = append(work, rootFiles{root: root, files: listing.Files, unreadable: listing.Unreadable})
		total += len(listing.Files)
	}
	result.Scanned = total

	stamps, err := s.store.Stamps(ctx)
	if err != nil {
		return result, err
	}

	state := &passState{stamps: stamps, progress: progress, total: total}
	for _, rf := range work {
		removed, err := s.syncRoot(ctx, rf, state)
		result.Removed += removed
		if err != nil {
			s.fillResult(result, state, start)
			return result, err
		}
	}

	s.fillResult(result, state, start)
	if progress != nil {
		progress("", 1.0)
	}

	s.logger.Info("sync_pass_complete",
		slog.Int("roots", result.Roots),
		slog.Int("scanned", result.Scanned),
		slog.Int("indexed", result.Indexed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Int("removed", result.Removed),
		slog.Duration("duration", result.Duration))
	return result, nil
}

func (s *Syncer) scanOptions(root string) *scanner.ScanOptions {
	return &scanner.ScanOptions{
		RootDir:         root,
		Extensions:      s.cfg.Extensions,
		ExcludePatterns: s.cfg.ExcludePatterns,
	}
}

func (s *Syncer) fillResult(r *Result, st *passState, start time.Time) {
	r.Indexed = int(st.indexed.Load())
	r.Skipped = int(st.skipped.Load())
	r.Failed = int(st.failed.Load())
	r.OCRFailures = int(st.ocrFailures.Load())
	r.Duration = time.Since(start)
}

// syncRoot processes the files of one root and then removes entries under the
// root that no longer exist on disk. Entries at or below a path the scan
// could not read are kept.
func (s *Syncer) syncRoot(ctx context.Context, rf rootFiles, state *passState) (int, error) {
	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	keep := make(map[string]struct{}, len(rf.files))
	var wg sync.WaitGroup
	for _, f := range rf.files {
		keep[f.Path] = struct{}{}

		file := f
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if rootCtx.Err() != nil {
				return
			}
			if err := s.processFile(rootCtx, file, state); err != nil {
				state.storeErrOnce.Do(func() {
					state.storeErr = err
					cancel()
				})
				return
			}
			state.advance(file.Path)
		})
		if err != nil {
			wg.Done()
			cancel()
			wg.Wait()
			return 0, fmt.Errorf("failed to schedule %s: %w", file.Path, err)
		}
	}
	wg.Wait()

	if state.storeErr != nil {
		return 0, state.storeErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	keepUnreadable(keep, state.stamps, rf.unreadable)

	removed, err := s.store.DeleteWhere(ctx, rf.root, keep)
	if err != nil {
		return 0, err
	}
	s.dropThumbnails(removed)
	if len(removed) > 0 {
		s.logger.Info("sync_removed_missing",
			slog.String("root", rf.root),
			slog.Int("count", len(removed)))
	}
	return len(removed), nil
}

// keepUnreadable adds to keep every stamped path at or below an unreadable one.
func keepUnreadable(keep map[string]struct{}, stamps map[string]int64, unreadable []string) {
	if len(unreadable) == 0 {
		return
	}
	for p := range stamps {
		for _, u := range unreadable {
			if p == u || store.IsUnder(p, u) {
				keep[p] = struct{}{}
				break
			}
		}
	}
}

// processFile indexes one file unless its stamp is unchanged. The returned
// error is non-nil only for store write failures.
func (s *Syncer) processFile(ctx context.Context, f scanner.FileInfo, state *passState) error {
	stamp := f.ModTime.UnixNano()
	if old, ok := state.stamps[f.Path]; ok && old == stamp {
		state.skipped.Add(1)
		return nil
	}

	indexed, err := s.importFile(ctx, f.Path, stamp, &state.ocrFailures)
	if err != nil {
		return err
	}
	if indexed {
		state.indexed.Add(1)
	} else {
		state.failed.Add(1)
	}
	return nil
}

// importFile embeds one file and writes its entry. It reports false, nil when
// the file was skipped because it could not be read or embedded.
func (s *Syncer) importFile(ctx context.Context, path string, stamp int64, ocrFailures *atomic.Int32) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = merrors.TransientIO(path, err)
		s.logger.Warn("sync_read_failed", merrors.LogAttrs(err)...)
		return false, nil
	}

	vec, err := s.embedder.ImageEmbedding(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		s.logger.Warn("sync_embed_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return false, nil
	}

	text, err := ocr.Safe(ctx, s.ocr, path, data)
	if err != nil {
		if ocrFailures != nil {
			ocrFailures.Add(1)
		}
		s.logger.Debug("sync_ocr_failed", merrors.LogAttrs(err)...)
	}

	if err := s.store.Upsert(ctx, store.Entry{
		Path:         path,
		Vector:       vec,
		OCRText:      text,
		LastModified: stamp,
	}); err != nil {
		return false, err
	}

	s.pregenerate(ctx, path)
	return true, nil
}

// pregenerate renders the thumbnail of a freshly indexed file. Failures and
// cancellation are only logged.
func (s *Syncer) pregenerate(ctx context.Context, path string) {
	if s.thumbs == nil || !s.cfg.PregenerateThumbnails {
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	if err := s.thumbs.Pregenerate(ctx, path); err != nil {
		s.logger.Debug("thumbnail_pregenerate_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// ImportFile indexes a single file immediately, regardless of its stamp.
// Files outside every tracked root, excluded by a pattern or ignore file, or
// failing the scan's eligibility rule are rejected; an existing entry for an
// ineligible file is removed so a later pass agrees.
func (s *Syncer) ImportFile(ctx context.Context, path string) error {
	filter := s.scanOptions("").Filter()
	if !filter.HasExtension(path) {
		return merrors.New(merrors.ErrCodeInvalidPath, "not a supported image", nil).WithDetail("path", path)
	}
	roots, err := s.store.Roots(ctx)
	if err != nil {
		return err
	}
	root := ""
	for _, r := range roots {
		if store.IsUnder(path, r) {
			root = r
			break
		}
	}
	if root == "" {
		return merrors.New(merrors.ErrCodeInvalidPath, "file is not inside a tracked folder", nil).WithDetail("path", path)
	}
	if scanner.Excluded(root, path, s.cfg.ExcludePatterns) {
		return merrors.New(merrors.ErrCodeInvalidPath, "file is excluded from indexing", nil).WithDetail("path", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return merrors.TransientIO(path, err)
	}
	if !filter.Eligible(path, info) {
		if err := s.RemoveFile(ctx, path); err != nil {
			return err
		}
		return merrors.New(merrors.ErrCodeInvalidPath, "file is empty, too large or not a regular file", nil).WithDetail("path", path)
	}
	indexed, err := s.importFile(ctx, path, info.ModTime().UnixNano(), nil)
	if err != nil {
		return err
	}
	if !indexed {
		return merrors.New(merrors.ErrCodeEmbeddingFailed, "file could not be indexed", nil).WithDetail("path", path)
	}
	return nil
}

// RemoveFile drops the entry for path and its thumbnail.
func (s *Syncer) RemoveFile(ctx context.Context, path string) error {
	if err := s.store.DeleteByPath(ctx, path); err != nil {
		return err
	}
	s.dropThumbnails([]string{path})
	return nil
}

// ReconcileRoots replaces the tracked root set and removes, in one
// transaction, every entry not under a remaining root. Thumbnails of removed
// entries are dropped afterwards. It must run before the next pass after a
// root set change.
func (s *Syncer) ReconcileRoots(ctx context.Context, roots []string) ([]string, error) {
	removed, err := s.store.ReconcileRoots(ctx, roots)
	if err != nil {
		return nil, err
	}
	s.dropThumbnails(removed)
	s.logger.Info("roots_reconciled",
		slog.Int("roots", len(roots)),
		slog.Int("removed", len(removed)))
	return removed, nil
}

func (s *Syncer) dropThumbnails(paths []string) {
	if s.thumbs == nil {
		return
	}
	for _, p := range paths {
		s.thumbs.Delete(p)
	}
}
