package search

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultWarmCount is the number of top results whose thumbnails are preloaded.
const DefaultWarmCount = 24

// Searcher serializes interactive queries: starting a search cancels the one
// still in flight. A superseded search returns context.Canceled and never
// touches the thumbnail cache.
type Searcher struct {
	engine    *Engine
	thumbs    ThumbnailWarmer
	warmCount int

	mu         sync.Mutex
	seq        uint64
	cancel     context.CancelFunc
	warmCancel context.CancelFunc
	warming    sync.WaitGroup
}

// NewSearcher wraps engine. thumbs may be nil; warmCount <= 0 uses
// DefaultWarmCount.
func NewSearcher(engine *Engine, thumbs ThumbnailWarmer, warmCount int) *Searcher {
	if warmCount <= 0 {
		warmCount = DefaultWarmCount
	}
	return &Searcher{engine: engine, thumbs: thumbs, warmCount: warmCount}
}

// Engine returns the wrapped engine.
func (s *Searcher) Engine() *Engine {
	return s.engine
}

// Search supersedes any in-flight search and runs query. On success the
// thumbnails of the top results are warmed in the background.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.supersedeLocked()
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	results, err := s.engine.Search(ctx, query, opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.seq == seq
	if current {
		s.cancel = nil
	}
	if err != nil {
		return nil, err
	}
	if !current || ctx.Err() != nil {
		return nil, context.Canceled
	}

	s.warmLocked(ctx, results)
	return results, nil
}

// supersedeLocked cancels the running search and any thumbnail warming.
func (s *Searcher) supersedeLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.warmCancel != nil {
		s.warmCancel()
		s.warmCancel = nil
	}
}

// warmLocked loads top-result thumbnails. Warming outlives the request
// context but stops when the next search starts.
func (s *Searcher) warmLocked(ctx context.Context, results []Result) {
	if s.thumbs == nil || len(results) == 0 {
		return
	}
	n := min(s.warmCount, len(results))
	paths := make([]string, n)
	for i := range paths {
		paths[i] = results[i].Path
	}

	warmCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.warmCancel = cancel
	s.warming.Add(1)
	go func() {
		defer s.warming.Done()
		defer cancel()
		for _, p := range paths {
			if warmCtx.Err() != nil {
				return
			}
			if _, err := s.thumbs.Load(warmCtx, p); err != nil {
				slog.Debug("thumbnail_warm_failed", slog.String("path", p), slog.String("error", err.Error()))
			}
		}
	}()
}

// Close cancels outstanding work and waits for thumbnail warming to stop.
func (s *Searcher) Close() {
	s.mu.Lock()
	s.supersedeLocked()
	s.mu.Unlock()
	s.warming.Wait()
}
