package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/memesearch/internal/embed"
	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine scores every indexed image against a query.
type Engine struct {
	store    store.VectorStore
	embedder embed.Provider
	config   Config
	logger   *slog.Logger
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine. Zero-valued config fields take defaults.
func NewEngine(vectors store.VectorStore, embedder embed.Provider, config Config, opts ...EngineOption) (*Engine, error) {
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		store:    vectors,
		embedder: embedder,
		config:   config,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the ranking parameters in use.
func (e *Engine) Config() Config {
	return e.config
}

// Search ranks the index against query. A blank query returns no results
// without consulting the embedder. Results are ordered by score descending,
// then by path ascending.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}
	start := time.Now()

	qvec, err := e.embedder.TextEmbedding(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, merrors.New(merrors.ErrCodeSearchFailed, "failed to embed query", err)
	}

	entries, err := e.store.All(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Store read failures degrade to an empty result set.
		e.logger.Warn("search_store_read_failed", slog.String("error", err.Error()))
		return []Result{}, nil
	}

	results, err := e.score(ctx, query, qvec, entries)
	if err != nil {
		return nil, err
	}
	results = e.finish(results, opts)

	e.logger.Debug("search_complete",
		slog.Int("candidates", len(entries)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

// score computes every entry's score in concurrent batches. Cancellation is
// observed between batches.
func (e *Engine) score(ctx context.Context, query string, qvec []float32, entries []store.Entry) ([]Result, error) {
	lex := newLexicalMatcher(query, e.config.ExactScore, e.config.TokenScore)
	results := make([]Result, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < len(entries); lo += e.config.BatchSize {
		if err := gctx.Err(); err != nil {
			break
		}
		hi := min(lo+e.config.BatchSize, len(entries))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				ent := &entries[i]
				sem := Cosine(qvec, ent.Vector)
				lx := lex.Score(ent.OCRText)
				results[i] = Result{
					Path:       ent.Path,
					Score:      e.config.SemanticWeight*sem + e.config.LexicalWeight*lx,
					OCRPreview: ent.OCRText,
					Semantic:   sem,
					Lexical:    lx,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// finish applies the threshold, ordering and limit.
func (e *Engine) finish(results []Result, opts Options) []Result {
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = e.config.MinScore
	}
	if minScore > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= minScore {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Path < results[j].Path
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = e.config.Limit
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
