package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Aman-CERP/memesearch/internal/tokenizer"
)

// ProviderType selects an embedding backend.
type ProviderType string

const (
	// ProviderHTTP runs CLIP on a local inference server.
	ProviderHTTP ProviderType = "http"

	// ProviderStatic uses hash-based embeddings (offline, no semantics).
	ProviderStatic ProviderType = "static"
)

// Options configures NewProvider.
type Options struct {
	Provider   ProviderType
	Endpoint   string
	Model      string
	Dimensions int
	Timeout    time.Duration

	// TokenizerPath points at a tokenizer.json. When empty, VocabPath and
	// MergesPath are used instead.
	TokenizerPath string
	VocabPath     string
	MergesPath    string

	// CacheSize bounds the query cache; negative disables it.
	CacheSize int
}

// LoadTokenizer loads the tokenizer assets named in opts. Any failure is an
// AssetLoadError and the caller cannot continue.
func LoadTokenizer(opts Options) (*tokenizer.Tokenizer, error) {
	if opts.TokenizerPath != "" {
		return tokenizer.LoadJSON(opts.TokenizerPath)
	}
	return tokenizer.Load(opts.VocabPath, opts.MergesPath)
}

// NewProvider builds the configured backend, serializes inference and adds
// the query cache. MEMESEARCH_EMBEDDER overrides opts.Provider.
func NewProvider(ctx context.Context, opts Options) (Provider, error) {
	kind := opts.Provider
	if env := strings.ToLower(os.Getenv("MEMESEARCH_EMBEDDER")); env != "" {
		kind = ProviderType(env)
	}

	var (
		inner Provider
		err   error
	)
	switch kind {
	case ProviderStatic:
		inner = NewStaticProvider(opts.Dimensions)
	case ProviderHTTP, "":
		tok, tokErr := LoadTokenizer(opts)
		if tokErr != nil {
			return nil, tokErr
		}
		inner, err = NewHTTPProvider(ctx, HTTPConfig{
			Endpoint:   opts.Endpoint,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Timeout:    opts.Timeout,
			Tokenizer:  tok,
		})
		if err != nil {
			return nil, fmt.Errorf("%w\n\nTo fix:\n  1. Start the CLIP inference server at %s\n  2. Or run offline: MEMESEARCH_EMBEDDER=static", err, opts.Endpoint)
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", kind)
	}

	slog.Info("embedder_ready",
		slog.String("provider", string(kind)),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	var p Provider = NewSerialized(inner)
	if opts.CacheSize >= 0 {
		p = NewCachedProvider(p, opts.CacheSize)
	}
	return p, nil
}
