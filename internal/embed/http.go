package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/tokenizer"
	"github.com/Aman-CERP/memesearch/pkg/version"
)

// HTTP inference server defaults.
const (
	DefaultEndpoint = "http://localhost:8765"
	DefaultModel    = "clip-vit-base-patch32"

	httpPoolSize = 4
)

// HTTPConfig configures HTTPProvider.
type HTTPConfig struct {
	// Endpoint is the inference server base URL.
	Endpoint string

	// Model is reported by ModelName and sent with every request.
	Model string

	// Dimensions overrides the size reported by the server (0 = ask the server).
	Dimensions int

	// Timeout bounds each request attempt.
	Timeout time.Duration

	Retry merrors.RetryConfig

	// Tokenizer encodes queries in-process; required.
	Tokenizer *tokenizer.Tokenizer

	// SkipHealthCheck skips the startup probe (for testing).
	SkipHealthCheck bool
}

type textRequest struct {
	Model         string  `json:"model"`
	InputIDs      []int64 `json:"input_ids"`
	AttentionMask []int64 `json:"attention_mask"`
}

type imageRequest struct {
	Model       string    `json:"model"`
	PixelValues []float32 `json:"pixel_values"`
	Shape       [4]int    `json:"shape"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type healthResponse struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// HTTPProvider runs the CLIP encoders on a local inference server. Queries
// are tokenized and images preprocessed in-process, so the server only sees
// model-ready tensors.
type HTTPProvider struct {
	client    *http.Client
	transport *http.Transport
	cfg       HTTPConfig
	tok       *tokenizer.Tokenizer
	dims      int

	mu     sync.RWMutex
	closed bool
}

var (
	_ Provider      = (*HTTPProvider)(nil)
	_ PixelEmbedder = (*HTTPProvider)(nil)
)

// NewHTTPProvider connects to the inference server and discovers the
// embedding size unless cfg pins it.
func NewHTTPProvider(ctx context.Context, cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.Tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = merrors.DefaultRetryConfig()
	}
	cfg.Retry.ShouldRetry = merrors.IsRetryable

	// No client-wide timeout: each attempt gets its own context deadline.
	transport := &http.Transport{
		MaxIdleConns:        httpPoolSize,
		MaxIdleConnsPerHost: httpPoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	p := &HTTPProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
		tok:       cfg.Tokenizer,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		health, err := p.health(ctx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("failed to reach inference server at %s: %w", cfg.Endpoint, err)
		}
		if p.dims == 0 {
			p.dims = health.Dimensions
		}
		if health.Model != "" && cfg.Model == DefaultModel {
			p.cfg.Model = health.Model
		}
	}
	if p.dims == 0 {
		p.dims = DefaultDimensions
	}
	return p, nil
}

func (p *HTTPProvider) health(ctx context.Context) (*healthResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Endpoint+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeNetworkUnavailable, "inference server unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("health check returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &h, nil
}

func (p *HTTPProvider) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("provider is closed")
	}
	return nil
}

// TextEmbedding tokenizes text and runs the text encoder.
func (p *HTTPProvider) TextEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := p.checkOpen(); err != nil {
		return nil, merrors.Inference("text embedding", err)
	}
	ids, mask := p.tok.EncodeWithMask(text)
	return p.post(ctx, "/embed/text", textRequest{Model: p.cfg.Model, InputIDs: ids, AttentionMask: mask})
}

// ImageEmbedding preprocesses data and runs the vision encoder.
func (p *HTTPProvider) ImageEmbedding(ctx context.Context, data []byte) ([]float32, error) {
	pixels, err := Preprocess(data)
	if err != nil {
		return nil, merrors.Inference("image preprocessing", err)
	}
	return p.PixelEmbedding(ctx, pixels)
}

// PixelEmbedding runs the vision encoder on a Preprocess result.
func (p *HTTPProvider) PixelEmbedding(ctx context.Context, pixels []float32) ([]float32, error) {
	if err := p.checkOpen(); err != nil {
		return nil, merrors.Inference("image embedding", err)
	}
	if len(pixels) != 3*InputSize*InputSize {
		return nil, merrors.Inference(fmt.Sprintf("expected %d pixel values, got %d", 3*InputSize*InputSize, len(pixels)), nil)
	}
	return p.post(ctx, "/embed/image", imageRequest{
		Model:       p.cfg.Model,
		PixelValues: pixels,
		Shape:       [4]int{1, 3, InputSize, InputSize},
	})
}

// post sends one embedding request with retries on transient failures.
func (p *HTTPProvider) post(ctx context.Context, path string, payload any) ([]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, merrors.Inference("failed to marshal request", err)
	}

	vec, err := merrors.RetryWithResult(ctx, p.cfg.Retry, func() ([]float32, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		return p.doPost(attemptCtx, path, body)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Debug("embedding_request_failed", slog.String("path", path), slog.String("error", err.Error()))
		if merrors.GetCode(err) == merrors.ErrCodeEmbeddingFailed {
			return nil, err
		}
		return nil, merrors.Inference("embedding request failed", err)
	}
	return vec, nil
}

func (p *HTTPProvider) doPost(ctx context.Context, path string, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, merrors.Inference("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, merrors.New(merrors.ErrCodeNetworkTimeout, "inference request timed out", err)
		}
		return nil, merrors.New(merrors.ErrCodeNetworkUnavailable, "inference server unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 {
			return nil, merrors.New(merrors.ErrCodeNetworkUnavailable, "inference server error", err)
		}
		return nil, merrors.Inference("inference request rejected", err)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, merrors.Inference("failed to decode response", err)
	}
	if len(out.Embedding) == 0 {
		return nil, merrors.Inference("server returned an empty embedding", nil)
	}
	if p.dims != 0 && len(out.Embedding) != p.dims {
		return nil, merrors.New(merrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("server returned %d dimensions, expected %d", len(out.Embedding), p.dims), nil)
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return Normalize(vec), nil
}

func (p *HTTPProvider) Dimensions() int   { return p.dims }
func (p *HTTPProvider) ModelName() string { return p.cfg.Model }

// Close releases pooled connections.
func (p *HTTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}
