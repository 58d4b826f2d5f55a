package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/disintegration/imaging"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
)

// StaticModelName identifies vectors produced by StaticProvider.
const StaticModelName = "static-hash"

// Weights for text vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3

	// thumbEdge is the side of the downscaled image hashed by ImageEmbedding.
	thumbEdge = 8
)

// StaticProvider generates deterministic hash-based embeddings without a
// model. Text and image vectors do not share semantics; it exists so the
// pipeline can run offline and in tests.
type StaticProvider struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider creates a static provider producing vectors of length dims.
func NewStaticProvider(dims int) *StaticProvider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticProvider{dims: dims}
}

func (p *StaticProvider) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("provider is closed")
	}
	return nil
}

// TextEmbedding hashes lowercase word tokens and character trigrams.
func (p *StaticProvider) TextEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := p.checkOpen(); err != nil {
		return nil, merrors.Inference("static text embedding", err)
	}

	vector := make([]float32, p.dims)
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" {
		return vector, nil
	}

	for _, tok := range strings.FieldsFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		vector[hashToIndex(tok, p.dims)] += tokenWeight
	}

	runes := []rune(trimmed)
	for i := 0; i+ngramSize <= len(runes); i++ {
		vector[hashToIndex(string(runes[i:i+ngramSize]), p.dims)] += ngramWeight
	}

	return Normalize(vector), nil
}

// ImageEmbedding downsamples the image to an 8x8 color grid and projects
// the centered channel values into the vector.
func (p *StaticProvider) ImageEmbedding(ctx context.Context, data []byte) ([]float32, error) {
	if err := p.checkOpen(); err != nil {
		return nil, merrors.Inference("static image embedding", err)
	}

	img, err := Decode(data)
	if err != nil {
		return nil, merrors.Inference("static image embedding", err)
	}
	small := imaging.Resize(img, thumbEdge, thumbEdge, imaging.Box)

	vector := make([]float32, p.dims)
	for y := 0; y < thumbEdge; y++ {
		for x := 0; x < thumbEdge; x++ {
			off := y*small.Stride + x*4
			for c := 0; c < 3; c++ {
				feature := fmt.Sprintf("px:%d:%d:%d", x, y, c)
				vector[hashToIndex(feature, p.dims)] += float32(small.Pix[off+c])/255 - 0.5
			}
		}
	}
	return Normalize(vector), nil
}

func (p *StaticProvider) Dimensions() int   { return p.dims }
func (p *StaticProvider) ModelName() string { return StaticModelName }

// Close marks the provider closed.
func (p *StaticProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// hashToIndex maps a feature to a vector slot with FNV-1a.
func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}
