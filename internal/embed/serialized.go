package embed

import (
	"context"
	"sync"
)

// PixelEmbedder is implemented by providers whose image path accepts the
// already preprocessed CLIP input (see Preprocess).
type PixelEmbedder interface {
	PixelEmbedding(ctx context.Context, pixels []float32) ([]float32, error)
}

// Serialized guards a Provider with one mutex shared by text and image
// inference, so the model runs at most one forward pass at a time.
// When the inner provider is a PixelEmbedder, decoding and preprocessing
// happen before the lock is taken and may run concurrently.
type Serialized struct {
	mu    sync.Mutex
	inner Provider
}

var _ Provider = (*Serialized)(nil)

// NewSerialized wraps p. Wrapping an already serialized provider is a no-op.
func NewSerialized(p Provider) *Serialized {
	if s, ok := p.(*Serialized); ok {
		return s
	}
	return &Serialized{inner: p}
}

// TextEmbedding runs a text forward pass under the inference lock.
func (s *Serialized) TextEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.TextEmbedding(ctx, text)
}

// ImageEmbedding runs an image forward pass under the inference lock.
func (s *Serialized) ImageEmbedding(ctx context.Context, data []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if pe, ok := s.inner.(PixelEmbedder); ok {
		pixels, err := Preprocess(data)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return pe.PixelEmbedding(ctx, pixels)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.ImageEmbedding(ctx, data)
}

func (s *Serialized) Dimensions() int   { return s.inner.Dimensions() }
func (s *Serialized) ModelName() string { return s.inner.ModelName() }

// Close waits for any in-flight inference before closing the inner provider.
func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}

// Inner returns the wrapped provider.
func (s *Serialized) Inner() Provider {
	return s.inner
}
