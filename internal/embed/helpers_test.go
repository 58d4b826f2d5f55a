package embed

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// vectorMagnitude computes the L2 norm of a vector.
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// solidPNG encodes a w x h image filled with c.
func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// countingProvider records calls and the peak number of concurrent calls.
type countingProvider struct {
	delay time.Duration

	textCalls  atomic.Int32
	imageCalls atomic.Int32
	pixelCalls atomic.Int32

	mu       sync.Mutex
	inFlight int
	peak     int
}

func (p *countingProvider) enter() {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.peak {
		p.peak = p.inFlight
	}
	p.mu.Unlock()
	time.Sleep(p.delay)
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
}

func (p *countingProvider) TextEmbedding(ctx context.Context, text string) ([]float32, error) {
	p.textCalls.Add(1)
	p.enter()
	return []float32{float32(len(text)), 1}, nil
}

func (p *countingProvider) ImageEmbedding(ctx context.Context, data []byte) ([]float32, error) {
	p.imageCalls.Add(1)
	p.enter()
	return []float32{1, 0}, nil
}

func (p *countingProvider) Dimensions() int   { return 2 }
func (p *countingProvider) ModelName() string { return "counting" }
func (p *countingProvider) Close() error      { return nil }

func (p *countingProvider) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// pixelProvider additionally accepts preprocessed input.
type pixelProvider struct {
	countingProvider
	lastLen atomic.Int32
}

func (p *pixelProvider) PixelEmbedding(ctx context.Context, pixels []float32) ([]float32, error) {
	p.pixelCalls.Add(1)
	p.lastLen.Store(int32(len(pixels)))
	p.enter()
	return []float32{0, 1}, nil
}
