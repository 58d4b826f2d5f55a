// Package embed maps text queries and image bytes into a shared vector space.
//
// The neural network itself lives behind Provider. This package owns the
// in-process halves of the pipeline (tokenization is in internal/tokenizer,
// image preprocessing is here), the backends that talk to a model, and the
// wrappers that serialize inference and cache query vectors.
package embed

import (
	"context"
	"math"
	"time"
)

// CLIP ViT-B/32 input geometry and normalization constants.
const (
	// InputSize is the square crop fed to the vision encoder.
	InputSize = 224

	// DefaultDimensions is the CLIP ViT-B/32 embedding size.
	DefaultDimensions = 512

	// DefaultTimeout bounds a single inference request.
	DefaultTimeout = 60 * time.Second
)

var (
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Provider produces L2-normalized embeddings for text and images in the
// same space. Implementations need not be safe for concurrent use; wrap them
// with NewSerialized before sharing.
type Provider interface {
	// TextEmbedding embeds a search query.
	TextEmbedding(ctx context.Context, text string) ([]float32, error)

	// ImageEmbedding embeds an encoded image (jpeg, png, gif, bmp, tiff, webp).
	ImageEmbedding(ctx context.Context, data []byte) ([]float32, error)

	// Dimensions returns the embedding length D.
	Dimensions() int

	// ModelName identifies the model, used for cache keys and index metadata.
	ModelName() string

	// Close releases resources.
	Close() error
}

// Normalize scales v to unit length. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
