// Package search ranks indexed images against a text query by combining
// embedding similarity with a match against the image's OCR text.
package search

import (
	"context"
	"fmt"
	"image"
)

// Result is one ranked image.
type Result struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`

	// OCRPreview is the entry's OCR text, empty when none was found.
	OCRPreview string `json:"ocr_preview,omitempty"`

	// Semantic and Lexical are the unweighted component scores.
	Semantic float64 `json:"semantic"`
	Lexical  float64 `json:"lexical"`
}

// Options adjusts a single query. Zero values fall back to the engine Config.
type Options struct {
	// Limit caps the number of results (0 = Config.Limit, which defaults to no cap).
	Limit int

	// MinScore drops results scoring below it when positive.
	MinScore float64
}

// Config holds the ranking parameters.
type Config struct {
	// SemanticWeight and LexicalWeight combine the component scores.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// ExactScore is the lexical score when the query is a substring of the
	// OCR text; TokenScore when only a whitespace token matches.
	ExactScore float64 `yaml:"exact_score" json:"exact_score"`
	TokenScore float64 `yaml:"token_score" json:"token_score"`

	// BatchSize is the number of entries scored per concurrent task.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Limit is the default result cap (0 = unlimited).
	Limit int `yaml:"limit" json:"limit"`

	// MinScore is the default threshold (0 = off).
	MinScore float64 `yaml:"min_score" json:"min_score"`
}

// DefaultConfig returns the default ranking parameters.
func DefaultConfig() Config {
	return Config{
		SemanticWeight: 0.7,
		LexicalWeight:  0.3,
		ExactScore:     1.0,
		TokenScore:     0.5,
		BatchSize:      512,
	}
}

// Validate checks the ranking parameters.
func (c Config) Validate() error {
	if c.SemanticWeight < 0 || c.LexicalWeight < 0 {
		return fmt.Errorf("weights must be non-negative (semantic=%v, lexical=%v)", c.SemanticWeight, c.LexicalWeight)
	}
	if c.SemanticWeight+c.LexicalWeight == 0 {
		return fmt.Errorf("at least one weight must be positive")
	}
	if c.TokenScore > c.ExactScore {
		return fmt.Errorf("token_score (%v) must not exceed exact_score (%v)", c.TokenScore, c.ExactScore)
	}
	if c.BatchSize < 0 || c.Limit < 0 {
		return fmt.Errorf("batch_size and limit must be non-negative")
	}
	return nil
}

// ThumbnailWarmer preloads thumbnails for displayed results.
type ThumbnailWarmer interface {
	Load(ctx context.Context, path string) (image.Image, error)
}
