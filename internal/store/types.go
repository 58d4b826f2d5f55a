// Package store persists the image index: one row per image path holding its
// embedding vector, extracted text and modification stamp, plus the set of
// tracked folder roots. Everything lives in one SQLite database.
package store

import (
	"context"
	"os"
	"strings"
)

// State keys for the meta table.
const (
	// StateKeyDimensions records the vector length D fixed by the first upsert.
	StateKeyDimensions = "vector_dimensions"
	// StateKeyModel records the embedding model that produced the vectors.
	StateKeyModel = "embedding_model"
)

// Entry is one indexed image.
type Entry struct {
	// Path is the absolute file path and the unique key.
	Path string

	// Vector is the L2-normalized image embedding.
	Vector []float32

	// OCRText is the extracted text, empty when none was found.
	OCRText string

	// LastModified is the file mtime in Unix nanoseconds at index time.
	LastModified int64
}

// Stats summarizes the store contents.
type Stats struct {
	Entries    int
	Roots      int
	Dimensions int
	Model      string
	SizeBytes  int64
}

// VectorStore is the persistence contract used by sync and search.
//
// Mutating operations return a StoreError on failure. Read operations return
// an empty result together with the error so callers can degrade instead of
// aborting.
type VectorStore interface {
	// Upsert inserts or replaces the entry keyed by its path.
	Upsert(ctx context.Context, e Entry) error

	// All returns a snapshot of every entry.
	All(ctx context.Context) ([]Entry, error)

	// Stamps returns path -> LastModified for every entry.
	Stamps(ctx context.Context) (map[string]int64, error)

	// DeleteByPath removes a single entry. Missing paths are not an error.
	DeleteByPath(ctx context.Context, path string) error

	// DeleteWhere removes entries under root whose path is not in keep and
	// returns the removed paths. Entries outside root are never touched.
	DeleteWhere(ctx context.Context, root string, keep map[string]struct{}) ([]string, error)

	// SetRoots replaces the tracked root set.
	SetRoots(ctx context.Context, roots []string) error

	// Roots returns the tracked roots in lexical order.
	Roots(ctx context.Context) ([]string, error)

	// ReconcileRoots replaces the root set and removes every entry that is not
	// under any of the new roots, atomically. It returns the removed paths.
	ReconcileRoots(ctx context.Context, roots []string) ([]string, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)

	// Stats returns a summary of the store.
	Stats(ctx context.Context) (Stats, error)

	// SetState and GetState access the meta key/value table.
	SetState(ctx context.Context, key, value string) error
	GetState(ctx context.Context, key string) (string, error)

	Close() error
}

// IsUnder reports whether path lies strictly inside root. Trailing separators
// on root are ignored, so "/a/" owns "/a/b.png" but not "/ab/c.png".
func IsUnder(path, root string) bool {
	root = strings.TrimRight(root, string(os.PathSeparator))
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}

// UnderAny reports whether path lies inside at least one of roots.
func UnderAny(path string, roots []string) bool {
	for _, r := range roots {
		if IsUnder(path, r) {
			return true
		}
	}
	return false
}
