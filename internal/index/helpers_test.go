package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/memesearch/internal/store"
)

// fakeEmbedder derives a 4-d vector from the file bytes. Content starting
// with "bad" fails.
type fakeEmbedder struct {
	dims int

	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) TextEmbedding(ctx context.Context, text string) ([]float32, error) {
	return f.vector([]byte(text)), nil
}

func (f *fakeEmbedder) ImageEmbedding(ctx context.Context, data []byte) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if len(data) >= 3 && string(data[:3]) == "bad" {
		return nil, errors.New("cannot decode")
	}
	return f.vector(data), nil
}

func (f *fakeEmbedder) vector(data []byte) []float32 {
	dims := f.dims
	if dims == 0 {
		dims = 4
	}
	v := make([]float32, dims)
	for i, b := range data {
		v[i%dims] += float32(b)
	}
	return v
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEmbedder) Dimensions() int   { return 4 }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

// fakeThumbs records pregenerate and delete calls.
type fakeThumbs struct {
	mu           sync.Mutex
	pregenerated []string
	deleted      []string
}

func (f *fakeThumbs) Pregenerate(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pregenerated = append(f.pregenerated, path)
	return nil
}

func (f *fakeThumbs) Delete(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
}

func (f *fakeThumbs) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.deleted...)
	sort.Strings(out)
	return out
}

func (f *fakeThumbs) Pregenerated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.pregenerated...)
	sort.Strings(out)
	return out
}

// progressLog captures progress callbacks.
type progressLog struct {
	mu        sync.Mutex
	paths     []string
	fractions []float64
}

func (p *progressLog) record(path string, fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	p.fractions = append(p.fractions, fraction)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeImage(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// touch moves the file mtime forward so the next pass sees a change.
func touch(t *testing.T, path string) {
	t.Helper()
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
}

func entryPaths(t *testing.T, s store.VectorStore) []string {
	t.Helper()
	entries, err := s.All(context.Background())
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	sort.Strings(out)
	return out
}

func removeFile(path string) error { return os.Remove(path) }

func removeAll(path string) error { return os.RemoveAll(path) }
