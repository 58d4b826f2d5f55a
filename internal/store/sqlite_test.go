package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(path string, stamp int64) Entry {
	return Entry{Path: path, Vector: []float32{1, 0, 0}, LastModified: stamp}
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

// =============================================================================
// Vector codec
// =============================================================================

func TestVectorCodec_LittleEndianNoHeader(t *testing.T) {
	blob := EncodeVector([]float32{1.0, -2.5})

	// 1.0 = 0x3F800000, stored least significant byte first.
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3F}, blob[:4])
	assert.Len(t, blob, 8)

	v, err := DecodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.0, -2.5}, v)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestIsUnder(t *testing.T) {
	tests := []struct {
		path, root string
		want       bool
	}{
		{"/a/b.png", "/a", true},
		{"/a/b.png", "/a/", true},
		{"/a/x/y/b.png", "/a", true},
		{"/ab/c.png", "/a", false},
		{"/a", "/a", false},
		{"/other/b.png", "/a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsUnder(tt.path, tt.root), "%s under %s", tt.path, tt.root)
	}
}

// =============================================================================
// Upsert / read
// =============================================================================

func TestUpsert_InsertThenReplace(t *testing.T) {
	// Given: an empty store
	s := newTestStore(t)
	ctx := context.Background()

	// When: the same path is upserted twice
	require.NoError(t, s.Upsert(ctx, Entry{Path: "/m/a.png", Vector: []float32{1, 2, 3}, OCRText: "old", LastModified: 1}))
	require.NoError(t, s.Upsert(ctx, Entry{Path: "/m/a.png", Vector: []float32{3, 2, 1}, OCRText: "new", LastModified: 2}))

	// Then: exactly one entry with the latest content exists
	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []float32{3, 2, 1}, all[0].Vector)
	assert.Equal(t, "new", all[0].OCRText)
	assert.Equal(t, int64(2), all[0].LastModified)
}

func TestUpsert_EmptyOCRStoredAsNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, entry("/m/a.png", 1)))

	var isNull bool
	require.NoError(t, s.db.QueryRow(`SELECT ocr_text IS NULL FROM embeddings`).Scan(&isNull))
	assert.True(t, isNull)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", all[0].OCRText)
}

func TestUpsert_DimensionFixedByFirstEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, entry("/m/a.png", 1)))

	err := s.Upsert(ctx, Entry{Path: "/m/b.png", Vector: []float32{1, 2}, LastModified: 1})
	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeDimensionMismatch, merrors.GetCode(err))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Dimensions)
	assert.Equal(t, 1, st.Entries)
}

func TestUpsert_RejectsInvalidEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Upsert(ctx, Entry{Vector: []float32{1}}))
	assert.Error(t, s.Upsert(ctx, Entry{Path: "/x.png"}))
}

func TestStamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, entry("/m/a.png", 10)))
	require.NoError(t, s.Upsert(ctx, entry("/m/b.png", 20)))

	stamps, err := s.Stamps(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"/m/a.png": 10, "/m/b.png": 20}, stamps)
}

func TestReads_ClosedStoreReturnEmpty(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	ctx := context.Background()

	all, err := s.All(ctx)
	assert.Error(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	stamps, err := s.Stamps(ctx)
	assert.Error(t, err)
	assert.Empty(t, stamps)

	roots, err := s.Roots(ctx)
	assert.Error(t, err)
	assert.Empty(t, roots)

	// Writes propagate a store error.
	err = s.Upsert(ctx, entry("/m/a.png", 1))
	assert.Equal(t, merrors.ErrCodeStoreWrite, merrors.GetCode(err))
}

// =============================================================================
// Scoped deletion
// =============================================================================

func TestDeleteWhere_OnlyTouchesRoot(t *testing.T) {
	// Given: entries under two roots and a sibling with a shared prefix
	s := newTestStore(t)
	ctx := context.Background()
	for _, p := range []string{"/A/x.png", "/A/sub/y.png", "/A/gone.png", "/B/z.png", "/AB/w.png"} {
		require.NoError(t, s.Upsert(ctx, entry(p, 1)))
	}

	// When: reconciling /A with only x and y still present
	keep := map[string]struct{}{"/A/x.png": {}, "/A/sub/y.png": {}}
	removed, err := s.DeleteWhere(ctx, "/A", keep)

	// Then: only /A/gone.png is removed
	require.NoError(t, err)
	assert.Equal(t, []string{"/A/gone.png"}, removed)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/A/x.png", "/A/sub/y.png", "/AB/w.png", "/B/z.png"}, paths(all))
}

func TestDeleteWhere_EmptyKeepClearsRoot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, entry("/A/x.png", 1)))
	require.NoError(t, s.Upsert(ctx, entry("/B/y.png", 1)))

	removed, err := s.DeleteWhere(ctx, "/A/", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/A/x.png"}, removed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.DeleteWhere(ctx, "", nil)
	assert.Error(t, err)
}

func TestDeleteByPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, entry("/A/x.png", 1)))

	require.NoError(t, s.DeleteByPath(ctx, "/A/x.png"))
	require.NoError(t, s.DeleteByPath(ctx, "/A/missing.png"))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =============================================================================
// Roots
// =============================================================================

func TestSetRoots_ReplacesAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetRoots(ctx, []string{"/b", "/a"}))
	require.NoError(t, s.SetRoots(ctx, []string{"/c", "/a"}))

	roots, err := s.Roots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/c"}, roots)
}

func TestReconcileRoots_PurgesOrphans(t *testing.T) {
	// Given: roots {A, B} each with entries
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetRoots(ctx, []string{"/A", "/B"}))
	for _, p := range []string{"/A/1.png", "/A/2.png", "/B/3.png"} {
		require.NoError(t, s.Upsert(ctx, entry(p, 1)))
	}

	// When: B is removed from the root set
	removed, err := s.ReconcileRoots(ctx, []string{"/A"})

	// Then: B's entries are gone, A's remain, roots updated
	require.NoError(t, err)
	assert.Equal(t, []string{"/B/3.png"}, removed)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/A/1.png", "/A/2.png"}, paths(all))

	roots, err := s.Roots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/A"}, roots)
}

func TestReconcileRoots_EmptySetClearsIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, entry("/A/1.png", 1)))

	removed, err := s.ReconcileRoots(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/A/1.png"}, removed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =============================================================================
// Persistence
// =============================================================================

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetRoots(ctx, []string{"/A"}))
	require.NoError(t, s.Upsert(ctx, Entry{Path: "/A/1.png", Vector: []float32{0.6, 0.8}, OCRText: "cat", LastModified: 42}))
	require.NoError(t, s.SetState(ctx, StateKeyModel, "clip-vit-b32"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	all, err := reopened.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "cat", all[0].OCRText)

	st, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Dimensions)
	assert.Equal(t, 1, st.Roots)
	assert.Equal(t, "clip-vit-b32", st.Model)
	assert.Positive(t, st.SizeBytes)

	// Dimension survives the reopen.
	err = reopened.Upsert(ctx, entry("/A/2.png", 1))
	assert.Equal(t, merrors.ErrCodeDimensionMismatch, merrors.GetCode(err))
}

func TestSQLiteStore_CorruptFileIsRecreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite"), 0o644))

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	kept, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err, "corrupt file is moved aside, not deleted")
	assert.Equal(t, "definitely not sqlite", string(kept))
}

func TestSQLiteStore_CorruptIndexKeepsRoots(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetRoots(ctx, []string{"/A", "/B"}))
	require.NoError(t, s.Upsert(ctx, entry("/A/x.png", 1)))
	require.NoError(t, s.Close())

	checkIntegrity = func(string) error { return errors.New("database corrupted: page 7") }
	t.Cleanup(func() { checkIntegrity = validateIntegrity })

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	roots, err := s.Roots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/A", "/B"}, roots)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "entries are rebuilt by the next sync")
	assert.FileExists(t, path+".corrupt")
}

func TestSQLiteStore_Has(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, entry("/A/x.png", 1)))

	ok, err := s.Has(ctx, "/A/x.png")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Has(ctx, "/A/y.png")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_ConcurrentUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Upsert(ctx, entry(filepath.Join("/A", string(rune('a'+i))+".png"), int64(i))))
		}(i)
	}
	wg.Wait()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}
