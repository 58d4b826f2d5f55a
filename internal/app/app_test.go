package app

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/memesearch/internal/config"
	"github.com/Aman-CERP/memesearch/internal/embed"
	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/scanner"
	"github.com/Aman-CERP/memesearch/internal/watcher"
)

// ============================================================================
// Helpers
// ============================================================================

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 16
	cfg.OCR.Enabled = false
	cfg.Sync.Watch = false
	cfg.Sync.PregenerateThumbnails = false
	cfg.Sync.Workers = 2
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithEmbedder(embed.NewStaticProvider(cfg.Embeddings.Dimensions))}, opts...)
	a, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writePNG(t *testing.T, dir, name string, c color.Color) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return p
}

func entryCount(t *testing.T, a *App) int {
	t.Helper()
	n, err := a.store.Count(context.Background())
	require.NoError(t, err)
	return n
}

// ============================================================================
// Folder rules
// ============================================================================

func TestCollapseFolders(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"duplicates", []string{"/a", "/a"}, []string{"/a"}},
		{"child dropped", []string{"/m/cats", "/m"}, []string{"/m"}},
		{"siblings kept", []string{"/m/dogs", "/m/cats"}, []string{"/m/cats", "/m/dogs"}},
		{"prefix is not parent", []string{"/mem", "/memes"}, []string{"/mem", "/memes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollapseFolders(tt.in))
		})
	}
}

func TestWithFolder(t *testing.T) {
	roots, changed := withFolder([]string{"/m"}, "/m/cats")
	assert.False(t, changed, "folder inside a tracked root is a no-op")
	assert.Equal(t, []string{"/m"}, roots)

	roots, changed = withFolder([]string{"/m/cats", "/m/dogs", "/x"}, "/m")
	assert.True(t, changed)
	assert.Equal(t, []string{"/m", "/x"}, roots, "parent replaces tracked children")

	roots, changed = withoutFolder([]string{"/m", "/x"}, "/x")
	assert.True(t, changed)
	assert.Equal(t, []string{"/m"}, roots)

	_, changed = withoutFolder([]string{"/m"}, "/m/cats")
	assert.False(t, changed)
}

func TestNormalizeFolder(t *testing.T) {
	got, err := NormalizeFolder("/m/cats/../dogs/")
	require.NoError(t, err)
	assert.Equal(t, "/m/dogs", got)

	_, err = NormalizeFolder("")
	assert.Equal(t, merrors.ErrCodeInvalidPath, merrors.GetCode(err))
}

// ============================================================================
// Library operations
// ============================================================================

func TestApp_SetRootsSyncsAndSearches(t *testing.T) {
	// Given: a folder with two images
	root := t.TempDir()
	red := writePNG(t, root, "red.png", color.RGBA{255, 0, 0, 255})
	blue := writePNG(t, root, "sub/blue.png", color.RGBA{0, 0, 255, 255})
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()

	// When: the roots are set
	roots, err := a.SetRoots(ctx, []string{root, filepath.Join(root, "sub")})
	require.NoError(t, err)
	assert.Equal(t, []string{root}, roots)
	a.runner.Wait()

	// Then: both images are indexed and searchable
	assert.Equal(t, 2, entryCount(t, a))
	results, err := a.Search(ctx, "red")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []string{red, blue}, []string{results[0].Path, results[1].Path})
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	folders, err := a.Folders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{root}, folders)

	st := a.Status(ctx)
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, 16, st.Dimensions)
	assert.Equal(t, "ready", st.Sync.Status)
	assert.False(t, st.Watching)
	assert.Equal(t, int64(1), st.Searches.Searches)
	require.NotEmpty(t, st.Searches.TopTerms)
	assert.Equal(t, "red", st.Searches.TopTerms[0].Term)
}

func TestApp_BlankQueryReturnsNothing(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	results, err := a.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestApp_AddAndRemoveFolder(t *testing.T) {
	base := t.TempDir()
	cats := filepath.Join(base, "cats")
	writePNG(t, cats, "a.png", color.RGBA{10, 200, 10, 255})
	writePNG(t, base, "b.png", color.RGBA{200, 10, 10, 255})
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()

	added, err := a.AddFolder(ctx, cats)
	require.NoError(t, err)
	assert.True(t, added)
	a.runner.Wait()
	assert.Equal(t, 1, entryCount(t, a))

	// Adding the parent replaces the child root.
	added, err = a.AddFolder(ctx, base)
	require.NoError(t, err)
	assert.True(t, added)
	a.runner.Wait()
	folders, err := a.Folders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{base}, folders)
	assert.Equal(t, 2, entryCount(t, a))

	// The child is now covered.
	added, err = a.AddFolder(ctx, cats)
	require.NoError(t, err)
	assert.False(t, added)

	removed, err := a.RemoveFolder(ctx, base)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, entryCount(t, a), "entries are removed with their root")
	a.runner.Wait()

	removed, err = a.RemoveFolder(ctx, base)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestApp_AddFolderRejectsMissingDirectory(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	_, err := a.AddFolder(context.Background(), filepath.Join(t.TempDir(), "gone"))
	assert.Equal(t, merrors.ErrCodeRootMissing, merrors.GetCode(err))
}

func TestApp_SyncNowWhileBusy(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	require.True(t, a.gate.TryBegin())
	defer a.gate.End()

	assert.True(t, a.IsSyncing())
	assert.False(t, a.StartSync(context.Background()))
	_, err := a.SyncNow(context.Background())
	assert.Equal(t, merrors.ErrCodeSyncBusy, merrors.GetCode(err))
}

func TestApp_Thumbnail(t *testing.T) {
	root := t.TempDir()
	p := writePNG(t, root, "x.png", color.RGBA{1, 2, 3, 255})
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()
	_, err := a.SetRoots(ctx, []string{root})
	require.NoError(t, err)
	a.runner.Wait()

	data, err := a.Thumbnail(ctx, p)
	require.NoError(t, err)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "JPEG magic")
}

func TestApp_ThumbnailRequiresIndexedImage(t *testing.T) {
	outside := writePNG(t, t.TempDir(), "outside.png", color.RGBA{1, 2, 3, 255})
	a := newTestApp(t, testConfig(t))

	_, err := a.Thumbnail(context.Background(), outside)
	assert.Equal(t, merrors.ErrCodeFileNotFound, merrors.GetCode(err))

	_, err = os.Stat(a.thumbs.FilePath(outside))
	assert.True(t, os.IsNotExist(err), "nothing is cached for unindexed images")
	assert.Zero(t, a.thumbs.Len())
}

func TestApp_DataDirLock(t *testing.T) {
	cfg := testConfig(t)
	newTestApp(t, cfg)

	_, err := New(context.Background(), cfg, WithEmbedder(embed.NewStaticProvider(16)))
	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeDataDirLocked, merrors.GetCode(err))
}

func TestApp_LockReleasedOnClose(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "Close is idempotent")

	b := newTestApp(t, cfg)
	assert.True(t, b.lock.IsLocked())
}

// ============================================================================
// Watcher batches
// ============================================================================

func TestApp_HandleBatchAppliesFileChanges(t *testing.T) {
	root := t.TempDir()
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()
	_, err := a.SetRoots(ctx, []string{root})
	require.NoError(t, err)
	a.runner.Wait()

	p := writePNG(t, root, "new.png", color.RGBA{0, 255, 0, 255})
	a.handleBatch(ctx, []watcher.FileEvent{{Path: p, Operation: watcher.OpCreate}})
	assert.Equal(t, 1, entryCount(t, a))

	require.NoError(t, os.Remove(p))
	a.handleBatch(ctx, []watcher.FileEvent{{Path: p, Operation: watcher.OpDelete}})
	assert.Equal(t, 0, entryCount(t, a))
}

func TestApp_HandleBatchFallsBackToPass(t *testing.T) {
	root := t.TempDir()
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()
	_, err := a.SetRoots(ctx, []string{root})
	require.NoError(t, err)
	a.runner.Wait()

	dir := filepath.Join(root, "album")
	writePNG(t, dir, "one.png", color.RGBA{9, 9, 9, 255})
	writePNG(t, dir, "two.png", color.RGBA{99, 99, 99, 255})

	a.handleBatch(ctx, []watcher.FileEvent{{Path: dir, Operation: watcher.OpCreate, IsDir: true}})
	a.runner.Wait()
	assert.Equal(t, 2, entryCount(t, a))
}

// gatedEmbedder blocks its first image embedding until release is closed.
type gatedEmbedder struct {
	embed.Provider
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedEmbedder) ImageEmbedding(ctx context.Context, data []byte) ([]float32, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Provider.ImageEmbedding(ctx, data)
}

func TestApp_FolderAddedDuringBatchIsSynced(t *testing.T) {
	// Given: a watcher batch holding the gate while it embeds a file
	root := t.TempDir()
	other := t.TempDir()
	writePNG(t, other, "other.png", color.RGBA{40, 80, 120, 255})
	cfg := testConfig(t)
	emb := &gatedEmbedder{
		Provider: embed.NewStaticProvider(cfg.Embeddings.Dimensions),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	a := newTestApp(t, cfg, WithEmbedder(emb))
	ctx := context.Background()
	require.NoError(t, a.store.SetRoots(ctx, []string{root}))

	p := writePNG(t, root, "new.png", color.RGBA{0, 255, 0, 255})
	batchDone := make(chan struct{})
	go func() {
		defer close(batchDone)
		a.handleBatch(ctx, []watcher.FileEvent{{Path: p, Operation: watcher.OpCreate}})
	}()
	<-emb.entered

	// When: a folder is added while the batch runs
	added, err := a.AddFolder(ctx, other)
	require.NoError(t, err)
	require.True(t, added)
	close(emb.release)
	<-batchDone
	a.runner.Wait()

	// Then: the new folder is indexed without waiting for the interval
	assert.Equal(t, 2, entryCount(t, a))
	assert.False(t, a.rootsDirty.Load())
}

func TestApp_MissingOCREngineDegrades(t *testing.T) {
	cfg := testConfig(t)
	cfg.OCR.Enabled = true
	cfg.OCR.Command = "memesearch-no-such-ocr stdin stdout"
	root := t.TempDir()
	writePNG(t, root, "a.png", color.RGBA{5, 5, 5, 255})

	a := newTestApp(t, cfg)
	ctx := context.Background()
	_, err := a.SetRoots(ctx, []string{root})
	require.NoError(t, err)
	a.runner.Wait()

	entries, err := a.store.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].OCRText)
}

func TestNeedsFullPass(t *testing.T) {
	defaults := (&scanner.ScanOptions{}).Filter()
	assert.False(t, needsFullPass([]watcher.FileEvent{{Path: "/m/a.png"}}, defaults))
	assert.True(t, needsFullPass([]watcher.FileEvent{{Path: "/m/a.png"}, {Path: "/m/album", Operation: watcher.OpDelete}}, defaults))
	assert.True(t, needsFullPass([]watcher.FileEvent{{Path: "/m/x", IsDir: true}}, defaults))

	pngOnly := (&scanner.ScanOptions{Extensions: []string{".png"}}).Filter()
	assert.True(t, needsFullPass([]watcher.FileEvent{{Path: "/m/clip.gif"}}, pngOnly))
}
