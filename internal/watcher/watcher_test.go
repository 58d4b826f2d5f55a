package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Types and filtering
// ============================================================================

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{OpRename, "RENAME"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
	assert.True(t, OpDelete.Removes())
	assert.True(t, OpRename.Removes())
	assert.False(t, OpModify.Removes())
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{}.WithDefaults()
	assert.Equal(t, 2*time.Second, o.DebounceWindow)
	assert.Equal(t, 16, o.EventBufferSize)
	assert.NotEmpty(t, o.Extensions)
}

func TestInteresting(t *testing.T) {
	exts := map[string]struct{}{".png": {}, ".jpg": {}}
	tests := []struct {
		name  string
		path  string
		op    Operation
		isDir bool
		want  bool
	}{
		{"image create", "/m/a.PNG", OpCreate, false, true},
		{"text create", "/m/a.txt", OpCreate, false, false},
		{"directory", "/m/sub", OpCreate, true, true},
		{"maybe-dir removal", "/m/sub", OpDelete, false, true},
		{"extensionless create", "/m/sub", OpCreate, false, false},
		{"resource fork", "/m/._a.png", OpCreate, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, interesting(tt.path, tt.op, tt.isDir, exts))
		})
	}
}

func TestWithinAny(t *testing.T) {
	sep := string(os.PathSeparator)
	root := sep + "memes"
	assert.True(t, withinAny(root, []string{root}))
	assert.True(t, withinAny(root+sep+"a.png", []string{root + sep}))
	assert.False(t, withinAny(sep+"memes2"+sep+"a.png", []string{root}))
}

// ============================================================================
// Live fsnotify
// ============================================================================

func waitBatch(t *testing.T, w *Watcher, match func(FileEvent) bool) FileEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "events closed")
			for _, e := range batch {
				if match(e) {
					return e
				}
			}
		case <-deadline:
			t.Fatal("timeout waiting for watcher event")
			return FileEvent{}
		}
	}
}

func TestWatcher_ReportsImageCreateInNewSubdir(t *testing.T) {
	// Given: a watched root
	root := t.TempDir()
	w, err := New(Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()
	require.NoError(t, w.Start(context.Background(), []string{root}))

	// When: a directory is created and then an image inside it
	sub := filepath.Join(root, "new")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	img := filepath.Join(sub, "a.png")
	require.NoError(t, os.WriteFile(img, []byte("x"), 0o644))

	// Then: the image event is reported with its absolute path
	e := waitBatch(t, w, func(e FileEvent) bool { return e.Path == img })
	assert.False(t, e.IsDir)
}

func TestWatcher_IgnoresNonImages(t *testing.T) {
	root := t.TempDir()
	w, err := New(Options{DebounceWindow: 30 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()
	require.NoError(t, w.Start(context.Background(), []string{root}))

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	img := filepath.Join(root, "b.jpg")
	require.NoError(t, os.WriteFile(img, []byte("x"), 0o644))

	e := waitBatch(t, w, func(e FileEvent) bool {
		assert.NotEqual(t, "notes.txt", filepath.Base(e.Path))
		return e.Path == img
	})
	assert.Equal(t, img, e.Path)
}

func TestWatcher_SetRootsDropsOldRoots(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	w, err := New(Options{DebounceWindow: 30 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()
	require.NoError(t, w.Start(context.Background(), []string{a}))

	w.SetRoots([]string{b})
	assert.Equal(t, []string{b}, w.Roots())

	img := filepath.Join(b, "c.png")
	require.NoError(t, os.WriteFile(img, []byte("x"), 0o644))
	waitBatch(t, w, func(e FileEvent) bool { return e.Path == img })

	w.mu.RLock()
	_, watchingA := w.watched[a]
	w.mu.RUnlock()
	assert.False(t, watchingA)
}

func TestWatcher_MissingRootIsSkipped(t *testing.T) {
	w, err := New(DefaultOptions())
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.Start(context.Background(), []string{filepath.Join(t.TempDir(), "gone")}))
	assert.Error(t, w.Start(context.Background(), nil), "second start")
}

func TestWatcher_StopClosesEvents(t *testing.T) {
	w, err := New(DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background(), []string{t.TempDir()}))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
}

func TestWatcher_ContextCancelStops(t *testing.T) {
	w, err := New(DefaultOptions())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx, []string{t.TempDir()}))

	cancel()
	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
