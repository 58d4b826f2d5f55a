package cmd

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/memesearch/internal/config"
)

// testEnv isolates the CLI: a temp user config home, a data dir whose
// config selects the offline embedder, and no inherited overrides.
func testEnv(t *testing.T) (dataDir string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("MEMESEARCH_DATA_DIR", "")
	t.Setenv("MEMESEARCH_EMBEDDER", "static")

	dataDir = t.TempDir()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = dataDir
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 16
	cfg.OCR.Enabled = false
	cfg.Sync.Watch = false
	cfg.Sync.Workers = 2
	require.NoError(t, cfg.WriteYAML(filepath.Join(dataDir, config.FileName)))
	return dataDir
}

// runCLI executes the root command against dataDir and returns its output.
func runCLI(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--data-dir", dataDir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func writePNG(t *testing.T, dir, name string, c color.Color) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return p
}

// memeFolder creates a folder holding two images.
func memeFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, dir, "red.png", color.RGBA{R: 255, A: 255})
	writePNG(t, dir, "sub/blue.png", color.RGBA{B: 255, A: 255})
	return dir
}
