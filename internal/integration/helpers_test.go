package integration

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/memesearch/internal/app"
	"github.com/Aman-CERP/memesearch/internal/config"
	"github.com/Aman-CERP/memesearch/internal/embed"
	"github.com/Aman-CERP/memesearch/internal/ocr"
)

// Integration tests run the library end to end: folders on disk, the SQLite
// index, the offline embedder and a fake OCR engine keyed on image colour.

var (
	red   = color.RGBA{255, 0, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	green = color.RGBA{0, 255, 0, 255}
)

// captions is what the fake OCR engine "reads" from a solid image.
var captions = map[color.RGBA]string{
	red:   "Drake Hotline Bling",
	blue:  "Distracted Boyfriend",
	green: "one does not simply",
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 16
	cfg.OCR.Enabled = true
	cfg.Sync.Watch = false
	cfg.Sync.PregenerateThumbnails = false
	cfg.Sync.Workers = 2
	// Lexical-only ranking keeps the expected order independent of hashes.
	cfg.Search.SemanticWeight = 0
	cfg.Search.LexicalWeight = 1
	require.NoError(t, cfg.Validate())
	return cfg
}

// fakeOCR decodes the image and returns the caption for its top-left pixel.
func fakeOCR() ocr.Provider {
	return ocr.Func(func(_ context.Context, data []byte) (string, error) {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return "", err
		}
		c := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA)
		return captions[c], nil
	})
}

func openApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg,
		app.WithEmbedder(embed.NewStaticProvider(cfg.Embeddings.Dimensions)),
		app.WithOCR(fakeOCR()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writePNG(t *testing.T, dir, name string, c color.RGBA) string {
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

// waitForPasses blocks until at least n passes have finished and none is
// running.
func waitForPasses(t *testing.T, a *app.App, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !a.IsSyncing() && a.Progress().Snapshot().Passes >= n
	}, 10*time.Second, 20*time.Millisecond)
}

func entries(t *testing.T, a *app.App) int {
	t.Helper()
	return a.Status(context.Background()).Entries
}
