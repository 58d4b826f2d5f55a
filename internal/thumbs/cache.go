// Package thumbs maintains the thumbnail cache: a small JPEG per indexed image,
// named by the SHA-256 of the image path, plus an in-memory tier of decoded
// thumbnails. Entries are created on first request or eagerly during sync and
// removed whenever the image leaves the index.
package thumbs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
)

const (
	// DefaultSize is the target length of the longer thumbnail edge.
	DefaultSize = 200

	// DefaultQuality is the JPEG encoding quality.
	DefaultQuality = 85
)

// Cache is safe for concurrent use. All decoding, resizing, encoding and
// thumbnail file IO of one Cache runs under a single mutex; the memory tier
// has its own lock so hits never wait behind a generation.
type Cache struct {
	dir     string
	size    int
	quality int

	// mu serializes imaging and disk IO.
	mu sync.Mutex

	memMu sync.RWMutex
	mem   map[string]image.Image
}

// Option configures a Cache.
type Option func(*Cache)

// WithSize sets the target long edge in pixels.
func WithSize(px int) Option {
	return func(c *Cache) {
		if px > 0 {
			c.size = px
		}
	}
}

// WithQuality sets the JPEG quality (1-100).
func WithQuality(q int) Option {
	return func(c *Cache) {
		if q >= 1 && q <= 100 {
			c.quality = q
		}
	}
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("thumbnail directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail directory %s: %w", dir, err)
	}

	c := &Cache{
		dir:     dir,
		size:    DefaultSize,
		quality: DefaultQuality,
		mem:     make(map[string]image.Image),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key returns the lowercase hex SHA-256 of the UTF-8 path.
func Key(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// FilePath returns where the thumbnail for path lives on disk.
func (c *Cache) FilePath(path string) string {
	return filepath.Join(c.dir, Key(path)+".jpg")
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Peek returns the in-memory thumbnail without touching disk.
func (c *Cache) Peek(path string) (image.Image, bool) {
	c.memMu.RLock()
	defer c.memMu.RUnlock()
	img, ok := c.mem[path]
	return img, ok
}

func (c *Cache) remember(path string, img image.Image) {
	c.memMu.Lock()
	c.mem[path] = img
	c.memMu.Unlock()
}

// Load returns the thumbnail for path: from memory, else from disk, else by
// generating it from the original. A memory hit returns the same instance
// every time.
func (c *Cache) Load(ctx context.Context, path string) (image.Image, error) {
	if img, ok := c.Peek(path); ok {
		return img, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have filled it while we waited.
	if img, ok := c.Peek(path); ok {
		return img, nil
	}

	thumbPath := c.FilePath(path)
	if _, err := os.Stat(thumbPath); err == nil {
		img, err := decodeFile(thumbPath)
		if err == nil {
			c.remember(path, img)
			return img, nil
		}
		slog.Warn("thumbnail_unreadable",
			slog.String("path", path),
			slog.String("thumb", thumbPath),
			slog.String("error", err.Error()))
	}

	img, err := c.generateLocked(path, thumbPath)
	if err != nil {
		return nil, err
	}
	c.remember(path, img)
	return img, nil
}

// Pregenerate always regenerates the thumbnail from the original and
// replaces any memory entry. Used after an image is (re)indexed.
func (c *Cache) Pregenerate(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	img, err := c.generateLocked(path, c.FilePath(path))
	if err != nil {
		return err
	}
	c.remember(path, img)
	return nil
}

// Bytes returns the encoded JPEG thumbnail, generating it if needed.
func (c *Cache) Bytes(ctx context.Context, path string) ([]byte, error) {
	if _, err := c.Load(ctx, path); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.FilePath(path))
	if err != nil {
		return nil, merrors.TransientIO(c.FilePath(path), err)
	}
	return data, nil
}

// Delete drops both tiers for path. A missing file is not an error. It
// waits for an in-flight generation so that cannot repopulate memory after
// the file is gone.
func (c *Cache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.memMu.Lock()
	delete(c.mem, path)
	c.memMu.Unlock()

	if err := os.Remove(c.FilePath(path)); err != nil && !os.IsNotExist(err) {
		slog.Warn("thumbnail_delete_failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Len returns the number of thumbnails held in memory.
func (c *Cache) Len() int {
	c.memMu.RLock()
	defer c.memMu.RUnlock()
	return len(c.mem)
}

// generateLocked decodes the original, scales it so the longer edge equals
// the target size, writes the JPEG atomically and returns the decoded result
// of what was written. Caller holds c.mu.
func (c *Cache) generateLocked(path, thumbPath string) (image.Image, error) {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, merrors.TransientIO(path, err)
		}
		return nil, merrors.New(merrors.ErrCodeThumbnail, fmt.Sprintf("cannot decode %s", path), err).
			WithDetail("path", path)
	}

	w, h := ScaledSize(src.Bounds().Dx(), src.Bounds().Dy(), c.size)
	thumb := imaging.Resize(src, w, h, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, merrors.New(merrors.ErrCodeThumbnail, "failed to encode thumbnail", err)
	}
	if err := writeAtomic(thumbPath, buf.Bytes()); err != nil {
		return nil, merrors.New(merrors.ErrCodeThumbnail, "failed to write thumbnail", err).
			WithDetail("thumb", thumbPath)
	}

	img, err := jpeg.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeThumbnail, "failed to decode written thumbnail", err)
	}
	return img, nil
}

// ScaledSize scales (w, h) so the longer edge equals target, keeping the
// aspect ratio. Each edge is at least one pixel.
func ScaledSize(w, h, target int) (int, int) {
	long := w
	if h > long {
		long = h
	}
	if long == 0 {
		return 1, 1
	}
	scale := float64(target) / float64(long)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

func decodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jpeg.Decode(bytes.NewReader(data))
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place so readers never observe a partial JPEG.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".thumb-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
