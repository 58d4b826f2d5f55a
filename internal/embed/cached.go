package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize is the number of query vectors kept in memory.
// At 512 dimensions * 4 bytes * 1000 entries that is about 2MB.
const DefaultQueryCacheSize = 1000

// CachedProvider memoizes text embeddings. Users retype and refine the same
// queries constantly, and each text forward pass contends for the inference
// lock with a running sync. Image calls pass straight through.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps inner with an LRU of cacheSize query vectors.
func NewCachedProvider(inner Provider, cacheSize int) *CachedProvider {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedProvider{inner: inner, cache: cache}
}

// cacheKey binds the text to the model so switching models never serves stale vectors.
func (c *CachedProvider) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(hash[:])
}

// TextEmbedding returns the cached vector or computes and stores it.
func (c *CachedProvider) TextEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.TextEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// ImageEmbedding is never cached; images are embedded once per sync anyway.
func (c *CachedProvider) ImageEmbedding(ctx context.Context, data []byte) ([]float32, error) {
	return c.inner.ImageEmbedding(ctx, data)
}

func (c *CachedProvider) Dimensions() int   { return c.inner.Dimensions() }
func (c *CachedProvider) ModelName() string { return c.inner.ModelName() }
func (c *CachedProvider) Close() error      { return c.inner.Close() }

// Len returns the number of cached queries.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

// Inner returns the wrapped provider.
func (c *CachedProvider) Inner() Provider {
	return c.inner
}
