package sidecar

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"fastmd/internal/parallel"
	jsonx "fastmd/internal/shared/json"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheMaxSize = 512
	defaultCacheTTL     = 10 * time.Minute
)

// CacheConfig configures the transform result cache.
type CacheConfig struct {
	// MaxSize is the maximum number of entries in the LRU cache.
	MaxSize int
	// TTL is how long a cached result remains valid.
	TTL time.Duration
}

// cacheEntry holds a rendered output along with the time it was stored.
type cacheEntry struct {
	output   parallel.Rendered
	storedAt time.Time
}

// TransformCache remembers successful renders keyed by file, content and
// options. Failures are never cached. A nil cache is valid and always misses.
type TransformCache struct {
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewTransformCache builds an LRU cache. Zero values fall back to defaults.
func NewTransformCache(config CacheConfig) (*TransformCache, error) {
	if config.MaxSize <= 0 {
		config.MaxSize = defaultCacheMaxSize
	}
	if config.TTL <= 0 {
		config.TTL = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](config.MaxSize)
	if err != nil {
		return nil, err
	}
	return &TransformCache{cache: cache, ttl: config.TTL, now: time.Now}, nil
}

// Get returns a copy of the cached output for key.
func (c *TransformCache) Get(key string) (parallel.Rendered, bool) {
	if c == nil {
		return parallel.Rendered{}, false
	}
	entry, ok := c.cache.Get(key)
	if !ok {
		return parallel.Rendered{}, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		// Expired; evict so the LRU bookkeeping stays clean.
		c.cache.Remove(key)
		return parallel.Rendered{}, false
	}
	return cloneRendered(entry.output), true
}

// Add stores a copy of output under key.
func (c *TransformCache) Add(key string, output parallel.Rendered) {
	if c == nil {
		return
	}
	c.cache.Add(key, cacheEntry{output: cloneRendered(output), storedAt: c.now()})
}

// Len returns the number of cached entries.
func (c *TransformCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// CacheKey fingerprints everything that influences a render.
func CacheKey(task parallel.Task) string {
	opts, err := jsonx.Marshal(task.Options())
	if err != nil {
		opts = nil
	}
	h := sha256.New()
	h.Write([]byte(task.File()))
	h.Write([]byte{0})
	h.Write([]byte(task.Content()))
	h.Write([]byte{0})
	h.Write(opts)
	return hex.EncodeToString(h.Sum(nil))
}

// cloneRendered copies the maps and slices so cached entries do not alias
// caller values.
func cloneRendered(r parallel.Rendered) parallel.Rendered {
	out := r
	out.Map = cloneMap(r.Map)
	out.Metadata = cloneMap(r.Metadata)
	if r.Dependencies != nil {
		out.Dependencies = append([]string(nil), r.Dependencies...)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
