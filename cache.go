package fontdiff

import (
	"sync"
	"time"

	"github.com/wbrown/fontdiff/imageutil"
)

// CacheConfig controls when the in-memory image cache sheds idle entries.
type CacheConfig struct {
	// PurgeThreshold is the entry count above which a purge may run.
	PurgeThreshold int
	// PurgeInterval is the minimum time between purges.
	PurgeInterval time.Duration
	// IdleTTL is how long an entry may go untouched before a purge drops it.
	IdleTTL time.Duration
}

// DefaultCacheConfig returns the standard purge policy: more than 100
// entries, at most every 30 seconds, dropping entries idle over a minute.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		PurgeThreshold: 100,
		PurgeInterval:  30 * time.Second,
		IdleTTL:        60 * time.Second,
	}
}

// CacheStats tracks cache performance.
type CacheStats struct {
	Hits      int
	Misses    int
	Evictions int
	Entries   int
}

type cachedImage struct {
	img        *imageutil.RGBAImage
	hits       int
	lastAccess time.Time
}

// ImageCache is the memory tier of the rendered-matrix cache. Purging is
// opportunistic: it only happens while inserting.
//
// Cached images are shared between callers and must not be modified.
type ImageCache struct {
	cfg CacheConfig
	now func() time.Time

	mu        sync.Mutex
	entries   map[CacheKey]*cachedImage
	lastPurge time.Time
	stats     CacheStats
}

// NewImageCache creates an empty cache.
func NewImageCache(cfg CacheConfig) *ImageCache {
	return NewImageCacheWithClock(cfg, time.Now)
}

// NewImageCacheWithClock creates an empty cache that reads time from now.
func NewImageCacheWithClock(cfg CacheConfig, now func() time.Time) *ImageCache {
	return &ImageCache{
		cfg:       cfg,
		now:       now,
		entries:   make(map[CacheKey]*cachedImage),
		lastPurge: now(),
	}
}

// Get returns the image stored under key and refreshes its idle timer.
func (c *ImageCache) Get(key CacheKey) (*imageutil.RGBAImage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	e.hits++
	e.lastAccess = c.now()
	c.stats.Hits++
	return e.img, true
}

// Put stores img under key, then purges idle entries if the cache is over
// its threshold and the purge interval has elapsed.
func (c *ImageCache) Put(key CacheKey, img *imageutil.RGBAImage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.img = img
		e.lastAccess = now
	} else {
		c.entries[key] = &cachedImage{img: img, lastAccess: now}
	}

	if len(c.entries) > c.cfg.PurgeThreshold && now.Sub(c.lastPurge) > c.cfg.PurgeInterval {
		c.purgeLocked(now)
	}
}

func (c *ImageCache) purgeLocked(now time.Time) {
	before := len(c.entries)
	for key, e := range c.entries {
		if now.Sub(e.lastAccess) > c.cfg.IdleTTL {
			delete(c.entries, key)
		}
	}
	c.lastPurge = now
	c.stats.Evictions += before - len(c.entries)
	Logger().Debug("image cache purged", "before", before, "after", len(c.entries))
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *ImageCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}
