package cache

import (
	"sync"
	"sync/atomic"
	"time"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"go.uber.org/zap"
)

const (
	defaultCatalogCacheTTL = 30 * time.Second
	defaultCleanupInterval = 30 * time.Second
)

// cacheEntry wraps a cached value with expiration time
type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *cacheEntry[T]) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// CacheStats reports hit and miss counters
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// CatalogCache caches storefront listings and counts in process for a
// short TTL. Catalog changes clear it through InvalidateAll, so the TTL
// only bounds how long another instance's write can stay invisible.
type CatalogCache struct {
	listings sync.Map // map[string]*cacheEntry[*catalogapp.ListingPage]
	counts   sync.Map // map[string]*cacheEntry[int64]
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
	stopCh   chan struct{}
	stopped  int32

	hits   int64
	misses int64
}

// CatalogCacheOption is a functional option for configuring the cache
type CatalogCacheOption func(*CatalogCache)

// WithTTL sets how long entries live
func WithTTL(ttl time.Duration) CatalogCacheOption {
	return func(c *CatalogCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger for the cache
func WithLogger(logger *zap.Logger) CatalogCacheOption {
	return func(c *CatalogCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) CatalogCacheOption {
	return func(c *CatalogCache) {
		c.now = now
	}
}

// NewCatalogCache creates a cache and starts its expiry sweeper. Call
// Stop to end the sweeper.
func NewCatalogCache(opts ...CatalogCacheOption) *CatalogCache {
	c := &CatalogCache{
		ttl:    defaultCatalogCacheTTL,
		now:    time.Now,
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.cleanupExpired()
	return c
}

// GetListing implements catalogapp.ListingCache
func (c *CatalogCache) GetListing(key string) (*catalogapp.ListingPage, bool) {
	return load[*catalogapp.ListingPage](c, &c.listings, key)
}

// SetListing implements catalogapp.ListingCache
func (c *CatalogCache) SetListing(key string, page *catalogapp.ListingPage) {
	if page == nil {
		return
	}
	store(c, &c.listings, key, page)
}

// GetCount implements catalogapp.ListingCache
func (c *CatalogCache) GetCount(key string) (int64, bool) {
	return load[int64](c, &c.counts, key)
}

// SetCount implements catalogapp.ListingCache
func (c *CatalogCache) SetCount(key string, n int64) {
	store(c, &c.counts, key, n)
}

// InvalidateAll drops every cached entry
func (c *CatalogCache) InvalidateAll() {
	c.listings.Clear()
	c.counts.Clear()
	c.logger.Debug("Catalog cache invalidated")
}

// Stats returns hit and miss counters and the current entry count
func (c *CatalogCache) Stats() CacheStats {
	entries := 0
	count := func(_, _ any) bool {
		entries++
		return true
	}
	c.listings.Range(count)
	c.counts.Range(count)
	return CacheStats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: entries,
	}
}

// Stop ends the expiry sweeper. It is safe to call more than once.
func (c *CatalogCache) Stop() {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
}

func load[T any](c *CatalogCache, m *sync.Map, key string) (T, bool) {
	var zero T
	value, ok := m.Load(key)
	if ok {
		entry := value.(*cacheEntry[T])
		if !entry.isExpired(c.now()) {
			atomic.AddInt64(&c.hits, 1)
			return entry.value, true
		}
		m.CompareAndDelete(key, value)
	}
	atomic.AddInt64(&c.misses, 1)
	return zero, false
}

func store[T any](c *CatalogCache, m *sync.Map, key string, value T) {
	m.Store(key, &cacheEntry[T]{value: value, expiresAt: c.now().Add(c.ttl)})
}

func (c *CatalogCache) cleanupExpired() {
	ticker := time.NewTicker(max(c.ttl, defaultCleanupInterval))
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *CatalogCache) sweep() {
	now := c.now()
	c.listings.Range(func(key, value any) bool {
		if value.(*cacheEntry[*catalogapp.ListingPage]).isExpired(now) {
			c.listings.CompareAndDelete(key, value)
		}
		return true
	})
	c.counts.Range(func(key, value any) bool {
		if value.(*cacheEntry[int64]).isExpired(now) {
			c.counts.CompareAndDelete(key, value)
		}
		return true
	})
}

var _ catalogapp.ListingCache = (*CatalogCache)(nil)
