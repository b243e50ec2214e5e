package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, ttl time.Duration) (*CatalogCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCatalogCache(WithTTL(ttl), WithClock(clock.Now))
	t.Cleanup(c.Stop)
	return c, clock
}

func TestCatalogCache_Listing(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	_, ok := c.GetListing("listing:1:1:20")
	assert.False(t, ok)

	page := &catalogapp.ListingPage{Total: 3, Page: 1, PageSize: 20}
	c.SetListing("listing:1:1:20", page)
	got, ok := c.GetListing("listing:1:1:20")
	require.True(t, ok)
	assert.Same(t, page, got)

	c.SetListing("listing:nil", nil)
	_, ok = c.GetListing("listing:nil")
	assert.False(t, ok, "nil pages are not cached")
}

func TestCatalogCache_Count(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	c.SetCount("count:products", 42)
	n, ok := c.GetCount("count:products")
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	c.SetCount("count:products", 0)
	n, ok = c.GetCount("count:products")
	require.True(t, ok, "zero is a valid cached count")
	assert.Zero(t, n)
}

func TestCatalogCache_Expiry(t *testing.T) {
	c, clock := newTestCache(t, 10*time.Second)

	c.SetCount("count:products", 5)
	clock.Advance(9 * time.Second)
	_, ok := c.GetCount("count:products")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = c.GetCount("count:products")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Entries, "expired entries are dropped on read")
}

func TestCatalogCache_Sweep(t *testing.T) {
	c, clock := newTestCache(t, 10*time.Second)

	c.SetCount("a", 1)
	c.SetListing("b", &catalogapp.ListingPage{})
	clock.Advance(5 * time.Second)
	c.SetCount("c", 2)
	clock.Advance(6 * time.Second)

	c.sweep()
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestCatalogCache_InvalidateAllAndStats(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	c.SetCount("count:products", 5)
	c.SetListing("listing:1:1:20", &catalogapp.ListingPage{})
	c.GetCount("count:products")
	c.GetCount("missing")

	c.InvalidateAll()

	_, ok := c.GetListing("listing:1:1:20")
	assert.False(t, ok)
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Zero(t, stats.Entries)

	c.Stop()
	c.Stop()
}

type fakeBroadcaster struct {
	reasons []string
	err     error
}

func (b *fakeBroadcaster) PublishInvalidation(_ context.Context, reason string) error {
	b.reasons = append(b.reasons, reason)
	return b.err
}

func TestInvalidationHandler_Handle(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	broadcaster := &fakeBroadcaster{err: errors.New("redis down")}
	handler := NewInvalidationHandler(c, broadcaster, nil)

	c.SetCount("count:products", 5)
	err := handler.Handle(context.Background(), catalog.NewSortOrderChangedEvent(3, []int64{1}))

	require.NoError(t, err, "a failed broadcast does not fail the handler")
	_, ok := c.GetCount("count:products")
	assert.False(t, ok)
	assert.Equal(t, []string{catalog.EventTypeSortOrderChanged}, broadcaster.reasons)
	assert.Contains(t, handler.EventTypes(), "InventoryChanged")
}

func TestInvalidationHandler_WithoutBroadcaster(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	handler := NewInvalidationHandler(c, nil, nil)
	var _ shared.EventHandler = handler

	c.SetCount("count:products", 5)
	require.NoError(t, handler.Handle(context.Background(), catalog.NewSortOrderChangedEvent(3, nil)))
	_, ok := c.GetCount("count:products")
	assert.False(t, ok)
}

func TestRedisInvalidator_IgnoresOwnMessages(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })
	invalidator := NewRedisInvalidator(client)
	c, _ := newTestCache(t, time.Minute)

	c.SetCount("count:products", 5)
	invalidator.apply(`{"origin":"`+invalidator.origin+`","reason":"ProductUpdated"}`, c)
	_, ok := c.GetCount("count:products")
	assert.True(t, ok, "own message is ignored")

	invalidator.apply(`not json`, c)
	_, ok = c.GetCount("count:products")
	assert.True(t, ok)

	invalidator.apply(`{"origin":"other-instance","reason":"ProductUpdated"}`, c)
	_, ok = c.GetCount("count:products")
	assert.False(t, ok)
}

func TestRedisInvalidator_PublishUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	invalidator := NewRedisInvalidator(client, WithInvalidatorChannel("test:invalidate"))

	err := invalidator.PublishInvalidation(context.Background(), "ProductUpdated")
	assert.ErrorContains(t, err, "failed to publish invalidation")
	assert.NoError(t, invalidator.Close(), "closing without a subscription is a no-op")
}
