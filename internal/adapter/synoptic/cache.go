package synoptic

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/gust-correlation-etl/internal/domain"
	"github.com/couchcryptid/gust-correlation-etl/internal/observability"
)

// CachedClient wraps a WeatherAPI with an in-memory LRU of decoded responses,
// so repeated identical requests within one run hit the API once. Responses
// with a non-success code are cached too. Errors are not. Callers must not
// mutate returned datasets.
type CachedClient struct {
	inner   domain.WeatherAPI
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedClient creates a cache decorator around a weather API client.
func NewCachedClient(inner domain.WeatherAPI, maxEntries int, metrics *observability.Metrics) *CachedClient {
	return &CachedClient{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedClient) StationMetadata(ctx context.Context, stationID string) (*domain.Dataset, error) {
	key := "meta:" + stationID
	return c.lookup(key, endpointMetadata, func() (*domain.Dataset, error) {
		return c.inner.StationMetadata(ctx, stationID)
	})
}

func (c *CachedClient) TimeseriesByStation(ctx context.Context, stationID string, start, end domain.Instant) (*domain.Dataset, error) {
	key := fmt.Sprintf("ts:%s|%s|%s", stationID, start.Compact(), end.Compact())
	return c.lookup(key, endpointTimeseries, func() (*domain.Dataset, error) {
		return c.inner.TimeseriesByStation(ctx, stationID, start, end)
	})
}

func (c *CachedClient) TimeseriesByRadius(ctx context.Context, lat, lon, miles float64, start, end domain.Instant) (*domain.Dataset, error) {
	key := fmt.Sprintf("rad:%s|%s|%s", RadiusParam(lat, lon, miles), start.Compact(), end.Compact())
	return c.lookup(key, endpointTimeseries, func() (*domain.Dataset, error) {
		return c.inner.TimeseriesByRadius(ctx, lat, lon, miles, start, end)
	})
}

func (c *CachedClient) lookup(key, endpoint string, fetch func() (*domain.Dataset, error)) (*domain.Dataset, error) {
	if d, ok := c.cache.get(key); ok {
		c.metrics.APICache.WithLabelValues(endpoint, "hit").Inc()
		return d, nil
	}
	c.metrics.APICache.WithLabelValues(endpoint, "miss").Inc()
	d, err := fetch()
	if err != nil {
		return nil, err
	}
	c.cache.put(key, d)
	return d, nil
}

// lruCache is a simple thread-safe LRU cache of decoded responses.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value *domain.Dataset
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (*domain.Dataset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value *domain.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries <= 0 {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
