package openweather

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
	"github.com/couchcryptid/flight-insurance-service/internal/observability"
)

// source is the fetch half of the decorator, satisfied by *Client.
type source interface {
	CurrentConditions(ctx context.Context, city string) (domain.Observation, error)
}

// CachedSource wraps a weather source with an in-memory LRU cache. Entries
// expire after a TTL: live conditions go stale, unlike geocoding results, so
// the cache only suppresses bursts of lookups for the same city.
type CachedSource struct {
	inner   source
	cache   *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a weather source.
func NewCachedSource(inner source, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}
}

// CurrentConditions returns a cached observation when fresh, fetching
// otherwise. Errors are never cached, so transient failures retry.
func (c *CachedSource) CurrentConditions(ctx context.Context, city string) (domain.Observation, error) {
	key := domain.NormalizeCity(city)
	now := c.clock.Now()

	if obs, fetchedAt, ok := c.cache.get(key); ok && now.Sub(fetchedAt) < c.ttl {
		c.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return obs, nil
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()

	obs, err := c.inner.CurrentConditions(ctx, city)
	if err != nil {
		return obs, err
	}
	c.cache.put(key, obs, now)
	return obs, nil
}

// lruCache is a small thread-safe LRU cache of observations with fetch times.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     domain.Observation
	fetchedAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Observation, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Observation{}, time.Time{}, false
	}
	c.moveToFront(e)
	return e.value, e.fetchedAt, true
}

func (c *lruCache) put(key string, value domain.Observation, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.fetchedAt = fetchedAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, fetchedAt: fetchedAt}
	c.entries[key] = e
	c.pushFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *lruCache) pushFront(e *entry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if c.head == e {
		c.head = e.next
	}
	if c.tail == e {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *lruCache) evictOldest() {
	oldest := c.tail
	if oldest == nil {
		return
	}
	c.unlink(oldest)
	delete(c.entries, oldest.key)
}
