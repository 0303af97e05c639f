package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is the default entry lifetime.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxEntries is the default size cap.
	DefaultMaxEntries = 1000
)

type ttlEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// TTLCache is a size-bounded, TTL-based in-memory cache.
// Inserting past the cap evicts the oldest inserted entry; expired entries
// are dropped on access or by Purge. Safe for concurrent use.
type TTLCache[K comparable, V any] struct {
	mu sync.RWMutex

	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	items map[K]*list.Element
	order *list.List // front = oldest

	evictions uint64
}

// TTLOption configures a TTLCache.
type TTLOption func(*ttlConfig)

type ttlConfig struct {
	now func() time.Time
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) TTLOption {
	return func(c *ttlConfig) { c.now = now }
}

// NewTTLCache creates a TTLCache. Non-positive ttl or maxEntries fall back to defaults.
func NewTTLCache[K comparable, V any](ttl time.Duration, maxEntries int, opts ...TTLOption) *TTLCache[K, V] {
	cfg := ttlConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &TTLCache[K, V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        cfg.now,
		items:      make(map[K]*list.Element),
		order:      list.New(),
	}
}

// Set adds or replaces an item; a replaced item counts as newly inserted.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
	el := c.order.PushBack(&ttlEntry[K, V]{key: key, value: value, expiresAt: c.now().Add(c.ttl)})
	c.items[key] = el

	for c.order.Len() > c.maxEntries {
		c.removeElement(c.order.Front())
		c.evictions++
	}
}

// Get retrieves an unexpired item.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	el, ok := c.items[key]
	if !ok {
		c.mu.RUnlock()
		var zero V
		return zero, false
	}
	e := el.Value.(*ttlEntry[K, V])
	if c.now().Before(e.expiresAt) {
		v := e.value
		c.mu.RUnlock()
		return v, true
	}
	c.mu.RUnlock()

	c.mu.Lock()
	// 重新确认，避免删除并发写入的新值
	if el, ok := c.items[key]; ok && !c.now().Before(el.Value.(*ttlEntry[K, V]).expiresAt) {
		c.removeElement(el)
	}
	c.mu.Unlock()

	var zero V
	return zero, false
}

// Del removes an item.
func (c *TTLCache[K, V]) Del(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Contains reports whether an unexpired item exists.
func (c *TTLCache[K, V]) Contains(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Len returns the number of stored items, including expired ones not yet purged.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Clear removes all items.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// DeleteFunc removes every item for which fn returns true and reports how many were removed.
// fn runs under the write lock and must not call back into the cache.
func (c *TTLCache[K, V]) DeleteFunc(fn func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*ttlEntry[K, V])
		if fn(e.key, e.value) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

// Purge drops expired items and returns how many were removed.
func (c *TTLCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*ttlEntry[K, V]).expiresAt) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

// Stats returns size, capacity and eviction count.
func (c *TTLCache[K, V]) Stats() (size, capacity int, evictions uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len(), c.maxEntries, c.evictions
}

func (c *TTLCache[K, V]) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*ttlEntry[K, V])
	delete(c.items, e.key)
}

var _ Cache[string, int] = (*TTLCache[string, int])(nil)
