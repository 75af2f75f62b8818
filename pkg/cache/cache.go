package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value   V
	expires time.Time
}

func (i item[V]) expired(now time.Time) bool {
	return !i.expires.IsZero() && now.After(i.expires)
}

// Cache is a thread-safe in-memory cache with expiration. Expired entries are
// dropped lazily on Get.
type Cache[V any] struct {
	items    map[string]item[V]
	mu       sync.Mutex
	ttl      time.Duration
	maxItems int
	now      func() time.Time
}

// New creates a cache whose entries live for ttl; zero ttl never expires.
// maxItems > 0 evicts the entry closest to expiry when full.
func New[V any](ttl time.Duration, maxItems int, now func() time.Time) *Cache[V] {
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		items:    make(map[string]item[V]),
		ttl:      ttl,
		maxItems: maxItems,
		now:      now,
	}
}

// Set adds an item to the cache with the default expiration
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}
	c.items[key] = item[V]{value: value, expires: expires}
}

// Get retrieves an item from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, found := c.items[key]
	if !found {
		var zero V
		return zero, false
	}
	if it.expired(c.now()) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return it.value, true
}

// Delete removes an item from the cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Flush removes all items from the cache
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item[V])
}

// Len returns the number of items in the cache (including expired items)
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, v := range c.items {
		if first || v.expires.Before(oldest) {
			oldestKey, oldest, first = k, v.expires, false
		}
	}
	if !first {
		delete(c.items, oldestKey)
	}
}
