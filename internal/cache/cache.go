package cache

import (
	"sync"
	"time"
)

// Cache is a generic in-memory store with per-entry TTLs.
type Cache[K comparable, V any] interface {
	// Set stores a value with the specified TTL; ttl <= 0 means no expiry.
	Set(key K, value V, ttl time.Duration)
	// Get retrieves a value and reports whether it was found and fresh.
	Get(key K) (V, bool)
	// Delete removes a value from the cache
	Delete(key K)
	// Clear removes all values from the cache
	Clear()
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type memoryCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache[K comparable, V any]() Cache[K, V] {
	return &memoryCache[K, V]{items: make(map[K]entry[V])}
}

func (c *memoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
}

func (c *memoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()

	if !found {
		var zero V
		return zero, false
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		c.Delete(key)
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *memoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *memoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]entry[V])
}
