package service

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

// ttlCache is a small read-mostly cache with explicit invalidation. Every
// invalidation bumps a generation so that a value read before it is not stored after it.
type ttlCache[K comparable, V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[K]cacheEntry[V]
	gen     uint64
	now     func() time.Time
}

func newTTLCache[K comparable, V any](ttl time.Duration, now func() time.Time) *ttlCache[K, V] {
	if now == nil {
		now = time.Now
	}
	return &ttlCache[K, V]{ttl: ttl, entries: make(map[K]cacheEntry[V]), now: now}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || (c.ttl > 0 && c.now().After(entry.expires)) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Generation returns the current invalidation generation.
func (c *ttlCache[K, V]) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

func (c *ttlCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

// SetIfCurrent stores value only when no invalidation happened since gen was read.
func (c *ttlCache[K, V]) SetIfCurrent(gen uint64, key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.set(key, value)
	return true
}

func (c *ttlCache[K, V]) set(key K, value V) {
	if c.ttl <= 0 {
		return
	}
	c.entries[key] = cacheEntry[V]{value: value, expires: c.now().Add(c.ttl)}
}

func (c *ttlCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	delete(c.entries, key)
}

func (c *ttlCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[K]cacheEntry[V])
}
