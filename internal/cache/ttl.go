package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry is a cached value with its expiry and its position in the LRU list.
type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
	elem      *list.Element
}

// TTLCache is a thread-safe cache with per-entry TTL and a maximum entry
// count enforced by least-recently-used eviction. Expired entries are evicted
// lazily on read or by CleanupExpired.
type TTLCache[T any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[T]
	lru        *list.List // front = most recently used
	ttl        time.Duration
	maxEntries int
}

// New creates a cache with the given TTL and entry cap. A maxEntries of zero
// or less means unbounded.
func New[T any](ttl time.Duration, maxEntries int) *TTLCache[T] {
	return &TTLCache[T]{
		entries:    make(map[string]*entry[T]),
		lru:        list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get retrieves a value if present and not expired.
func (c *TTLCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(e)
		return zero, false
	}
	c.lru.MoveToFront(e.elem)
	return e.value, true
}

// Set stores a value with the cache's TTL, evicting the least recently used
// entry if the cap is exceeded.
func (c *TTLCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(c.ttl)
		c.lru.MoveToFront(e.elem)
		return
	}

	e := &entry[T]{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		oldest := c.lru.Back()
		if oldest != nil {
			c.remove(oldest.Value.(*entry[T]))
		}
	}
}

// Delete removes a key if present.
func (c *TTLCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
}

// Len returns the number of entries, including any not yet swept.
func (c *TTLCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CleanupExpired removes all expired entries.
func (c *TTLCache[T]) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			c.remove(e)
		}
	}
}

func (c *TTLCache[T]) remove(e *entry[T]) {
	c.lru.Remove(e.elem)
	delete(c.entries, e.key)
}
