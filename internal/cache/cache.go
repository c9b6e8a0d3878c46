package cache

import (
	"sync"
	"time"
)

// CacheEntry holds a cached value with expiration. A zero Expiration never
// expires.
type CacheEntry struct {
	Value      interface{}
	Expiration time.Time
}

func (e CacheEntry) expired(now time.Time) bool {
	return !e.Expiration.IsZero() && now.After(e.Expiration)
}

// SimpleCache is a thread-safe in-memory cache with optional TTL
type SimpleCache struct {
	mu    sync.RWMutex
	items map[string]CacheEntry
	now   func() time.Time
}

// NewSimpleCache creates a new cache instance
func NewSimpleCache() *SimpleCache {
	return &SimpleCache{
		items: make(map[string]CacheEntry),
		now:   time.Now,
	}
}

// WithClock replaces the time source. Tests only.
func (c *SimpleCache) WithClock(now func() time.Time) *SimpleCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// SetNX stores the value only when no live entry exists under key. It
// reports whether the value was stored.
func (c *SimpleCache) SetNX(key string, value interface{}, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[key]; exists && !entry.expired(c.now()) {
		return false
	}
	c.items[key] = c.entry(value, ttl)
	return true
}

// Take returns the value under key and removes it in the same critical
// section, so concurrent callers cannot both observe it.
func (c *SimpleCache) Take(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		return nil, false
	}
	delete(c.items, key)
	if entry.expired(c.now()) {
		return nil, false
	}
	return entry.Value, true
}

// Len returns the number of entries, expired ones included.
func (c *SimpleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Purge drops expired entries and returns how many were removed.
func (c *SimpleCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, v := range c.items {
		if v.expired(now) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Clear removes all entries from cache
func (c *SimpleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]CacheEntry)
}

func (c *SimpleCache) entry(value interface{}, ttl time.Duration) CacheEntry {
	entry := CacheEntry{Value: value}
	if ttl > 0 {
		entry.Expiration = c.now().Add(ttl)
	}
	return entry
}
