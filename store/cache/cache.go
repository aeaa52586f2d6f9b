// Package cache provides a small in-memory TTL cache for store lookups.
package cache

import (
	"sync"
	"time"
)

// Config holds cache settings.
type Config struct {
	// DefaultTTL is how long an entry stays valid after Set.
	DefaultTTL time.Duration
	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration
	// MaxItems caps the number of entries. When full, Set evicts the
	// entry closest to expiry.
	MaxItems int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a TTL-bounded in-memory cache. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]entry[V]
	config  Config
	closeCh chan struct{}
	closed  bool
}

// New creates a cache and starts its cleanup goroutine.
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}

	c := &Cache[K, V]{
		items:   make(map[K]entry[V]),
		config:  config,
		closeCh: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Set stores a value with the default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.config.MaxItems {
		if _, exists := c.items[key]; !exists {
			c.evictOldestLocked()
		}
	}
	c.items[key] = entry[V]{
		value:     value,
		expiresAt: time.Now().Add(c.config.DefaultTTL),
	}
}

// Get returns the cached value when present and unexpired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || time.Now().After(item.expiresAt) {
		var zero V
		return zero, false
	}
	return item.value, true
}

// Delete removes a cached value.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the cleanup goroutine.
func (c *Cache[K, V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
}

func (c *Cache[K, V]) evictOldestLocked() {
	var oldestKey K
	var oldestAt time.Time
	first := true
	for key, item := range c.items {
		if first || item.expiresAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = item.expiresAt
			first = false
		}
	}
	if !first {
		delete(c.items, oldestKey)
	}
}

func (c *Cache[K, V]) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
