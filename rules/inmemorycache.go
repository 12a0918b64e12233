package rules

import (
	"sync"
	"time"
)

// InMemoryResultCache is an in-memory ResultCache.
// Thread-safe for concurrent access.
type InMemoryResultCache struct {
	result   *ProcessedResult
	cachedAt time.Time
	config   CacheConfig
	now      func() time.Time
	mu       sync.RWMutex
}

// NewInMemoryResultCache creates a new, empty cache
func NewInMemoryResultCache(config CacheConfig) *InMemoryResultCache {
	return &InMemoryResultCache{
		config: config,
		now:    time.Now,
	}
}

// Get retrieves the cached result.
// Returns nil if the cache is empty, invalidated or expired.
func (c *InMemoryResultCache) Get() *ProcessedResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.live() {
		return nil
	}
	// results and packs are immutable, so sharing the pointer is safe
	return c.result
}

// Set stores a result in the cache
func (c *InMemoryResultCache) Set(result *ProcessedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.result = result
	c.cachedAt = c.now()
}

// Invalidate clears the cache
func (c *InMemoryResultCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.result = nil
}

// IsValid returns true if the cache holds a live result
func (c *InMemoryResultCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.live()
}

func (c *InMemoryResultCache) live() bool {
	if c.result == nil {
		return false
	}
	if c.config.TTL > 0 && c.now().Sub(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}
