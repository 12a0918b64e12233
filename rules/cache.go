package rules

import "time"

// ResultCache holds the most recent processed result for a single source.
// The pipeline itself never caches; long-lived callers such as a directory
// watcher use a ResultCache to serve the last good result between reloads.
type ResultCache interface {
	// Get retrieves the cached result, returns nil on a miss or after expiry
	Get() *ProcessedResult

	// Set stores a result
	Set(result *ProcessedResult)

	// Invalidate clears the cache, forcing a reload on next Get
	Invalidate()

	// IsValid returns true if the cache holds a live result
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for the cached result.
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig returns a cache that only expires on invalidation
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
