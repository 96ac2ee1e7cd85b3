package rules

import (
	"sync/atomic"
	"time"
)

// SnapshotCache holds the current RuleSet between refreshes.
// This allows swapping the in-memory cache for a shared one.
type SnapshotCache interface {
	// Get returns the cached snapshot, or nil on a miss or after expiry
	Get() *RuleSet

	// Set publishes a snapshot
	Set(set *RuleSet)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if the cache holds an unexpired snapshot
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for a cached snapshot.
	// Set to 0 for no expiration (refresh on mutations only).
	TTL time.Duration
}

// DefaultCacheConfig returns the default: no TTL.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{}
}

// InMemorySnapshotCache publishes snapshots through an atomic pointer, so
// readers never block writers and always see a complete RuleSet.
type InMemorySnapshotCache struct {
	config  CacheConfig
	current atomic.Pointer[cachedSnapshot]
}

type cachedSnapshot struct {
	set      *RuleSet
	cachedAt time.Time
}

// NewInMemorySnapshotCache creates a new in-memory snapshot cache
func NewInMemorySnapshotCache(config CacheConfig) *InMemorySnapshotCache {
	return &InMemorySnapshotCache{config: config}
}

// Get returns the cached snapshot, or nil if the cache is empty or expired.
func (c *InMemorySnapshotCache) Get() *RuleSet {
	entry := c.current.Load()
	if !c.fresh(entry) {
		return nil
	}
	return entry.set
}

// Set publishes a snapshot.
func (c *InMemorySnapshotCache) Set(set *RuleSet) {
	if set == nil {
		c.current.Store(nil)
		return
	}
	c.current.Store(&cachedSnapshot{set: set, cachedAt: time.Now()})
}

// Invalidate clears the cache.
func (c *InMemorySnapshotCache) Invalidate() {
	c.current.Store(nil)
}

// IsValid returns true if the cache contains an unexpired snapshot.
func (c *InMemorySnapshotCache) IsValid() bool {
	return c.fresh(c.current.Load())
}

func (c *InMemorySnapshotCache) fresh(entry *cachedSnapshot) bool {
	if entry == nil {
		return false
	}
	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return false
	}
	return true
}
