package cache

import (
	"time"

	"github.com/binnyhq/part-namer/pkg/registry"
)

// Defaults for NewRegistryCache.
const (
	DefaultTTL     = 30 * time.Second
	DefaultMaxSize = 256
)

// RegistryCache keeps one LRUCache per registry kind so that a change to one
// registry leaves the other's entries in place. A nil *RegistryCache is a
// valid, disabled cache.
type RegistryCache struct {
	caches map[registry.Kind]*LRUCache
}

// NewRegistryCache returns a cache for every kind. A non-positive ttl
// disables caching and returns nil.
func NewRegistryCache(maxSize int, ttl time.Duration) *RegistryCache {
	if ttl <= 0 {
		return nil
	}
	rc := &RegistryCache{caches: make(map[registry.Kind]*LRUCache, len(registry.Kinds))}
	for _, k := range registry.Kinds {
		rc.caches[k] = NewLRUCache(maxSize, ttl)
	}
	return rc
}

// For returns the cache for kind, or nil when disabled.
func (rc *RegistryCache) For(kind registry.Kind) *LRUCache {
	if rc == nil {
		return nil
	}
	return rc.caches[kind]
}

// Invalidate clears cached responses for kind.
func (rc *RegistryCache) Invalidate(kind registry.Kind) {
	if c := rc.For(kind); c != nil {
		c.InvalidateAll()
	}
}

// InvalidateAll clears every kind.
func (rc *RegistryCache) InvalidateAll() {
	if rc == nil {
		return
	}
	for _, c := range rc.caches {
		c.InvalidateAll()
	}
}
