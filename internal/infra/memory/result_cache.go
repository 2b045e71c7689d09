package memory

import (
	"context"
	"sync"
	"time"
)

// ResultCache is a bounded in-process TTL cache. Namespaces are folded into
// the key, so the execution and report namespaces never collide.
type ResultCache struct {
	maxEntries int
	clock      func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewResultCache(maxEntries int) *ResultCache {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &ResultCache{
		maxEntries: maxEntries,
		clock:      time.Now,
		entries:    make(map[string]cacheEntry),
	}
}

func cacheKey(namespace, key string) string {
	return namespace + ":" + key
}

func (c *ResultCache) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	k := cacheKey(namespace, key)
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[k]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.After(now) {
		delete(c.entries, k)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *ResultCache) Put(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	k := cacheKey(namespace, key)
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[k] = cacheEntry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

// evictLocked drops expired entries first and falls back to the entry
// closest to expiry so the map stays bounded.
func (c *ResultCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldestAt time.Time
	for k, entry := range c.entries {
		if !entry.expiresAt.After(now) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || entry.expiresAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = entry.expiresAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
