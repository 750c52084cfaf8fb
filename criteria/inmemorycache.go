package criteria

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	rules    []*Rule
	cachedAt time.Time
}

// InMemoryRulesCache is a process-local RulesCache. Safe for concurrent use.
type InMemoryRulesCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

// NewInMemoryRulesCache creates a new in-memory rules cache.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

// Get returns a copy of the cached rules of procedureID.
func (c *InMemoryRulesCache) Get(ctx context.Context, procedureID string) ([]*Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[procedureID]
	if !ok {
		return nil, false
	}
	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil, false
	}
	return cloneRules(entry.rules), true
}

// Set stores a copy of rules.
func (c *InMemoryRulesCache) Set(ctx context.Context, procedureID string, rules []*Rule) {
	snapshot := cloneRules(rules)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[procedureID] = cacheEntry{rules: snapshot, cachedAt: time.Now()}
}

// Invalidate drops the entry of procedureID.
func (c *InMemoryRulesCache) Invalidate(ctx context.Context, procedureID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, procedureID)
}

// Len returns the number of cached procedures, expired entries included.
func (c *InMemoryRulesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
