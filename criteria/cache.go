package criteria

import (
	"context"
	"time"
)

// RulesCache holds canonical-ordered rule lists per procedure. Implementations
// must hand out copies so a cached list is never mutated by a caller.
type RulesCache interface {
	// Get returns the cached rules of a procedure, or false on a miss or
	// expired entry.
	Get(ctx context.Context, procedureID string) ([]*Rule, bool)

	// Set stores the rules of a procedure.
	Set(ctx context.Context, procedureID string, rules []*Rule)

	// Invalidate drops the entry of a procedure, forcing a reload on the next
	// Get.
	Invalidate(ctx context.Context, procedureID string)
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL bounds how long an entry is served. Mutations through the engine
	// invalidate immediately; the TTL bounds staleness caused by writers in
	// other processes. Zero means entries never expire.
	TTL time.Duration
}

// DefaultCacheConfig returns the default rule cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 30 * time.Second}
}

func cloneRules(rules []*Rule) []*Rule {
	if rules == nil {
		return nil
	}
	out := make([]*Rule, len(rules))
	for i, r := range rules {
		out[i] = r.Clone()
	}
	return out
}
