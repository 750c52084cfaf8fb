package criteria

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRulesCacheMissAndHit(t *testing.T) {
	c := NewInMemoryRulesCache(CacheConfig{})
	ctx := context.Background()

	_, ok := c.Get(ctx, "p1")
	assert.False(t, ok)

	c.Set(ctx, "p1", []*Rule{baseRule()})
	rules, ok := c.Get(ctx, "p1")
	require.True(t, ok)
	require.Len(t, rules, 1)

	_, ok = c.Get(ctx, "p2")
	assert.False(t, ok, "entries are per procedure")
}

func TestInMemoryRulesCacheEmptyListIsAHit(t *testing.T) {
	c := NewInMemoryRulesCache(CacheConfig{})
	ctx := context.Background()

	c.Set(ctx, "p1", nil)
	rules, ok := c.Get(ctx, "p1")
	assert.True(t, ok)
	assert.Empty(t, rules)
}

func TestInMemoryRulesCacheInvalidate(t *testing.T) {
	c := NewInMemoryRulesCache(CacheConfig{})
	ctx := context.Background()

	c.Set(ctx, "p1", []*Rule{baseRule()})
	c.Set(ctx, "p2", []*Rule{baseRule()})
	c.Invalidate(ctx, "p1")

	_, ok := c.Get(ctx, "p1")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "p2")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestInMemoryRulesCacheTTL(t *testing.T) {
	c := NewInMemoryRulesCache(CacheConfig{TTL: 20 * time.Millisecond})
	ctx := context.Background()

	c.Set(ctx, "p1", []*Rule{baseRule()})
	_, ok := c.Get(ctx, "p1")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get(ctx, "p1")
	assert.False(t, ok)
}

func TestInMemoryRulesCacheCopies(t *testing.T) {
	c := NewInMemoryRulesCache(CacheConfig{})
	ctx := context.Background()

	original := baseRule()
	c.Set(ctx, "p1", []*Rule{original})
	original.AlertMessage = "mutated after set"

	got, _ := c.Get(ctx, "p1")
	assert.Equal(t, "Severe pitting", got[0].AlertMessage)

	got[0].AlertMessage = "mutated after get"
	again, _ := c.Get(ctx, "p1")
	assert.Equal(t, "Severe pitting", again[0].AlertMessage)
}
