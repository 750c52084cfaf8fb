package criteria

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "criteria:rules:"

// RedisRulesCache is a RulesCache shared by every process pointing at the
// same Redis. Redis failures are logged and treated as misses, so evaluation
// falls back to the store.
type RedisRulesCache struct {
	rdb    *redis.Client
	config CacheConfig
	log    *slog.Logger
}

// NewRedisRulesCache creates a Redis-backed rules cache.
func NewRedisRulesCache(rdb *redis.Client, config CacheConfig, log *slog.Logger) *RedisRulesCache {
	if log == nil {
		log = slog.Default()
	}
	return &RedisRulesCache{
		rdb:    rdb,
		config: config,
		log:    log.With("component", "redis_rules_cache"),
	}
}

func redisKey(procedureID string) string {
	return redisKeyPrefix + procedureID
}

func (c *RedisRulesCache) Get(ctx context.Context, procedureID string) ([]*Rule, bool) {
	raw, err := c.rdb.Get(ctx, redisKey(procedureID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.WarnContext(ctx, "rule cache read failed", "procedure_id", procedureID, "error", err)
		return nil, false
	}

	var rules []*Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		c.log.WarnContext(ctx, "rule cache entry is corrupt", "procedure_id", procedureID, "error", err)
		return nil, false
	}
	return rules, true
}

func (c *RedisRulesCache) Set(ctx context.Context, procedureID string, rules []*Rule) {
	if rules == nil {
		rules = []*Rule{}
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		c.log.WarnContext(ctx, "rule cache encode failed", "procedure_id", procedureID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, redisKey(procedureID), raw, c.config.TTL).Err(); err != nil {
		c.log.WarnContext(ctx, "rule cache write failed", "procedure_id", procedureID, "error", err)
	}
}

func (c *RedisRulesCache) Invalidate(ctx context.Context, procedureID string) {
	if err := c.rdb.Del(ctx, redisKey(procedureID)).Err(); err != nil {
		c.log.WarnContext(ctx, "rule cache invalidation failed", "procedure_id", procedureID, "error", err)
	}
}
