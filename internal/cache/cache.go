// Package cache implements the key/value cache with TTL per spec §4.8.
// Grounded on the teacher's internal/skills/redis_cache.go (RedisSkillsCache:
// go-redis client, Scan+Del prefix invalidation, zerolog debug logging on
// cache errors), generalized from skills-prompt-specific keys to the
// generic Get/Set/Delete/InvalidateByPrefix surface spec §4.8 names.
package cache

import "context"

// Cache is a key/value store with TTL per spec §4.8.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
	InvalidateByPrefix(ctx context.Context, prefix string) (int, error)
}
