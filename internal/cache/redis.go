package cache

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis is a go-redis-backed Cache, grounded on the teacher's
// RedisSkillsCache: same client construction (Addr/Password/DB,
// optional TLS), same SCAN+DEL prefix-invalidation loop, same
// debug-level zerolog logging on cache-layer errors. Get and Set log a
// failed call and also return its error; callers treat cache errors as
// non-fatal.
type Redis struct {
	client redis.UniversalClient
}

// RedisOptions mirrors the teacher's config.RedisConfig fields this store
// needs.
type RedisOptions struct {
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// NewRedis dials opts and pings before returning.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	ropts := &redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}
	if opts.TLSInsecureSkipVerify {
		ropts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

// NewRedisFromURL dials a redis:// or rediss:// DSN (REDIS_URL), using
// go-redis's own URL parser rather than hand-rolling one.
func NewRedisFromURL(ctx context.Context, rawURL string) (*Redis, error) {
	ropts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		log.Debug().Err(err).Str("key", key).Msg("cache_get_error")
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttlSeconds int) error {
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttlSeconds <= 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache_set_error")
		return err
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// InvalidateByPrefix scans and deletes every key starting with prefix,
// returning the count removed. Grounded verbatim on RedisSkillsCache.Invalidate.
func (r *Redis) InvalidateByPrefix(ctx context.Context, prefix string) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Debug().Err(err).Str("key", iter.Val()).Msg("cache_invalidate_error")
			continue
		}
		n++
	}
	return n, iter.Err()
}

// Close releases the underlying Redis connection.
func (r *Redis) Close() error { return r.client.Close() }

var _ Cache = (*Redis)(nil)
