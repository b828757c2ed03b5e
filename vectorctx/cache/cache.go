// Package cache is a small TTL cache for values such as Vector Context
// search results and query embeddings. The Injector in package
// vectorctx does not consult it. Grounded on the
// teacher's agent/cache_redis.go RedisCache (go-redis v9 client,
// key prefix, default TTL), narrowed to Get/Set since the injector
// never needs the teacher's full cache-stats/eviction surface.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores small JSON-able values under string keys with a TTL.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Redis is a Cache backed by a Redis connection.
type Redis struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
}

// NewRedis creates a Redis-backed Cache. An empty prefix defaults to
// "llmadapter:vectorctx".
func NewRedis(client redis.UniversalClient, prefix string, defaultTTL time.Duration) *Redis {
	if prefix == "" {
		prefix = "llmadapter:vectorctx"
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Redis{client: client, prefix: prefix, defaultTTL: defaultTTL}
}

func (c *Redis) key(k string) string {
	return c.prefix + ":" + k
}

func (c *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: redis get: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache: decoding cached value: %w", err)
	}
	return true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encoding value: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}
