// README: Route cache backed by Redis; key is the stop-sequence hash.
package route

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "route:stops:"

type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCache(redis *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{redis: redis, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Route, bool, error) {
	val, err := c.redis.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var r Route
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, r *Route) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, cacheKeyPrefix+key, b, c.ttl).Err()
}
