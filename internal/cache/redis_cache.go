package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the shared cache; values survive process restarts and are
// visible to every instance.
type RedisCache struct {
	redisClient redis.UniversalClient
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(redisClient redis.UniversalClient) (*RedisCache, error) {
	if redisClient == nil {
		return nil, errors.New("a redis client is required for the redis cache")
	}
	return &RedisCache{redisClient: redisClient}, nil
}

func (c *RedisCache) Get(ctx context.Context, namespace, key string, target any) (bool, error) {
	fullKey, err := buildKey(ctx, namespace, key)
	if err != nil {
		return false, err
	}

	raw, err := c.redisClient.Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cache key %s: %w", fullKey, err)
	}
	if err = json.Unmarshal(raw, target); err != nil {
		return false, fmt.Errorf("decoding cache key %s: %w", fullKey, err)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	fullKey, err := buildKey(ctx, namespace, key)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache key %s: %w", fullKey, err)
	}
	if err = c.redisClient.Set(ctx, fullKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("writing cache key %s: %w", fullKey, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, namespace, key string) error {
	fullKey, err := buildKey(ctx, namespace, key)
	if err != nil {
		return err
	}
	if err = c.redisClient.Del(ctx, fullKey).Err(); err != nil {
		return fmt.Errorf("deleting cache key %s: %w", fullKey, err)
	}
	return nil
}

// DeleteNamespace scans instead of KEYS so a large cache cannot stall redis.
func (c *RedisCache) DeleteNamespace(ctx context.Context, namespace string) error {
	pattern, err := namespacePattern(ctx, namespace)
	if err != nil {
		return err
	}

	iter := c.redisClient.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err = c.redisClient.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("deleting cache key %s: %w", iter.Val(), err)
		}
	}
	if err = iter.Err(); err != nil {
		return fmt.Errorf("scanning cache namespace %s: %w", pattern, err)
	}
	return nil
}
