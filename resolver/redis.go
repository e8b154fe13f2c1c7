package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisCache is a Cache shared between processes through Redis. Values are
// stored as JSON under Prefix+key. Concurrent misses inside one process are
// collapsed with singleflight; across processes a miss may be fetched more
// than once, which is harmless for address lookups.
type RedisCache[T any] struct {
	client *redis.Client
	prefix string
	group  singleflight.Group
}

// NewRedisCache creates a Redis-backed cache.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	cache := NewRedisCache[[]string](client, "linereactor:resolve:")
func NewRedisCache[T any](client *redis.Client, prefix string) *RedisCache[T] {
	return &RedisCache[T]{client: client, prefix: prefix}
}

func (c *RedisCache[T]) get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}

	if err != nil {
		return zero, false, fmt.Errorf("redis get: %w", err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return v, true, nil
}

// GetOrFetch implements Cache.
func (c *RedisCache[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T
	v, found, err := c.get(ctx, key)
	if err != nil || found {
		return v, err
	}

	shared, err, _ := c.group.Do(key, func() (any, error) {
		fetched, err := fetchFn(ctx)
		if err != nil {
			return zero, err
		}

		data, err := json.Marshal(fetched)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal result: %w", err)
		}

		if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
			return zero, fmt.Errorf("failed to cache result: %w", err)
		}

		return fetched, nil
	})
	if err != nil {
		return zero, err
	}

	typed, ok := shared.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type in cache for key %s", key)
	}

	return typed, nil
}

// Delete implements Cache.
func (c *RedisCache[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// ItemCount implements Cache. It scans for keys under the prefix.
func (c *RedisCache[T]) ItemCount(ctx context.Context) (int, error) {
	count := 0
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}

	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("failed to scan keys: %w", err)
	}

	return count, nil
}
