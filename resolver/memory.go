package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCache is a process-local Cache backed by go-cache. Concurrent misses
// for one key share a single fetch through a singleflight group.
type MemoryCache[T any] struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCache creates an in-memory cache.
//
// Parameters:
//   - defaultExpiration: TTL applied when GetOrFetch is given cache.DefaultExpiration
//   - cleanupInterval: How often expired entries are purged
//
// Returns:
//   - A new *MemoryCache
func NewMemoryCache[T any](defaultExpiration, cleanupInterval time.Duration) *MemoryCache[T] {
	return &MemoryCache[T]{cache: cache.New(defaultExpiration, cleanupInterval)}
}

func (c *MemoryCache[T]) lookup(key string) (T, bool) {
	var zero T
	v, found := c.cache.Get(key)
	if !found {
		return zero, false
	}

	typed, ok := v.(T)
	return typed, ok
}

// GetOrFetch implements Cache.
func (c *MemoryCache[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// a concurrent caller may have filled it while we queued
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		fetched, err := fetchFn(ctx)
		if err != nil {
			return zero, err
		}

		c.cache.Set(key, fetched, ttl)
		return fetched, nil
	})
	if err != nil {
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type in cache for key %s", key)
	}

	return typed, nil
}

// Delete implements Cache.
func (c *MemoryCache[T]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(key)
	return nil
}

// ItemCount implements Cache.
func (c *MemoryCache[T]) ItemCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return c.cache.ItemCount(), nil
}
