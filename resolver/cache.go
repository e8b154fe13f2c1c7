package resolver

import (
	"context"
	"time"
)

// FetchFunc produces a value on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cache stores resolved values with automatic fetching on a miss.
// Implementations must be safe for concurrent use and collapse concurrent
// misses for the same key into a single fetch.
type Cache[T any] interface {
	// GetOrFetch returns the cached value for key, or calls fetchFn and caches
	// its result for ttl.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//   - ttl: Time-to-live for a freshly fetched value
	//   - fetchFn: Called on a miss; its error is returned and nothing is cached
	//
	// Returns:
	//   - The cached or fetched value
	//   - An error if the backend or fetchFn fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete removes key from the cache.
	Delete(ctx context.Context, key string) error

	// ItemCount returns the number of cached entries.
	ItemCount(ctx context.Context) (int, error)
}
