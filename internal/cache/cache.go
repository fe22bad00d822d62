// Package cache provides a small byte cache with in-process and Redis
// implementations, plus a typed GetOrSet helper that stores JSON.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache stores opaque values with a TTL. Misses and backend errors look
// the same to callers: the value is simply recomputed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// GetOrSet returns the cached value for key, or computes it with fn and
// caches the result for ttl. Errors from fn are returned and not cached.
func GetOrSet[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if data, ok := c.Get(ctx, key); ok {
		var v T
		if json.Unmarshal(data, &v) == nil {
			return v, nil
		}
	}

	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		c.Set(ctx, key, data, ttl)
	}
	return v, nil
}
