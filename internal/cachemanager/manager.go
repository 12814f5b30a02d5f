// Package cachemanager memoises derived values with expiry. The reactor
// core uses it for near-miss event name suggestions, which are costly to
// recompute on every subscriber retry.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager stores values by string key with a per-entry TTL.
type CacheManager[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...string) error
	Flush(ctx context.Context) error
}
