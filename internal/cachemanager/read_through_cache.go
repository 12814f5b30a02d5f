package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache computes a value on miss and stores it.
type ReadThroughCache[V any, I any] struct {
	cache    CacheManager[V]
	fn       func(ctx context.Context, input I) (V, error)
	disabled bool
}

// NewReadThroughCache wraps fn with cache. A nil cache or disabled=true
// calls fn every time.
func NewReadThroughCache[V any, I any](
	cache CacheManager[V],
	fn func(ctx context.Context, input I) (V, error),
	disabled bool,
) *ReadThroughCache[V, I] {
	return &ReadThroughCache[V, I]{
		cache:    cache,
		fn:       fn,
		disabled: disabled || cache == nil,
	}
}

func (r *ReadThroughCache[V, I]) Get(ctx context.Context, key string, input I, ttl time.Duration) (V, error) {
	if r.disabled {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)
	return value, nil
}
