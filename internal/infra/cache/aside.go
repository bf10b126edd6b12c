package cache

import (
	"context"
	"time"
)

type AsidePattern struct {
	cache   *Cache
	stats   Stats
	observe func(hit bool)
}

func NewAsidePattern(cache *Cache) *AsidePattern {
	return &AsidePattern{cache: cache}
}

// Observe registers a callback invoked with the outcome of every lookup.
// Must be set before the pattern is shared across goroutines.
func (a *AsidePattern) Observe(fn func(hit bool)) {
	a.observe = fn
}

// GetOrLoad reads through the cache with a typed destination: a hit decodes
// the cached JSON straight into T, a miss runs the loader and stores its
// result best-effort. A nil loader result is returned as-is and not cached;
// callers that want negative caching wrap the value in an envelope.
func GetOrLoad[T any](ctx context.Context, a *AsidePattern, key string, ttl time.Duration, loader func() (*T, error)) (*T, error) {
	var cached T
	err := a.cache.Get(ctx, key, &cached)
	if err == nil {
		a.stats.recordHit()
		if a.observe != nil {
			a.observe(true)
		}
		return &cached, nil
	}

	if err != ErrCacheMiss {
		return nil, err
	}
	a.stats.recordMiss()
	if a.observe != nil {
		a.observe(false)
	}

	result, err := loader()
	if err != nil {
		return nil, err
	}
	if result != nil {
		_ = a.cache.Set(ctx, key, result, ttl)
	}
	return result, nil
}

func (a *AsidePattern) Invalidate(ctx context.Context, keys ...string) error {
	return a.cache.Delete(ctx, keys...)
}

func (a *AsidePattern) Stats() *Stats {
	return &a.stats
}
