package domain

import "time"

// CacheEntry value with a bounded validity window.
type CacheEntry[T any] struct {
	Value    T
	CachedAt time.Time
	MaxAge   time.Duration
}

// NewCacheEntry creates an entry stamped at cachedAt.
func NewCacheEntry[T any](value T, cachedAt time.Time, maxAge time.Duration) CacheEntry[T] {
	return CacheEntry[T]{Value: value, CachedAt: cachedAt, MaxAge: maxAge}
}

// Fresh reports now - cachedAt < maxAge.
func (e CacheEntry[T]) Fresh(now time.Time) bool {
	return now.Sub(e.CachedAt) < e.MaxAge
}

// Age returns how long ago the entry was cached.
func (e CacheEntry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}
