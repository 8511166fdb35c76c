package cache

import (
	"time"
)

// Entry represents a cached value together with its expiry metadata.
type Entry[V any] struct {
	// Value is the cached payload
	Value V

	// ExpiresAt is the instant from which the entry is no longer served
	ExpiresAt time.Time

	// CachedAt is when the entry was stored
	CachedAt time.Time
}

// IsExpired reports whether the entry is past its expiry at the given instant.
// An entry expires exactly at ExpiresAt.
func (e *Entry[V]) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time remaining until expiry at the given instant.
// Returns 0 if already expired.
func (e *Entry[V]) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
