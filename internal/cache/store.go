package cache

import (
	"context"
	"time"
)

// Store is the shared counter store behind rate-limit buckets. Implementations
// must be safe for concurrent use; counters expire with their window.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
	Delete(ctx context.Context, keys ...string) error
}
