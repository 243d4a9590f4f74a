package port

import (
	"context"
	"time"
)

// Cache is a string key-value cache with per-key TTL. Implementations are
// safe for concurrent use and honor ctx for timeouts.
//
// Values are plain strings; callers own serialization.
type Cache interface {
	// Get returns ErrMiss when key is absent or expired. Any other error is a
	// backend failure.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key. A TTL <= 0 means no expiration.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrMiss signals a cache miss, distinct from transport errors.
var ErrMiss = errMiss{}

type errMiss struct{}

func (e errMiss) Error() string { return "cache: miss" }
