// Package cache holds the key-value cache used to keep hot read paths off Postgres.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is the minimal key-value contract. Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns ErrMiss when key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value at key. A non-positive ttl means no expiration.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrMiss signals a cache miss, distinct from transport errors
var ErrMiss = errors.New("cache: miss")
