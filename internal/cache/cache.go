package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss signals that the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a string key-value cache. Implementations are safe for concurrent use.
type Cache interface {
	// Get returns ErrMiss when key is not present.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. A ttl <= 0 keeps the value until it is deleted or evicted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}
