package kvstore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrNoTTL is returned by TTL when the key exists but has no expiry.
	ErrNoTTL = errors.New("kvstore: key has no TTL")
)

// Store is the shared keyed store consumed by the rate limiter, the circuit
// breaker, and the cache manager.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Atomicity: Incr must be atomic across callers; the production backend is
//   shared by every storefront instance, so no in-process locking may be
//   assumed by callers.
// - Errors: Get returns ErrNotFound on miss; all other errors indicate the
//   store itself is unhealthy and are classified by the caller (fail-open,
//   absorb, or surface).
type Store interface {
	// Get retrieves the raw value for key.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. ttl=0 stores without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments the counter at key and returns the new
	// value. When the increment creates the key (result 1), ttl is applied
	// as the window expiry.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// TTL reports the remaining lifetime of key. Returns ErrNotFound if the
	// key does not exist and ErrNoTTL if it exists without expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Keys lists keys matching a glob-style pattern (e.g. "cache:products:*").
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Ping performs a trivial round trip to verify the store is reachable.
	Ping(ctx context.Context) error
}
