package store

import (
	"context"
	"errors"
	"time"
)

// Domain errors for the store package.
var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("store: key not found")

	// ErrUnavailable is returned when the backing service cannot be reached.
	ErrUnavailable = errors.New("store: unavailable")
)

// KV is the capability interface for session state persistence.
//
// Values are opaque byte slices; no field interpretation happens at this
// layer. Every write carries a time-to-live. Implementations must be safe
// for concurrent use and must tolerate transient disconnection without
// crashing the process.
//
// Three implementations exist, selected at construction time:
//   - NewRedis:  direct Redis connection
//   - NewRESTKV: managed key-value service over HTTPS
//   - NewMemory: in-process map, for tests
type KV interface {
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves the value stored under key.
	// Returns ErrNotFound if the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the given keys. Deleting an absent key is not an error.
	Delete(ctx context.Context, keys ...string) error

	// Ping verifies the backing service is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
