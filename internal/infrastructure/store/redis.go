package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a KV backed by a direct Redis connection.
//
// The client is long-lived and shared process-wide; go-redis handles
// reconnection internally, so a transient broker outage surfaces as
// per-operation errors rather than a crashed process.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed KV from a connection URL
// (redis://[user:pass@]host:port[/db]).
//
// The connection is not verified here; call Ping (or WaitReady) to
// confirm reachability.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	return &Redis{client: redis.NewClient(opts)}, nil
}

// Set stores value under key with the given TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: setting %q: %w", ErrUnavailable, key, err)
	}
	return nil
}

// Get retrieves the value stored under key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting %q: %w", ErrUnavailable, key, err)
	}
	return data, nil
}

// Delete removes the given keys.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: deleting keys: %w", ErrUnavailable, err)
	}
	return nil
}

// Ping verifies the Redis server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
