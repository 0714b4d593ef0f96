package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Readiness probe defaults. The first retry fires after initialBackoff,
// doubling each attempt.
const (
	defaultReadyAttempts = 4
	initialBackoff       = time.Second
)

// WaitReady probes the store until it answers a ping or the retry budget
// is exhausted.
//
// It is cancellable through ctx and never blocks longer than the backoff
// schedule allows (1s, 2s, 4s, ... between attempts). Returns nil once the
// store is reachable, or the last ping error wrapped with attempt context.
func WaitReady(ctx context.Context, kv KV, attempts uint64) error {
	if attempts == 0 {
		attempts = defaultReadyAttempts
	}

	attempt := 0
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(initialBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := kv.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store not ready after %d attempts: %w", attempt, err)
	}

	return nil
}
