package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// flakyKV fails pings until succeedAfter attempts have been made.
type flakyKV struct {
	*Memory
	mu           sync.Mutex
	attempts     int
	succeedAfter int
}

func (f *flakyKV) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts < f.succeedAfter {
		return errors.New("connection refused")
	}
	return f.Memory.Ping(ctx)
}

func TestWaitReady_ImmediateSuccess(t *testing.T) {
	if err := WaitReady(context.Background(), NewMemory(), 3); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestWaitReady_RecoversAfterRetries(t *testing.T) {
	kv := &flakyKV{Memory: NewMemory(), succeedAfter: 2}

	if err := WaitReady(context.Background(), kv, 3); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if kv.attempts != 2 {
		t.Errorf("attempts = %d, want 2", kv.attempts)
	}
}

func TestWaitReady_Cancelled(t *testing.T) {
	kv := &flakyKV{Memory: NewMemory(), succeedAfter: 100}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := WaitReady(ctx, kv, 10); err == nil {
		t.Error("expected error from cancelled readiness wait, got nil")
	}
}
