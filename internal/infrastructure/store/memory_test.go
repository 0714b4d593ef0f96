package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get = %q, want %q", got, "v")
	}
}

func TestMemory_GetMissing(t *testing.T) {
	kv := NewMemory()

	_, err := kv.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	now := time.Now()
	kv.SetClock(func() time.Time { return now })

	if err := kv.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Still live just inside the TTL.
	now = now.Add(59 * time.Minute)
	kv.SetClock(func() time.Time { return now })
	if _, err := kv.Get(ctx, "k"); err != nil {
		t.Fatalf("Get within TTL: %v", err)
	}

	// Expired past the TTL, and removed on read.
	now = now.Add(2 * time.Minute)
	kv.SetClock(func() time.Time { return now })
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got: %v", err)
	}
	if kv.Len() != 0 {
		t.Errorf("expected expired entry to be removed, %d entries remain", kv.Len())
	}
}

func TestMemory_Delete(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	_ = kv.Set(ctx, "a", []byte("1"), time.Hour)
	_ = kv.Set(ctx, "b", []byte("2"), time.Hour)

	if err := kv.Delete(ctx, "a", "b", "missing"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := kv.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected a deleted, got: %v", err)
	}
	if _, err := kv.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected b deleted, got: %v", err)
	}
}

func TestMemory_ValueIsolation(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	original := []byte("value")
	_ = kv.Set(ctx, "k", original, time.Hour)
	original[0] = 'X'

	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "value" {
		t.Errorf("stored value mutated through caller's slice: %q", got)
	}
}
