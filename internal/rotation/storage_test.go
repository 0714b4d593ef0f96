package rotation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/court-rotation/internal/infrastructure/store"
)

// failingKV errors on every operation, simulating a backend outage.
type failingKV struct{}

func (failingKV) Set(context.Context, string, []byte, time.Duration) error {
	return store.ErrUnavailable
}
func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, store.ErrUnavailable }
func (failingKV) Delete(context.Context, ...string) error     { return store.ErrUnavailable }
func (failingKV) Ping(context.Context) error                  { return store.ErrUnavailable }
func (failingKV) Close() error                                { return nil }

func testSession(clock *fakeClock) *Session {
	now := clock.Now()
	return &Session{
		SessionID: NewSessionID(),
		CourtState: CourtState{
			CourtID:          "court-1",
			CourtNumber:      1,
			Users:            makeUsers(PoolSize),
			CurrentGroup:     0,
			LastRotationTime: now,
			IsActive:         true,
		},
		StartTime: now,
		EndTime:   now.Add(2 * time.Hour),
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := testSession(h.clock)
	if err := h.sessions.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	loaded, err := h.sessions.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.SessionID != sess.SessionID {
		t.Errorf("session id = %q, want %q", loaded.SessionID, sess.SessionID)
	}
	if loaded.CourtID != "court-1" || len(loaded.Users) != PoolSize {
		t.Errorf("court state did not survive the round trip: %+v", loaded.CourtState)
	}
	if !loaded.IsActive {
		t.Error("expected loaded session to be active")
	}
}

func TestSessionStoreLoadAbsent(t *testing.T) {
	h := newHarness(t)

	if _, err := h.sessions.LoadSession(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
	if _, err := h.sessions.LoadMultiSession(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession for multi scope, got %v", err)
	}
}

// A backend outage on read must look like an absent session, never an error
// that aborts a tick.
func TestSessionStoreReadFailsOpen(t *testing.T) {
	sessions := NewSessionStore(failingKV{}, 6*time.Hour, nil)

	if _, err := sessions.LoadSession(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession on backend outage, got %v", err)
	}
}

// Writes must fail closed so callers never believe unsaved state persisted.
func TestSessionStoreWriteFailsClosed(t *testing.T) {
	sessions := NewSessionStore(failingKV{}, 6*time.Hour, nil)
	clock := newFakeClock()
	sessions.SetClock(clock.Now)

	if err := sessions.SaveSession(context.Background(), testSession(clock)); !errors.Is(err, ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
	if err := sessions.DeleteSession(context.Background(), "session_x"); !errors.Is(err, ErrStorage) {
		t.Errorf("expected ErrStorage on delete, got %v", err)
	}
}

func TestSessionStoreDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := testSession(h.clock)
	if err := h.sessions.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := h.sessions.DeleteSession(ctx, sess.SessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := h.sessions.LoadSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession after delete, got %v", err)
	}
	if h.kv.Len() != 0 {
		t.Errorf("expected empty store after delete, %d keys remain", h.kv.Len())
	}
}

func TestSessionStoreRecordsExpireWithTTL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.sessions.SaveSession(ctx, testSession(h.clock)); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	h.clock.Advance(6*time.Hour + time.Minute)

	if _, err := h.sessions.LoadSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected records to expire with the TTL, got %v", err)
	}
}

func TestSessionStoreScopesAreIndependent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	multi := &MultiSession{
		SessionID: NewSessionID(),
		Courts: []CourtState{
			{CourtID: "court-1", CourtNumber: 1, Users: makeUsers(PoolSize), IsActive: true, LastRotationTime: now},
			{CourtID: "court-2", CourtNumber: 2, Users: makeUsers(PoolSize), IsActive: true, LastRotationTime: now},
		},
		StartTime: now,
		EndTime:   now.Add(2 * time.Hour),
		IsActive:  true,
	}
	if err := h.sessions.SaveMultiSession(ctx, multi); err != nil {
		t.Fatalf("SaveMultiSession: %v", err)
	}

	if _, err := h.sessions.LoadSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("multi save leaked into single scope: %v", err)
	}

	loaded, err := h.sessions.LoadMultiSession(ctx)
	if err != nil {
		t.Fatalf("LoadMultiSession: %v", err)
	}
	if len(loaded.Courts) != 2 {
		t.Errorf("expected 2 courts, got %d", len(loaded.Courts))
	}
}
