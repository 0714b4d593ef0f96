package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/court-rotation/internal/rotation"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type mockTicker struct {
	mu    sync.Mutex
	calls int
	fired chan struct{}
}

func newMockTicker() *mockTicker {
	return &mockTicker{fired: make(chan struct{}, 64)}
}

func (m *mockTicker) Tick(_ context.Context) rotation.TickReport {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	select {
	case m.fired <- struct{}{}:
	default:
	}
	return rotation.TickReport{
		Single: rotation.ScopeTick{Action: rotation.ActionWaiting},
		Multi:  rotation.ScopeTick{Action: rotation.ActionNone},
	}
}

func (m *mockTicker) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func waitFired(t *testing.T, ticker *mockTicker) {
	t.Helper()
	select {
	case <-ticker.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a tick")
	}
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestSchedulerTicksImmediatelyOnStart(t *testing.T) {
	ticker := newMockTicker()
	s := New(ticker, time.Hour, nil)

	s.Start(context.Background())
	defer s.Close()

	waitFired(t, ticker)
	if ticker.count() < 1 {
		t.Error("expected an immediate tick on start")
	}
}

func TestSchedulerTicksOnInterval(t *testing.T) {
	ticker := newMockTicker()
	s := New(ticker, 20*time.Millisecond, nil)

	s.Start(context.Background())
	defer s.Close()

	// Immediate tick plus at least two interval ticks.
	waitFired(t, ticker)
	waitFired(t, ticker)
	waitFired(t, ticker)
}

func TestSchedulerTriggerReturnsReport(t *testing.T) {
	ticker := newMockTicker()
	s := New(ticker, time.Hour, nil)

	s.Start(context.Background())
	defer s.Close()
	waitFired(t, ticker)

	report := s.Trigger(context.Background())
	if report.Single.Action != rotation.ActionWaiting {
		t.Errorf("trigger report action = %s, want waiting", report.Single.Action)
	}
	if ticker.count() < 2 {
		t.Errorf("expected trigger to cause a tick, count = %d", ticker.count())
	}
}

func TestSchedulerTriggerWithoutStartRunsInline(t *testing.T) {
	ticker := newMockTicker()
	s := New(ticker, time.Hour, nil)

	report := s.Trigger(context.Background())
	if report.Single.Action != rotation.ActionWaiting {
		t.Errorf("inline trigger action = %s, want waiting", report.Single.Action)
	}
	if ticker.count() != 1 {
		t.Errorf("expected exactly one inline tick, got %d", ticker.count())
	}
}

func TestSchedulerCloseStopsTicking(t *testing.T) {
	ticker := newMockTicker()
	s := New(ticker, 10*time.Millisecond, nil)

	s.Start(context.Background())
	waitFired(t, ticker)
	s.Close()

	settled := ticker.count()
	time.Sleep(50 * time.Millisecond)
	if got := ticker.count(); got != settled {
		t.Errorf("ticks continued after close: %d -> %d", settled, got)
	}
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	ticker := newMockTicker()
	s := New(ticker, time.Hour, nil)

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	defer s.Close()

	waitFired(t, ticker)
}
