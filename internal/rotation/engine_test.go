package rotation

import (
	"context"
	"sync"
	"testing"
	"time"
)

// startSingle runs a full single-court start and clears the mock's call
// log so tests only observe what the tick under test did.
func startSingle(t *testing.T, h *harness, courtID string, hours float64) *Session {
	t.Helper()
	sess, err := h.manager.Start(context.Background(), courtID, hours)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.client.mu.Lock()
	h.client.reservations = nil
	h.client.mu.Unlock()
	return sess
}

func startMulti(t *testing.T, h *harness, courtIDs []string, hours float64) *MultiSession {
	t.Helper()
	sess, err := h.manager.StartMulti(context.Background(), courtIDs, hours)
	if err != nil {
		t.Fatalf("StartMulti: %v", err)
	}
	h.client.mu.Lock()
	h.client.reservations = nil
	h.client.mu.Unlock()
	return sess
}

func TestTickNoSession(t *testing.T) {
	h := newHarness(t)

	report := h.engine.Tick(context.Background())
	if report.Single.Action != ActionNone || report.Multi.Action != ActionNone {
		t.Errorf("expected none/none, got %s/%s", report.Single.Action, report.Multi.Action)
	}
	if report.Overall() != ActionNone {
		t.Errorf("overall = %s, want none", report.Overall())
	}
}

func TestTickBeforeWindowWaits(t *testing.T) {
	h := newHarness(t)
	startSingle(t, h, "court-1", 2)

	h.clock.Advance(29 * time.Minute)

	report := h.engine.Tick(context.Background())
	if report.Single.Action != ActionWaiting {
		t.Fatalf("action = %s, want waiting", report.Single.Action)
	}
	court := report.Single.Courts[0]
	if court.MinutesToNextRotation != 1 {
		t.Errorf("minutes to next = %d, want 1", court.MinutesToNextRotation)
	}
	if h.client.reservationCount() != 0 {
		t.Errorf("waiting tick made %d reservation calls", h.client.reservationCount())
	}
}

func TestTickRotatesWhenWindowElapses(t *testing.T) {
	h := newHarness(t)
	sess := startSingle(t, h, "court-1", 2)

	h.clock.Advance(30 * time.Minute)

	report := h.engine.Tick(context.Background())
	if report.Single.Action != ActionRotated {
		t.Fatalf("action = %s, want rotated", report.Single.Action)
	}

	res := h.client.lastReservation()
	if res.CourtID != "court-1" {
		t.Errorf("reserved on %q, want court-1", res.CourtID)
	}
	want := GroupNames(sess.Users, 1)
	if len(res.Names) != GroupSize {
		t.Fatalf("reserved %d names, want %d", len(res.Names), GroupSize)
	}
	for i := range want {
		if res.Names[i] != want[i] {
			t.Errorf("reserved name[%d] = %q, want %q", i, res.Names[i], want[i])
		}
	}

	loaded, err := h.sessions.LoadSession(context.Background())
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.CurrentGroup != 1 {
		t.Errorf("current group = %d, want 1", loaded.CurrentGroup)
	}
	if !loaded.LastRotationTime.Equal(h.clock.Now()) {
		t.Errorf("last rotation = %v, want %v", loaded.LastRotationTime, h.clock.Now())
	}
}

// A second tick in the same window must be a no-op.
func TestTickIsIdempotentWithinWindow(t *testing.T) {
	h := newHarness(t)
	startSingle(t, h, "court-1", 2)

	h.clock.Advance(30 * time.Minute)

	if report := h.engine.Tick(context.Background()); report.Single.Action != ActionRotated {
		t.Fatalf("first tick = %s, want rotated", report.Single.Action)
	}
	if report := h.engine.Tick(context.Background()); report.Single.Action != ActionWaiting {
		t.Errorf("second tick = %s, want waiting", report.Single.Action)
	}
	if h.client.reservationCount() != 1 {
		t.Errorf("expected exactly 1 reservation, got %d", h.client.reservationCount())
	}
}

func TestTickConcurrentTriggersRotateOnce(t *testing.T) {
	h := newHarness(t)
	startSingle(t, h, "court-1", 2)

	h.clock.Advance(30 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.engine.Tick(context.Background())
		}()
	}
	wg.Wait()

	if h.client.reservationCount() != 1 {
		t.Errorf("concurrent ticks made %d reservations, want 1", h.client.reservationCount())
	}
	loaded, err := h.sessions.LoadSession(context.Background())
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.CurrentGroup != 1 {
		t.Errorf("current group = %d, want 1", loaded.CurrentGroup)
	}
}

// Full cycle: group 1, then 2, then back to 0.
func TestTickCyclesThroughGroups(t *testing.T) {
	h := newHarness(t)
	sess := startSingle(t, h, "court-1", 3)

	wantGroups := []int{1, 2, 0}
	for _, want := range wantGroups {
		h.clock.Advance(30 * time.Minute)
		report := h.engine.Tick(context.Background())
		if report.Single.Action != ActionRotated {
			t.Fatalf("tick for group %d = %s, want rotated", want, report.Single.Action)
		}
		res := h.client.lastReservation()
		names := GroupNames(sess.Users, want)
		if res.Names[0] != names[0] {
			t.Errorf("group %d reserved %q first, want %q", want, res.Names[0], names[0])
		}
	}
}

func TestTickExpiresSession(t *testing.T) {
	h := newHarness(t)
	startSingle(t, h, "court-1", 2)

	h.clock.Advance(2*time.Hour + time.Minute)

	report := h.engine.Tick(context.Background())
	if report.Single.Action != ActionStopped {
		t.Fatalf("action = %s, want stopped", report.Single.Action)
	}
	if _, err := h.sessions.LoadSession(context.Background()); err == nil {
		t.Error("expired session still loadable")
	}
	if !h.notifier.seen("stopped") {
		t.Error("expected a stopped event")
	}
	if h.client.reservationCount() != 0 {
		t.Error("expired session still made reservations")
	}
}

func TestTickReserveFailureDeactivatesSession(t *testing.T) {
	h := newHarness(t)
	startSingle(t, h, "court-1", 2)
	h.client.failReserveAll = true

	h.clock.Advance(30 * time.Minute)

	report := h.engine.Tick(context.Background())
	if report.Single.Action != ActionError {
		t.Fatalf("action = %s, want error", report.Single.Action)
	}
	if report.Single.Courts[0].Error == "" {
		t.Error("expected a populated error message")
	}

	loaded, err := h.sessions.LoadSession(context.Background())
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.IsActive {
		t.Error("failed session still active")
	}
	if !h.notifier.seen("failed") {
		t.Error("expected a failed event")
	}

	// Deactivated sessions are left alone by later ticks.
	h.clock.Advance(30 * time.Minute)
	if report := h.engine.Tick(context.Background()); report.Single.Action != ActionNone {
		t.Errorf("tick on inactive session = %s, want none", report.Single.Action)
	}
}

func TestTickMultiRotatesEachCourtIndependently(t *testing.T) {
	h := newHarness(t)
	sess := startMulti(t, h, []string{"court-1", "court-2"}, 2)

	h.clock.Advance(30 * time.Minute)

	report := h.engine.Tick(context.Background())
	if report.Multi.Action != ActionRotated {
		t.Fatalf("multi action = %s, want rotated", report.Multi.Action)
	}
	if len(report.Multi.Courts) != 2 {
		t.Fatalf("expected 2 court results, got %d", len(report.Multi.Courts))
	}
	for _, court := range report.Multi.Courts {
		if court.Action != ActionRotated {
			t.Errorf("court %s action = %s, want rotated", court.CourtID, court.Action)
		}
	}

	// Each court rotated its own pool; no shared users.
	res1 := h.client.reservationsFor("court-1")
	res2 := h.client.reservationsFor("court-2")
	if len(res1) != 1 || len(res2) != 1 {
		t.Fatalf("reservations per court = %d/%d, want 1/1", len(res1), len(res2))
	}
	names := map[string]bool{}
	for _, court := range sess.Courts {
		for _, u := range court.Users {
			if names[u.AnimalName] {
				t.Fatalf("user %s appears on two courts", u.AnimalName)
			}
			names[u.AnimalName] = true
		}
	}
}

// One court failing must not stop its siblings, and the failed court is
// skipped from then on.
func TestTickMultiIsolatesCourtFailure(t *testing.T) {
	h := newHarness(t)
	startMulti(t, h, []string{"court-1", "court-2"}, 2)
	h.client.failReserveCourt = "court-1"

	h.clock.Advance(30 * time.Minute)

	report := h.engine.Tick(context.Background())
	if report.Multi.Action != ActionError {
		t.Fatalf("multi action = %s, want error", report.Multi.Action)
	}
	byCourt := map[string]CourtTick{}
	for _, c := range report.Multi.Courts {
		byCourt[c.CourtID] = c
	}
	if byCourt["court-1"].Action != ActionError {
		t.Errorf("failing court action = %s, want error", byCourt["court-1"].Action)
	}
	if byCourt["court-2"].Action != ActionRotated {
		t.Errorf("healthy court action = %s, want rotated", byCourt["court-2"].Action)
	}

	loaded, err := h.sessions.LoadMultiSession(context.Background())
	if err != nil {
		t.Fatalf("LoadMultiSession: %v", err)
	}
	if findCourt(loaded, "court-1").IsActive {
		t.Error("failed court still marked active")
	}
	if !findCourt(loaded, "court-2").IsActive {
		t.Error("healthy court lost its active flag")
	}

	// Next window: only the healthy court rotates.
	h.client.failReserveCourt = ""
	h.clock.Advance(30 * time.Minute)
	report = h.engine.Tick(context.Background())
	byCourt = map[string]CourtTick{}
	for _, c := range report.Multi.Courts {
		byCourt[c.CourtID] = c
	}
	if byCourt["court-1"].Action != ActionNone {
		t.Errorf("deactivated court action = %s, want none", byCourt["court-1"].Action)
	}
	if byCourt["court-2"].Action != ActionRotated {
		t.Errorf("healthy court action = %s, want rotated", byCourt["court-2"].Action)
	}
}

func TestTickMultiExpiry(t *testing.T) {
	h := newHarness(t)
	startMulti(t, h, []string{"court-1", "court-2"}, 1)

	h.clock.Advance(61 * time.Minute)

	report := h.engine.Tick(context.Background())
	if report.Multi.Action != ActionStopped {
		t.Fatalf("multi action = %s, want stopped", report.Multi.Action)
	}
	if _, err := h.sessions.LoadMultiSession(context.Background()); err == nil {
		t.Error("expired multi session still loadable")
	}
}

func TestTickRecordsHistory(t *testing.T) {
	h := newHarness(t)
	startSingle(t, h, "court-1", 2)

	h.clock.Advance(30 * time.Minute)
	h.engine.Tick(context.Background())

	actions := h.history.actions()
	found := false
	for _, a := range actions {
		if a == string(ActionRotated) {
			found = true
		}
	}
	if !found {
		t.Errorf("no rotated record in history: %v", actions)
	}
}

func TestOverallActionDominance(t *testing.T) {
	cases := []struct {
		name   string
		report TickReport
		want   TickAction
	}{
		{"error beats rotated", TickReport{Single: ScopeTick{Action: ActionRotated}, Multi: ScopeTick{Action: ActionError}}, ActionError},
		{"rotated beats waiting", TickReport{Single: ScopeTick{Action: ActionWaiting}, Multi: ScopeTick{Action: ActionRotated}}, ActionRotated},
		{"stopped beats waiting", TickReport{Single: ScopeTick{Action: ActionStopped}, Multi: ScopeTick{Action: ActionWaiting}}, ActionStopped},
		{"both none", TickReport{Single: ScopeTick{Action: ActionNone}, Multi: ScopeTick{Action: ActionNone}}, ActionNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.report.Overall(); got != tc.want {
				t.Errorf("overall = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRotationSettlesBeforeReserving(t *testing.T) {
	h := newHarness(t)
	startSingle(t, h, "court-1", 2)

	h.engine.settleDelay = 500 * time.Millisecond
	var mu sync.Mutex
	var sleeps []time.Duration
	reservedBeforePause := false
	h.engine.sleep = func(_ context.Context, d time.Duration) {
		mu.Lock()
		sleeps = append(sleeps, d)
		if h.client.reservationCount() > 0 {
			reservedBeforePause = true
		}
		mu.Unlock()
	}

	h.clock.Advance(30 * time.Minute)
	h.engine.Tick(context.Background())

	if got := h.client.reservationCount(); got != 1 {
		t.Fatalf("reservations = %d, want 1", got)
	}
	if len(sleeps) != 1 || sleeps[0] != 500*time.Millisecond {
		t.Fatalf("settle pauses = %v, want one 500ms pause", sleeps)
	}
	if reservedBeforePause {
		t.Error("reserve call ran before the settle pause")
	}
}
