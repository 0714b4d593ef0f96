package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// maxSessionHours caps a session duration. Long-running automation past a
// day is almost certainly a typo in the request.
const maxSessionHours = 24

// Manager owns session lifecycle: starting single and multi court
// automation, stopping it, and reporting status. Rotation itself belongs
// to Engine; the manager only performs the initial queue fill when a
// session begins.
type Manager struct {
	client   ReservationClient
	pool     *PoolManager
	sessions *SessionStore
	history  HistoryRecorder
	notifier Notifier
	logger   Logger

	interval      time.Duration
	initialSettle time.Duration
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration)
}

// NewManager creates a session manager.
//
// Parameters:
//   - client: reservation service client
//   - pool: user pool assembly
//   - sessions: session persistence
//   - history: audit recorder (may be nil)
//   - notifier: event broadcaster (may be nil)
//   - logger: logger instance (may be nil)
//   - interval: rotation window length, used for status projections
//   - initialSettle: pause between the three initial reservation calls
func NewManager(client ReservationClient, pool *PoolManager, sessions *SessionStore, history HistoryRecorder, notifier Notifier, logger Logger, interval, initialSettle time.Duration) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		client:        client,
		pool:          pool,
		sessions:      sessions,
		history:       history,
		notifier:      notifier,
		logger:        logger,
		interval:      interval,
		initialSettle: initialSettle,
		now:           time.Now,
		sleep:         sleepCtx,
	}
}

// SetClock overrides the manager's clock. Test use only.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Start begins single-court automation on courtID for durationHours.
// The full pool is acquired, all three groups are queued in order, and
// the session is persisted only once every reservation succeeded.
//
// Returns ErrAlreadyRunning if a live single-court session exists,
// ErrInvalidDuration for a non-positive or oversized duration, and
// *PartialProvisioningError when the pool cannot be filled.
func (m *Manager) Start(ctx context.Context, courtID string, durationHours float64) (*Session, error) {
	if courtID == "" {
		return nil, fmt.Errorf("%w: court id required", ErrNoCourts)
	}
	if durationHours <= 0 || durationHours > maxSessionHours {
		return nil, ErrInvalidDuration
	}
	if err := m.checkConflict(ctx, ScopeSingle); err != nil {
		return nil, err
	}

	users, err := m.pool.AcquirePool(ctx, PoolSize, ScopeSingle, nil)
	if err != nil {
		return nil, err
	}

	now := m.now()
	court := CourtState{
		CourtID:          courtID,
		CourtNumber:      m.courtNumber(ctx, courtID),
		Users:            users,
		CurrentGroup:     0,
		LastRotationTime: now,
		IsActive:         true,
	}
	if err := m.fillQueue(ctx, &court); err != nil {
		return nil, err
	}

	sess := &Session{
		SessionID:  NewSessionID(),
		CourtState: court,
		StartTime:  now,
		EndTime:    now.Add(hours(durationHours)),
	}
	if err := m.sessions.SaveSession(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Info("single-court automation started",
		"sessionId", sess.SessionID, "courtId", courtID, "hours", durationHours)
	m.record(ctx, sess.SessionID, ScopeSingle, courtID, "started", 0, "")
	m.publish("started", map[string]any{
		"sessionId": sess.SessionID,
		"courtId":   courtID,
		"endTime":   sess.EndTime,
	})
	return sess, nil
}

// StartMulti begins automation across courtIDs, each court with its own
// pool of twelve. No user appears on two courts. All courts must queue
// successfully before anything is persisted.
func (m *Manager) StartMulti(ctx context.Context, courtIDs []string, durationHours float64) (*MultiSession, error) {
	if len(courtIDs) == 0 {
		return nil, ErrNoCourts
	}
	if durationHours <= 0 || durationHours > maxSessionHours {
		return nil, ErrInvalidDuration
	}
	seen := make(map[string]bool, len(courtIDs))
	for _, id := range courtIDs {
		if id == "" || seen[id] {
			return nil, fmt.Errorf("%w: duplicate or empty court id", ErrNoCourts)
		}
		seen[id] = true
	}
	if err := m.checkConflict(ctx, ScopeMulti); err != nil {
		return nil, err
	}

	now := m.now()
	claimed := make(map[string]bool)
	courts := make([]CourtState, 0, len(courtIDs))
	for _, courtID := range courtIDs {
		users, err := m.pool.AcquirePool(ctx, PoolSize, ScopeMulti, claimed)
		if err != nil {
			return nil, fmt.Errorf("court %s: %w", courtID, err)
		}
		for _, u := range users {
			claimed[u.AnimalName] = true
		}

		court := CourtState{
			CourtID:          courtID,
			CourtNumber:      m.courtNumber(ctx, courtID),
			Users:            users,
			CurrentGroup:     0,
			LastRotationTime: now,
			IsActive:         true,
		}
		if err := m.fillQueue(ctx, &court); err != nil {
			return nil, fmt.Errorf("court %s: %w", courtID, err)
		}
		courts = append(courts, court)
	}

	sess := &MultiSession{
		SessionID: NewSessionID(),
		Courts:    courts,
		StartTime: now,
		EndTime:   now.Add(hours(durationHours)),
		IsActive:  true,
	}
	if err := m.sessions.SaveMultiSession(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Info("multi-court automation started",
		"sessionId", sess.SessionID, "courts", len(courts), "hours", durationHours)
	m.record(ctx, sess.SessionID, ScopeMulti, "", "started", 0, fmt.Sprintf("%d courts", len(courts)))
	m.publish("started", map[string]any{
		"sessionId": sess.SessionID,
		"courts":    courtIDs,
		"endTime":   sess.EndTime,
	})
	return sess, nil
}

// fillQueue performs the initial reservation protocol: group 0 takes the
// court, groups 1 and 2 stack behind it, with a settle pause between
// calls so the reservation service processes them in order.
func (m *Manager) fillQueue(ctx context.Context, court *CourtState) error {
	for group := 0; group < GroupCount; group++ {
		if group > 0 {
			m.sleep(ctx, m.initialSettle)
		}
		names := GroupNames(court.Users, group)
		if err := m.client.Reserve(ctx, court.CourtID, names); err != nil {
			return fmt.Errorf("initial reservation of group %d: %w", group, err)
		}
	}
	return nil
}

// checkConflict rejects a start while a live, unexpired session of the
// same scope exists. An expired leftover is deleted on the spot.
func (m *Manager) checkConflict(ctx context.Context, scope Scope) error {
	now := m.now()
	switch scope {
	case ScopeMulti:
		sess, err := m.sessions.LoadMultiSession(ctx)
		if err != nil {
			return nil
		}
		if sess.IsActive && !sess.Expired(now) {
			return ErrAlreadyRunning
		}
		if sess.Expired(now) {
			m.expireMulti(ctx, sess)
		}
	default:
		sess, err := m.sessions.LoadSession(ctx)
		if err != nil {
			return nil
		}
		if sess.IsActive && !sess.Expired(now) {
			return ErrAlreadyRunning
		}
		if sess.Expired(now) {
			m.expireSingle(ctx, sess)
		}
	}
	return nil
}

// StopResult describes what Stop tore down.
type StopResult struct {
	Stopped  bool     `json:"stopped"`
	Sessions []string `json:"sessions,omitempty"`
	Courts   int      `json:"courts"`
	Message  string   `json:"message"`
}

// Stop tears down whatever sessions are active, in both scopes. Stopping
// when nothing runs is not an error.
func (m *Manager) Stop(ctx context.Context) (*StopResult, error) {
	result := &StopResult{}

	if sess, err := m.sessions.LoadSession(ctx); err == nil {
		if err := m.sessions.DeleteSession(ctx, sess.SessionID); err != nil {
			return nil, err
		}
		result.Stopped = true
		result.Sessions = append(result.Sessions, sess.SessionID)
		result.Courts++
		m.logger.Info("single-court automation stopped", "sessionId", sess.SessionID)
		m.record(ctx, sess.SessionID, ScopeSingle, sess.CourtID, "stopped", sess.CurrentGroup, "manual stop")
		m.publish("stopped", map[string]any{"sessionId": sess.SessionID, "reason": "manual"})
	}

	if sess, err := m.sessions.LoadMultiSession(ctx); err == nil {
		if err := m.sessions.DeleteMultiSession(ctx, sess.SessionID); err != nil {
			return nil, err
		}
		result.Stopped = true
		result.Sessions = append(result.Sessions, sess.SessionID)
		result.Courts += len(sess.Courts)
		m.logger.Info("multi-court automation stopped",
			"sessionId", sess.SessionID, "courts", len(sess.Courts))
		m.record(ctx, sess.SessionID, ScopeMulti, "", "stopped", 0, "manual stop")
		m.publish("stopped", map[string]any{"sessionId": sess.SessionID, "reason": "manual"})
	}

	if !result.Stopped {
		result.Message = "no active automation found"
		return result, nil
	}
	result.Message = "automation stopped"
	return result, nil
}

func (m *Manager) expireSingle(ctx context.Context, sess *Session) {
	if err := m.sessions.DeleteSession(ctx, sess.SessionID); err != nil {
		m.logger.Warn("failed to clean up expired session", "sessionId", sess.SessionID, "error", err)
		return
	}
	m.logger.Info("expired session cleaned up", "sessionId", sess.SessionID)
	m.record(ctx, sess.SessionID, ScopeSingle, sess.CourtID, "stopped", sess.CurrentGroup, "session expired")
}

func (m *Manager) expireMulti(ctx context.Context, sess *MultiSession) {
	if err := m.sessions.DeleteMultiSession(ctx, sess.SessionID); err != nil {
		m.logger.Warn("failed to clean up expired multi session", "sessionId", sess.SessionID, "error", err)
		return
	}
	m.logger.Info("expired multi session cleaned up", "sessionId", sess.SessionID)
	m.record(ctx, sess.SessionID, ScopeMulti, "", "stopped", 0, "session expired")
}

// courtNumber fetches a court's display number. Metadata is cosmetic, so
// lookup failure degrades to zero rather than blocking a start.
func (m *Manager) courtNumber(ctx context.Context, courtID string) int {
	court, err := m.client.GetCourt(ctx, courtID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Warn("court metadata lookup failed", "courtId", courtID, "error", err)
		}
		return 0
	}
	return court.Number
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func (m *Manager) record(ctx context.Context, sessionID string, scope Scope, courtID, action string, group int, detail string) {
	if m.history == nil {
		return
	}
	rec := TickRecord{
		SessionID: sessionID,
		Scope:     scope,
		CourtID:   courtID,
		Action:    action,
		Group:     group,
		Detail:    detail,
		At:        m.now(),
	}
	if err := m.history.RecordTick(ctx, rec); err != nil {
		m.logger.Warn("failed to record session history", "sessionId", sessionID, "error", err)
	}
}

func (m *Manager) publish(event string, payload map[string]any) {
	if m.notifier == nil {
		return
	}
	m.notifier.Publish(event, payload)
}
