package rotation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// TickAction classifies what a tick did for one court or session.
type TickAction string

const (
	// ActionNone means no session (or an inactive one) was found.
	ActionNone TickAction = "none"
	// ActionWaiting means the rotation window has not elapsed yet.
	ActionWaiting TickAction = "waiting"
	// ActionRotated means the next group was placed on the court.
	ActionRotated TickAction = "rotated"
	// ActionStopped means the session expired and was cleaned up.
	ActionStopped TickAction = "stopped"
	// ActionError means rotation was attempted and failed.
	ActionError TickAction = "error"
)

// CourtTick is the per-court outcome of a tick.
type CourtTick struct {
	CourtID               string     `json:"courtId"`
	CourtNumber           int        `json:"courtNumber"`
	Action                TickAction `json:"action"`
	CurrentGroup          int        `json:"currentGroup"`
	MinutesToNextRotation int        `json:"minutesToNextRotation"`
	Error                 string     `json:"error,omitempty"`
}

// ScopeTick is the outcome of a tick for one session scope.
type ScopeTick struct {
	SessionID string      `json:"sessionId,omitempty"`
	Action    TickAction  `json:"action"`
	Courts    []CourtTick `json:"courts,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// TickReport is the full outcome of one tick across both scopes.
type TickReport struct {
	Single ScopeTick `json:"single"`
	Multi  ScopeTick `json:"multi"`
	At     time.Time `json:"at"`
}

// Overall folds both scopes into one action descriptor. Errors dominate,
// then progress, then housekeeping.
func (r TickReport) Overall() TickAction {
	order := []TickAction{ActionError, ActionRotated, ActionStopped, ActionWaiting}
	for _, action := range order {
		if r.Single.Action == action || r.Multi.Action == action {
			return action
		}
	}
	return ActionNone
}

// scopeAction folds per-court outcomes into one scope action using the
// same dominance order.
func scopeAction(courts []CourtTick) TickAction {
	order := []TickAction{ActionError, ActionRotated, ActionStopped, ActionWaiting}
	for _, action := range order {
		for _, c := range courts {
			if c.Action == action {
				return action
			}
		}
	}
	return ActionNone
}

// Engine advances rotation state. Each tick inspects both session scopes,
// rotates every court whose window has elapsed, and tears down expired
// sessions. Ticks are idempotent: a tick that finds nothing due reports
// so and changes nothing, so overlapping schedulers are harmless.
//
// Thread safety: Tick is safe for concurrent use. A per-court lock
// serializes decide-and-reserve, and state is re-read after the lock is
// won so the loser of a race observes the winner's rotation.
type Engine struct {
	client   ReservationClient
	sessions *SessionStore
	history  HistoryRecorder
	notifier Notifier
	logger   Logger

	interval    time.Duration
	settleDelay time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration)

	locks sync.Map // courtID -> *sync.Mutex
}

// NewEngine creates a rotation engine.
//
// Parameters:
//   - client: reservation service client
//   - sessions: session persistence
//   - history: audit recorder (may be nil)
//   - notifier: event broadcaster (may be nil)
//   - logger: logger instance (may be nil)
//   - interval: rotation window length per court
//   - settleDelay: pause before each rotation reserve call
func NewEngine(client ReservationClient, sessions *SessionStore, history HistoryRecorder, notifier Notifier, logger Logger, interval, settleDelay time.Duration) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		client:      client,
		sessions:    sessions,
		history:     history,
		notifier:    notifier,
		logger:      logger,
		interval:    interval,
		settleDelay: settleDelay,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// SetClock overrides the engine's clock. Test use only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Tick evaluates both scopes concurrently. A failure in one scope never
// touches the other.
func (e *Engine) Tick(ctx context.Context) TickReport {
	report := TickReport{At: e.now()}

	var g errgroup.Group
	g.Go(func() error {
		report.Single = e.tickSingle(ctx)
		return nil
	})
	g.Go(func() error {
		report.Multi = e.tickMulti(ctx)
		return nil
	})
	_ = g.Wait()

	return report
}

func (e *Engine) tickSingle(ctx context.Context) ScopeTick {
	sess, err := e.sessions.LoadSession(ctx)
	if err != nil {
		return ScopeTick{Action: ActionNone, Message: "no active session"}
	}
	if !sess.IsActive {
		return ScopeTick{SessionID: sess.SessionID, Action: ActionNone, Message: "session inactive"}
	}

	now := e.now()
	if sess.Expired(now) {
		return e.expireSingle(ctx, sess)
	}

	if due := minutesUntil(now, sess.LastRotationTime.Add(e.interval)); due > 0 {
		return ScopeTick{
			SessionID: sess.SessionID,
			Action:    ActionWaiting,
			Courts: []CourtTick{{
				CourtID:               sess.CourtID,
				CourtNumber:           sess.CourtNumber,
				Action:                ActionWaiting,
				CurrentGroup:          sess.CurrentGroup,
				MinutesToNextRotation: due,
			}},
		}
	}

	court := e.rotateSingle(ctx, sess.SessionID)
	return ScopeTick{SessionID: sess.SessionID, Action: court.Action, Courts: []CourtTick{court}}
}

// rotateSingle performs the rotation for the single-scope court under its
// advisory lock. State is re-read once the lock is held; the session may
// have advanced or vanished while this tick waited.
func (e *Engine) rotateSingle(ctx context.Context, sessionID string) CourtTick {
	sess, err := e.sessions.LoadSession(ctx)
	if err != nil || sess.SessionID != sessionID || !sess.IsActive {
		return CourtTick{Action: ActionNone}
	}

	lock := e.lockFor(sess.CourtID)
	lock.Lock()
	defer lock.Unlock()

	sess, err = e.sessions.LoadSession(ctx)
	if err != nil || sess.SessionID != sessionID || !sess.IsActive {
		return CourtTick{Action: ActionNone}
	}

	now := e.now()
	if sess.Expired(now) {
		scope := e.expireSingle(ctx, sess)
		if len(scope.Courts) > 0 {
			return scope.Courts[0]
		}
		return CourtTick{CourtID: sess.CourtID, Action: scope.Action}
	}
	if due := minutesUntil(now, sess.LastRotationTime.Add(e.interval)); due > 0 {
		// A concurrent tick rotated first.
		return CourtTick{
			CourtID:               sess.CourtID,
			CourtNumber:           sess.CourtNumber,
			Action:                ActionWaiting,
			CurrentGroup:          sess.CurrentGroup,
			MinutesToNextRotation: due,
		}
	}

	next := NextGroup(sess.CurrentGroup)
	if err := e.reserveGroup(ctx, &sess.CourtState, next); err != nil {
		e.logger.Error("rotation failed, deactivating session",
			"sessionId", sess.SessionID, "courtId", sess.CourtID, "error", err)
		sess.IsActive = false
		if saveErr := e.sessions.SaveSession(ctx, sess); saveErr != nil {
			e.logger.Error("failed to persist deactivated session",
				"sessionId", sess.SessionID, "error", saveErr)
		}
		e.record(ctx, sess.SessionID, ScopeSingle, sess.CourtID, string(ActionError), next, err.Error())
		e.publish("failed", map[string]any{
			"sessionId": sess.SessionID,
			"courtId":   sess.CourtID,
			"error":     err.Error(),
		})
		return CourtTick{
			CourtID:      sess.CourtID,
			CourtNumber:  sess.CourtNumber,
			Action:       ActionError,
			CurrentGroup: sess.CurrentGroup,
			Error:        err.Error(),
		}
	}

	sess.CurrentGroup = next
	sess.LastRotationTime = e.now()
	if err := e.sessions.SaveSession(ctx, sess); err != nil {
		e.logger.Error("rotation reserved but state save failed",
			"sessionId", sess.SessionID, "error", err)
		return CourtTick{
			CourtID:      sess.CourtID,
			CourtNumber:  sess.CourtNumber,
			Action:       ActionError,
			CurrentGroup: next,
			Error:        err.Error(),
		}
	}

	e.logger.Info("rotated court",
		"sessionId", sess.SessionID, "courtId", sess.CourtID, "group", next)
	e.record(ctx, sess.SessionID, ScopeSingle, sess.CourtID, string(ActionRotated), next, "")
	e.publish("rotated", map[string]any{
		"sessionId": sess.SessionID,
		"courtId":   sess.CourtID,
		"group":     next,
	})

	return CourtTick{
		CourtID:               sess.CourtID,
		CourtNumber:           sess.CourtNumber,
		Action:                ActionRotated,
		CurrentGroup:          next,
		MinutesToNextRotation: int(e.interval.Minutes()),
	}
}

func (e *Engine) expireSingle(ctx context.Context, sess *Session) ScopeTick {
	if err := e.sessions.DeleteSession(ctx, sess.SessionID); err != nil {
		e.logger.Error("failed to clean up expired session",
			"sessionId", sess.SessionID, "error", err)
		return ScopeTick{
			SessionID: sess.SessionID,
			Action:    ActionError,
			Message:   "expired session cleanup failed",
			Courts: []CourtTick{{
				CourtID: sess.CourtID, CourtNumber: sess.CourtNumber,
				Action: ActionError, Error: err.Error(),
			}},
		}
	}
	e.logger.Info("session expired, cleaned up", "sessionId", sess.SessionID)
	e.record(ctx, sess.SessionID, ScopeSingle, sess.CourtID, string(ActionStopped), sess.CurrentGroup, "session expired")
	e.publish("stopped", map[string]any{"sessionId": sess.SessionID, "reason": "expired"})
	return ScopeTick{
		SessionID: sess.SessionID,
		Action:    ActionStopped,
		Message:   "session expired",
		Courts: []CourtTick{{
			CourtID: sess.CourtID, CourtNumber: sess.CourtNumber, Action: ActionStopped,
		}},
	}
}

func (e *Engine) tickMulti(ctx context.Context) ScopeTick {
	sess, err := e.sessions.LoadMultiSession(ctx)
	if err != nil {
		return ScopeTick{Action: ActionNone, Message: "no active session"}
	}
	if !sess.IsActive {
		return ScopeTick{SessionID: sess.SessionID, Action: ActionNone, Message: "session inactive"}
	}

	now := e.now()
	if sess.Expired(now) {
		if err := e.sessions.DeleteMultiSession(ctx, sess.SessionID); err != nil {
			e.logger.Error("failed to clean up expired multi session",
				"sessionId", sess.SessionID, "error", err)
			return ScopeTick{SessionID: sess.SessionID, Action: ActionError, Message: "expired session cleanup failed"}
		}
		e.logger.Info("multi session expired, cleaned up", "sessionId", sess.SessionID)
		e.record(ctx, sess.SessionID, ScopeMulti, "", string(ActionStopped), 0, "session expired")
		e.publish("stopped", map[string]any{"sessionId": sess.SessionID, "reason": "expired"})
		return ScopeTick{SessionID: sess.SessionID, Action: ActionStopped, Message: "session expired"}
	}

	// Courts rotate independently. One court failing is marked inactive
	// and skipped from then on; its siblings keep rotating.
	courts := make([]CourtTick, 0, len(sess.Courts))
	for i := range sess.Courts {
		court := &sess.Courts[i]
		if !court.IsActive {
			courts = append(courts, CourtTick{
				CourtID: court.CourtID, CourtNumber: court.CourtNumber, Action: ActionNone,
			})
			continue
		}
		if due := minutesUntil(now, court.LastRotationTime.Add(e.interval)); due > 0 {
			courts = append(courts, CourtTick{
				CourtID:               court.CourtID,
				CourtNumber:           court.CourtNumber,
				Action:                ActionWaiting,
				CurrentGroup:          court.CurrentGroup,
				MinutesToNextRotation: due,
			})
			continue
		}
		courts = append(courts, e.rotateMultiCourt(ctx, sess.SessionID, court.CourtID))
	}

	return ScopeTick{SessionID: sess.SessionID, Action: scopeAction(courts), Courts: courts}
}

// rotateMultiCourt rotates one court of the multi session under that
// court's advisory lock, re-reading the session after the lock is won.
func (e *Engine) rotateMultiCourt(ctx context.Context, sessionID, courtID string) CourtTick {
	lock := e.lockFor(courtID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.sessions.LoadMultiSession(ctx)
	if err != nil || sess.SessionID != sessionID || !sess.IsActive {
		return CourtTick{CourtID: courtID, Action: ActionNone}
	}
	court := findCourt(sess, courtID)
	if court == nil || !court.IsActive {
		return CourtTick{CourtID: courtID, Action: ActionNone}
	}

	now := e.now()
	if due := minutesUntil(now, court.LastRotationTime.Add(e.interval)); due > 0 {
		return CourtTick{
			CourtID:               court.CourtID,
			CourtNumber:           court.CourtNumber,
			Action:                ActionWaiting,
			CurrentGroup:          court.CurrentGroup,
			MinutesToNextRotation: due,
		}
	}

	next := NextGroup(court.CurrentGroup)
	if err := e.reserveGroup(ctx, court, next); err != nil {
		e.logger.Error("court rotation failed, deactivating court",
			"sessionId", sessionID, "courtId", court.CourtID, "error", err)
		court.IsActive = false
		if saveErr := e.sessions.SaveMultiSession(ctx, sess); saveErr != nil {
			e.logger.Error("failed to persist deactivated court",
				"sessionId", sessionID, "courtId", court.CourtID, "error", saveErr)
		}
		e.record(ctx, sessionID, ScopeMulti, court.CourtID, string(ActionError), next, err.Error())
		e.publish("failed", map[string]any{
			"sessionId": sessionID,
			"courtId":   court.CourtID,
			"error":     err.Error(),
		})
		return CourtTick{
			CourtID:      court.CourtID,
			CourtNumber:  court.CourtNumber,
			Action:       ActionError,
			CurrentGroup: court.CurrentGroup,
			Error:        err.Error(),
		}
	}

	court.CurrentGroup = next
	court.LastRotationTime = e.now()
	if err := e.sessions.SaveMultiSession(ctx, sess); err != nil {
		e.logger.Error("court rotation reserved but state save failed",
			"sessionId", sessionID, "courtId", court.CourtID, "error", err)
		return CourtTick{
			CourtID:      court.CourtID,
			CourtNumber:  court.CourtNumber,
			Action:       ActionError,
			CurrentGroup: next,
			Error:        err.Error(),
		}
	}

	e.logger.Info("rotated court",
		"sessionId", sessionID, "courtId", court.CourtID, "group", next)
	e.record(ctx, sessionID, ScopeMulti, court.CourtID, string(ActionRotated), next, "")
	e.publish("rotated", map[string]any{
		"sessionId": sessionID,
		"courtId":   court.CourtID,
		"group":     next,
	})

	return CourtTick{
		CourtID:               court.CourtID,
		CourtNumber:           court.CourtNumber,
		Action:                ActionRotated,
		CurrentGroup:          next,
		MinutesToNextRotation: int(e.interval.Minutes()),
	}
}

// reserveGroup waits for the reservation service to settle, then places
// the given group on the court. The service demotes the sitting group in
// the same call, so one reservation is a complete rotation.
func (e *Engine) reserveGroup(ctx context.Context, court *CourtState, group int) error {
	names := GroupNames(court.Users, group)
	if len(names) < GroupSize {
		return fmt.Errorf("rotation: pool too small for group %d", group)
	}
	e.sleep(ctx, e.settleDelay)
	return e.client.Reserve(ctx, court.CourtID, names)
}

func (e *Engine) lockFor(courtID string) *sync.Mutex {
	actual, _ := e.locks.LoadOrStore(courtID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func findCourt(sess *MultiSession, courtID string) *CourtState {
	for i := range sess.Courts {
		if sess.Courts[i].CourtID == courtID {
			return &sess.Courts[i]
		}
	}
	return nil
}

// record writes an audit entry if a recorder is configured. Best effort.
func (e *Engine) record(ctx context.Context, sessionID string, scope Scope, courtID, action string, group int, detail string) {
	if e.history == nil {
		return
	}
	rec := TickRecord{
		SessionID: sessionID,
		Scope:     scope,
		CourtID:   courtID,
		Action:    action,
		Group:     group,
		Detail:    detail,
		At:        e.now(),
	}
	if err := e.history.RecordTick(ctx, rec); err != nil {
		e.logger.Warn("failed to record tick history", "sessionId", sessionID, "error", err)
	}
}

func (e *Engine) publish(event string, payload map[string]any) {
	if e.notifier == nil {
		return
	}
	e.notifier.Publish(event, payload)
}
