package rotation

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/court-rotation/internal/courtapi"
)

// Pool geometry. A court runs on a pool of exactly twelve users split
// into three ordered groups of four; one group sits on the court while
// the other two wait in the queue.
const (
	PoolSize   = 12
	GroupSize  = 4
	GroupCount = 3
)

// UserValidity is how long a provisioned user may be reused after
// creation. The reservation service is rate-limited, so pools are
// recycled across sessions until they expire.
const UserValidity = 6 * time.Hour

// CourtState is one court's rotation state. It is used inline for a
// single-court session and as an element of a multi-court session.
type CourtState struct {
	CourtID          string          `json:"courtId"`
	CourtNumber      int             `json:"courtNumber"`
	Users            []courtapi.User `json:"users"`
	CurrentGroup     int             `json:"currentReservationGroup"`
	LastRotationTime time.Time       `json:"lastRotationTime"`

	// IsActive is cleared when rotation fails for this court; an
	// inactive court is skipped by subsequent ticks.
	IsActive bool `json:"isActive"`
}

// Session is a single-court automation run, bounded by a duration.
// The court's rotation state is inlined.
type Session struct {
	SessionID string `json:"sessionId"`
	CourtState
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// MultiSession is an automation run over several courts, each with its
// own user pool and its own rotation window.
type MultiSession struct {
	SessionID string       `json:"sessionId"`
	Courts    []CourtState `json:"courts"`
	StartTime time.Time    `json:"startTime"`
	EndTime   time.Time    `json:"endTime"`
	IsActive  bool         `json:"isActive"`
}

// Scope distinguishes the two concurrent session kinds. At most one
// session per scope may be active at a time.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeMulti  Scope = "multi"
)

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return "session_" + uuid.NewString()
}

// NextGroup returns the group that rotates onto the court after current.
func NextGroup(current int) int {
	return (current + 1) % GroupCount
}

// Groups partitions a pool into its three ordered groups of four.
// The partition is always derived from pool order, never stored.
func Groups(users []courtapi.User) [][]courtapi.User {
	groups := make([][]courtapi.User, 0, GroupCount)
	for i := 0; i+GroupSize <= len(users); i += GroupSize {
		groups = append(groups, users[i:i+GroupSize])
	}
	return groups
}

// GroupNames returns the animal display names of one group, in pool order.
func GroupNames(users []courtapi.User, group int) []string {
	start := group * GroupSize
	if start+GroupSize > len(users) {
		return nil
	}
	names := make([]string, 0, GroupSize)
	for _, u := range users[start : start+GroupSize] {
		names = append(names, u.AnimalName)
	}
	return names
}

// Expired reports whether the session's end time has passed.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.EndTime)
}

// Expired reports whether the session's end time has passed.
func (s *MultiSession) Expired(now time.Time) bool {
	return !now.Before(s.EndTime)
}

// minutesUntil returns the whole minutes from now until t, rounded up,
// never negative.
func minutesUntil(now, t time.Time) int {
	remaining := t.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}

// ReservationClient is the slice of the external reservation service
// this package needs. *courtapi.Client satisfies it.
type ReservationClient interface {
	// Register creates a user from a phone-number-like identifier.
	Register(ctx context.Context, phoneNumber string) (*courtapi.RegisterResult, error)

	// Approve admin-approves a registered user by animal name.
	Approve(ctx context.Context, animalName string) error

	// Reserve places a group on a court's queue. The service demotes the
	// sitting group to the waitlist in the same call.
	Reserve(ctx context.Context, courtID string, animalNames []string) error

	// GetCourt fetches metadata for one court.
	GetCourt(ctx context.Context, courtID string) (*courtapi.Court, error)
}

// Notifier broadcasts automation events to interested parties (MQTT,
// tests). May be nil throughout the package.
type Notifier interface {
	Publish(event string, payload map[string]any)
}

// TickRecord is one audit entry describing what a tick (or a session
// lifecycle action) did to one court.
type TickRecord struct {
	ID        string
	SessionID string
	Scope     Scope
	CourtID   string
	Action    string
	Group     int
	Detail    string
	At        time.Time
}

// HistoryRecorder persists tick audit entries. Recording is best-effort;
// failures are logged and never block rotation. May be nil.
type HistoryRecorder interface {
	RecordTick(ctx context.Context, rec TickRecord) error
}

// Logger is the minimal logging interface the package needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
