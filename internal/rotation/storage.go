package rotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/court-rotation/internal/infrastructure/store"
)

// Storage keys. A small pointer record holds the current session ID per
// scope; the session body lives under a derived key. The body is always
// written before the pointer so a reader never follows a dangling pointer.
const (
	keySinglePointer = "automation:session"
	keyMultiPointer  = "automation:multi:session"

	keySingleStatePrefix = "automation:state:"
	keyMultiStatePrefix  = "automation:multi:state:"
)

// storeOpTimeout bounds every individual key-value operation so a stalled
// backend cannot wedge a tick.
const storeOpTimeout = 10 * time.Second

type sessionPointer struct {
	SessionID string    `json:"sessionId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionStore persists sessions in a key-value backend with a TTL so
// abandoned state self-destructs. Reads fail open: a backend outage looks
// like "no session" and the next tick carries on. Writes fail closed.
type SessionStore struct {
	kv     store.KV
	ttl    time.Duration
	logger Logger
	now    func() time.Time
}

// NewSessionStore wires a SessionStore over kv. Records expire after ttl.
func NewSessionStore(kv store.KV, ttl time.Duration, logger Logger) *SessionStore {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SessionStore{kv: kv, ttl: ttl, logger: logger, now: time.Now}
}

// SetClock overrides the store's clock. Test use only.
func (s *SessionStore) SetClock(now func() time.Time) { s.now = now }

// SaveSession persists a single-court session. Body first, pointer second.
func (s *SessionStore) SaveSession(ctx context.Context, sess *Session) error {
	return s.save(ctx, keySingleStatePrefix+sess.SessionID, keySinglePointer, sess.SessionID, sess)
}

// SaveMultiSession persists a multi-court session. Body first, pointer second.
func (s *SessionStore) SaveMultiSession(ctx context.Context, sess *MultiSession) error {
	return s.save(ctx, keyMultiStatePrefix+sess.SessionID, keyMultiPointer, sess.SessionID, sess)
}

func (s *SessionStore) save(ctx context.Context, bodyKey, pointerKey, sessionID string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode session: %v", ErrStorage, err)
	}
	ptr, err := json.Marshal(sessionPointer{SessionID: sessionID, UpdatedAt: s.now()})
	if err != nil {
		return fmt.Errorf("%w: encode pointer: %v", ErrStorage, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	if err := s.kv.Set(opCtx, bodyKey, raw, s.ttl); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, bodyKey, err)
	}
	if err := s.kv.Set(opCtx, pointerKey, ptr, s.ttl); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, pointerKey, err)
	}
	return nil
}

// LoadSession returns the current single-court session, or ErrNoSession
// if none exists or the backend is unreachable.
func (s *SessionStore) LoadSession(ctx context.Context) (*Session, error) {
	var sess Session
	if err := s.load(ctx, keySinglePointer, keySingleStatePrefix, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// LoadMultiSession returns the current multi-court session, or
// ErrNoSession if none exists or the backend is unreachable.
func (s *SessionStore) LoadMultiSession(ctx context.Context) (*MultiSession, error) {
	var sess MultiSession
	if err := s.load(ctx, keyMultiPointer, keyMultiStatePrefix, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SessionStore) load(ctx context.Context, pointerKey, statePrefix string, out any) error {
	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	raw, err := s.kv.Get(opCtx, pointerKey)
	if err != nil {
		return s.absent(pointerKey, err)
	}
	var ptr sessionPointer
	if err := json.Unmarshal(raw, &ptr); err != nil || ptr.SessionID == "" {
		s.logger.Warn("discarding malformed session pointer", "key", pointerKey)
		return ErrNoSession
	}

	body, err := s.kv.Get(opCtx, statePrefix+ptr.SessionID)
	if err != nil {
		return s.absent(statePrefix+ptr.SessionID, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		s.logger.Warn("discarding malformed session body", "sessionId", ptr.SessionID, "error", err)
		return ErrNoSession
	}
	return nil
}

// absent folds both genuine absence and backend failure into ErrNoSession.
// Only the latter is worth a log line.
func (s *SessionStore) absent(key string, err error) error {
	if !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("session read failed, treating as absent", "key", key, "error", err)
	}
	return ErrNoSession
}

// DeleteSession removes the single-court session body and pointer.
// Deleting an absent session is not an error.
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.delete(ctx, keySinglePointer, keySingleStatePrefix+sessionID)
}

// DeleteMultiSession removes the multi-court session body and pointer.
func (s *SessionStore) DeleteMultiSession(ctx context.Context, sessionID string) error {
	return s.delete(ctx, keyMultiPointer, keyMultiStatePrefix+sessionID)
}

func (s *SessionStore) delete(ctx context.Context, pointerKey, bodyKey string) error {
	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	if err := s.kv.Delete(opCtx, bodyKey, pointerKey); err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrStorage, err)
	}
	return nil
}
