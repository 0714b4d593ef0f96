package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/court-rotation/internal/rotation"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	msPerSecond       = 1000
	connectionTimeout = 5 * time.Second

	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// Config contains audit log database options. These map to the history
// section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int

	// WALMode enables write-ahead logging. When disabled the database
	// falls back to rollback journaling.
	WALMode bool
}

// Repository persists rotation audit entries in SQLite. It implements
// rotation.HistoryRecorder.
//
// Sessions live in the key-value store and evaporate with their TTL;
// the repository is the durable record of what the automation actually
// did, for after-the-fact inspection.
type Repository struct {
	db   *sql.DB
	path string
}

// Open creates the audit database, applying the schema if needed.
//
// SQLite works best with a single writer, so the connection pool is
// pinned to one connection.
func Open(cfg Config) (*Repository, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	journalMode := "DELETE"
	if cfg.WALMode {
		journalMode = "WAL"
	}
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=%s&_synchronous=NORMAL",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
		journalMode,
	)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("verifying history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // file may not exist until first write

	return &Repository{db: db, path: cfg.Path}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS rotation_history (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL,
    scope       TEXT NOT NULL,
    court_id    TEXT,
    action      TEXT NOT NULL,
    group_index INTEGER NOT NULL,
    detail      TEXT,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rotation_history_session
    ON rotation_history(session_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_rotation_history_recorded
    ON rotation_history(recorded_at);
`

// RecordTick inserts one audit entry.
func (r *Repository) RecordTick(ctx context.Context, rec rotation.TickRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("history: session id is required")
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rotation_history (id, session_id, scope, court_id, action, group_index, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.SessionID, string(rec.Scope), rec.CourtID, rec.Action, rec.Group, rec.Detail, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("history: inserting entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first. A non-positive limit
// uses the default; limits are capped.
func (r *Repository) Recent(ctx context.Context, limit int) ([]rotation.TickRecord, error) {
	return r.query(ctx, "", limit)
}

// BySession returns entries for one session, newest first.
func (r *Repository) BySession(ctx context.Context, sessionID string, limit int) ([]rotation.TickRecord, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("history: session id is required")
	}
	return r.query(ctx, sessionID, limit)
}

func (r *Repository) query(ctx context.Context, sessionID string, limit int) ([]rotation.TickRecord, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	q := `
		SELECT id, session_id, scope, court_id, action, group_index, detail, recorded_at
		FROM rotation_history`
	args := []any{}
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY recorded_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: querying entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var records []rotation.TickRecord
	for rows.Next() {
		var rec rotation.TickRecord
		var scope string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &scope, &rec.CourtID, &rec.Action, &rec.Group, &rec.Detail, &rec.At); err != nil {
			return nil, fmt.Errorf("history: scanning entry: %w", err)
		}
		rec.Scope = rotation.Scope(scope)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: reading entries: %w", err)
	}
	return records, nil
}

// HealthCheck verifies the database is reachable.
func (r *Repository) HealthCheck(ctx context.Context) error {
	var result int
	if err := r.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("history: health check failed: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (r *Repository) Path() string { return r.path }

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("history: closing database: %w", err)
	}
	return nil
}
