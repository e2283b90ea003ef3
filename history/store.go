// Package history records a fire journal: one row per task execution
// (or cancellation), written as events arrive. The journal is an audit
// surface only; the scheduler never reads it back and no task state is
// recovered from it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome values stored on fire rows.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// FireRecord is one journal row.
type FireRecord struct {
	RunID      string // empty for cancellations (the task never fired)
	Handle     uint64
	Name       string
	Outcome    string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store is the journal interface.
type Store interface {
	RecordFire(ctx context.Context, rec FireRecord) error
	FiresForTask(ctx context.Context, handle uint64) ([]FireRecord, error)
	RecentFires(ctx context.Context, limit int) ([]FireRecord, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a journal at the given path. Creates parent
// directories if needed. Enables WAL mode and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return openStore(ctx, connStr)
}

// NewMemoryStore creates an in-memory journal for testing. Uses a shared
// cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return openStore(ctx, "file::memory:?mode=memory&cache=shared")
}

func openStore(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS fires (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		handle INTEGER NOT NULL,
		name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fires_handle ON fires(handle, finished_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordFire appends one row to the journal.
func (s *SQLiteStore) RecordFire(ctx context.Context, rec FireRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fires (run_id, handle, name, outcome, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Handle, rec.Name, rec.Outcome, rec.Error, rec.StartedAt.UTC(), rec.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert fire: %w", err)
	}
	return nil
}

// FiresForTask returns every recorded fire for a handle, oldest first.
func (s *SQLiteStore) FiresForTask(ctx context.Context, handle uint64) ([]FireRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, handle, name, outcome, error, started_at, finished_at
		FROM fires WHERE handle = ? ORDER BY id ASC
	`, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to query fires: %w", err)
	}
	defer rows.Close()
	return scanFires(rows)
}

// RecentFires returns the most recent fires across all tasks, newest
// first, capped at limit.
func (s *SQLiteStore) RecentFires(ctx context.Context, limit int) ([]FireRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, handle, name, outcome, error, started_at, finished_at
		FROM fires ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent fires: %w", err)
	}
	defer rows.Close()
	return scanFires(rows)
}

func scanFires(rows *sql.Rows) ([]FireRecord, error) {
	var out []FireRecord
	for rows.Next() {
		var rec FireRecord
		if err := rows.Scan(&rec.RunID, &rec.Handle, &rec.Name, &rec.Outcome, &rec.Error, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fire row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
