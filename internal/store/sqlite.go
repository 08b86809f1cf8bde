// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides schema creation, migrations, thread persistence and shared scan helpers

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			agent_type      TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			last_message_at TEXT NOT NULL,
			message_count   INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_threads_user ON threads(user_id, last_message_at);

		CREATE TABLE IF NOT EXISTS memory_records (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			thread_id   TEXT NOT NULL,
			timestamp   TEXT NOT NULL,
			priority    INTEGER NOT NULL DEFAULT 0,
			facts       TEXT NOT NULL DEFAULT '[]',
			entities    TEXT NOT NULL DEFAULT '[]',
			message_ids TEXT NOT NULL DEFAULT '[]',
			deleted     INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_memory_user ON memory_records(user_id, deleted, timestamp);
		CREATE INDEX IF NOT EXISTS idx_memory_thread ON memory_records(thread_id);

		CREATE TABLE IF NOT EXISTS tool_sessions (
			user_id        TEXT PRIMARY KEY,
			session_id     TEXT NOT NULL,
			session_url    TEXT NOT NULL DEFAULT '',
			toolkits       TEXT NOT NULL DEFAULT '[]',
			workers        TEXT NOT NULL DEFAULT '[]',
			created_at     TEXT NOT NULL,
			last_active_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS background_tasks (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			session_id   TEXT NOT NULL,
			worker_id    TEXT NOT NULL,
			task_type    TEXT NOT NULL,
			status       TEXT NOT NULL,
			started_at   TEXT NOT NULL,
			completed_at TEXT,
			tools_used   TEXT NOT NULL DEFAULT '[]',
			result       TEXT,
			error        TEXT,
			notified     INTEGER NOT NULL DEFAULT 0,

			CHECK (status IN ('running', 'completed', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_user_started ON background_tasks(user_id, started_at DESC);

		CREATE TABLE IF NOT EXISTS usage_records (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL,
			thread_id         TEXT,
			agent_name        TEXT NOT NULL,
			model_id          TEXT NOT NULL DEFAULT '',
			provider_id       TEXT NOT NULL DEFAULT '',
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens      INTEGER NOT NULL DEFAULT 0,
			estimated_cost    REAL NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_user_created ON usage_records(user_id, created_at);

		CREATE TABLE IF NOT EXISTS tool_executions (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			session_id   TEXT NOT NULL DEFAULT '',
			thread_id    TEXT,
			tool_name    TEXT NOT NULL,
			args         TEXT NOT NULL DEFAULT '{}',
			success      INTEGER NOT NULL,
			error        TEXT,
			duration_ms  INTEGER NOT NULL DEFAULT 0,
			output_bytes INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tool_exec_user ON tool_executions(user_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "background_tasks",
			column: "notification_text",
			apply:  `ALTER TABLE background_tasks ADD COLUMN notification_text TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		check := fmt.Sprintf(`SELECT 1 FROM pragma_table_info('%s') WHERE name = ?`, m.table)
		err := s.db.QueryRow(check, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping checks that the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateThread creates a new thread in the database.
// Returns ErrDuplicateThread if a thread with the same ID already exists.
func (s *SQLiteStore) CreateThread(ctx context.Context, thread *Thread) error {
	query := `
		INSERT INTO threads (id, user_id, agent_type, created_at, last_message_at, message_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		thread.ID,
		thread.UserID,
		thread.AgentType,
		formatTime(thread.CreatedAt),
		formatTime(thread.LastMessageAt),
		thread.MessageCount,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateThread
		}
		return fmt.Errorf("inserting thread: %w", err)
	}

	s.logger.Debug("created thread", "id", thread.ID, "user_id", thread.UserID)
	return nil
}

// GetThread retrieves a thread by ID.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	query := `
		SELECT id, user_id, agent_type, created_at, last_message_at, message_count
		FROM threads
		WHERE id = ?
	`

	var thread Thread
	var createdAtStr, lastMessageAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&thread.ID,
		&thread.UserID,
		&thread.AgentType,
		&createdAtStr,
		&lastMessageAtStr,
		&thread.MessageCount,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}

	if thread.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if thread.LastMessageAt, err = parseTime(lastMessageAtStr); err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}

	return &thread, nil
}

// TouchThread bumps the message count and last-message time of a thread.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) TouchThread(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE threads
		SET message_count = message_count + 1, last_message_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating thread: %w", err)
	}
	return requireRow(result)
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// requireRow maps a zero-row update or delete to ErrNotFound
func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// nullString converts an empty string to nil for nullable columns
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// encodeStrings stores a string list as a JSON array column
func encodeStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
