// ABOUTME: SQLite implementation for per-user tool session storage
// ABOUTME: user_id is the primary key so a user can never hold two sessions

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const sessionColumns = `user_id, session_id, session_url, toolkits, workers, created_at, last_active_at`

// GetToolSession retrieves the user's session.
// Returns ErrNotFound if the user has none.
func (s *SQLiteStore) GetToolSession(ctx context.Context, userID string) (*ToolSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM tool_sessions WHERE user_id = ?`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// UpsertToolSession inserts a session or patches the existing row for the same user.
// On conflict only session_id, session_url, toolkits and last_active_at change.
func (s *SQLiteStore) UpsertToolSession(ctx context.Context, sess *ToolSession) error {
	toolkits, err := encodeStrings(sess.Toolkits)
	if err != nil {
		return fmt.Errorf("encoding toolkits: %w", err)
	}
	ws := sess.Workers
	if ws == nil {
		ws = NewWorkerSet()
	}
	workers, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("encoding workers: %w", err)
	}

	query := `
		INSERT INTO tool_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_id = excluded.session_id,
			session_url = excluded.session_url,
			toolkits = excluded.toolkits,
			last_active_at = excluded.last_active_at
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.UserID,
		sess.SessionID,
		sess.SessionURL,
		toolkits,
		string(workers),
		formatTime(sess.CreatedAt),
		formatTime(sess.LastActiveAt),
	)
	if err != nil {
		return fmt.Errorf("upserting tool session: %w", err)
	}

	s.logger.Debug("upserted tool session", "user_id", sess.UserID, "session_id", sess.SessionID)
	return nil
}

// UpdateToolkits replaces the connected toolkits of the user's session.
// Returns ErrNotFound if the user has no session.
func (s *SQLiteStore) UpdateToolkits(ctx context.Context, userID string, toolkits []string, at time.Time) error {
	encoded, err := encodeStrings(toolkits)
	if err != nil {
		return fmt.Errorf("encoding toolkits: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE tool_sessions SET toolkits = ?, last_active_at = ? WHERE user_id = ?`,
		encoded, formatTime(at), userID)
	if err != nil {
		return fmt.Errorf("updating toolkits: %w", err)
	}
	return requireRow(result)
}

// SaveWorkers replaces the worker list of the user's session without touching last_active_at.
// Returns ErrNotFound if the user has no session.
func (s *SQLiteStore) SaveWorkers(ctx context.Context, userID string, workers *WorkerSet) error {
	encoded, err := json.Marshal(workers)
	if err != nil {
		return fmt.Errorf("encoding workers: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE tool_sessions SET workers = ? WHERE user_id = ?`, string(encoded), userID)
	if err != nil {
		return fmt.Errorf("updating workers: %w", err)
	}
	return requireRow(result)
}

// DeleteToolSession removes the user's session and returns its session id.
// Returns ErrNotFound if the user has no session.
func (s *SQLiteStore) DeleteToolSession(ctx context.Context, userID string) (string, error) {
	var prior string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM tool_sessions WHERE user_id = ? RETURNING session_id`, userID).Scan(&prior)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("deleting tool session: %w", err)
	}
	return prior, nil
}

// ListToolSessions returns all sessions ordered by user
func (s *SQLiteStore) ListToolSessions(ctx context.Context) ([]*ToolSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM tool_sessions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("querying tool sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*ToolSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool session rows: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*ToolSession, error) {
	var sess ToolSession
	var toolkits, workers, createdAt, lastActiveAt string

	err := row.Scan(
		&sess.UserID,
		&sess.SessionID,
		&sess.SessionURL,
		&toolkits,
		&workers,
		&createdAt,
		&lastActiveAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tool session: %w", err)
	}

	if sess.Toolkits, err = decodeStrings(toolkits); err != nil {
		return nil, fmt.Errorf("decoding toolkits: %w", err)
	}
	sess.Workers = NewWorkerSet()
	if err := json.Unmarshal([]byte(workers), sess.Workers); err != nil {
		return nil, err
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.LastActiveAt, err = parseTime(lastActiveAt); err != nil {
		return nil, fmt.Errorf("parsing last_active_at: %w", err)
	}
	return &sess, nil
}
