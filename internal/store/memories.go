// ABOUTME: SQLite implementation for memory record storage
// ABOUTME: Records are soft-deleted only; reads always exclude deleted rows

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const memoryColumns = `id, user_id, thread_id, timestamp, priority, facts, entities, message_ids, deleted`

// SaveMemory inserts a memory record
func (s *SQLiteStore) SaveMemory(ctx context.Context, rec *MemoryRecord) error {
	facts, err := encodeStrings(rec.Facts)
	if err != nil {
		return fmt.Errorf("encoding facts: %w", err)
	}
	entities, err := encodeStrings(rec.Entities)
	if err != nil {
		return fmt.Errorf("encoding entities: %w", err)
	}
	messageIDs, err := encodeStrings(rec.MessageIDs)
	if err != nil {
		return fmt.Errorf("encoding message ids: %w", err)
	}

	query := `INSERT INTO memory_records (` + memoryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.ThreadID,
		formatTime(rec.Timestamp),
		rec.Priority,
		facts,
		entities,
		messageIDs,
		rec.Deleted,
	)
	if err != nil {
		return fmt.Errorf("inserting memory record: %w", err)
	}

	s.logger.Debug("saved memory record", "id", rec.ID, "user_id", rec.UserID, "facts", len(rec.Facts))
	return nil
}

// GetMemory retrieves a non-deleted memory record by ID.
// Returns ErrNotFound if it doesn't exist or was soft-deleted.
func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (*MemoryRecord, error) {
	query := `SELECT ` + memoryColumns + ` FROM memory_records WHERE id = ? AND deleted = 0`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying memory record: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// SoftDeleteMemory flags a record as deleted.
// Returns ErrNotFound if no live record has that ID.
func (s *SQLiteStore) SoftDeleteMemory(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE memory_records SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return fmt.Errorf("soft-deleting memory record: %w", err)
	}
	return requireRow(result)
}

// ListRecentMemories returns the user's newest live records, highest priority first within a timestamp
func (s *SQLiteStore) ListRecentMemories(ctx context.Context, userID string, limit int) ([]*MemoryRecord, error) {
	limit = clampLimit(limit)
	query := `
		SELECT ` + memoryColumns + `
		FROM memory_records
		WHERE user_id = ? AND deleted = 0
		ORDER BY timestamp DESC, priority DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent memories: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemories(rows)
}

// SearchMemories returns live records whose facts or entities contain any of the terms.
// Matching is case-insensitive for ASCII. An empty term list matches nothing.
func (s *SQLiteStore) SearchMemories(ctx context.Context, userID string, terms []string, limit int) ([]*MemoryRecord, error) {
	var clauses []string
	args := []any{userID}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		pattern := "%" + escapeLike(term) + "%"
		clauses = append(clauses, `facts LIKE ? ESCAPE '\' OR entities LIKE ? ESCAPE '\'`)
		args = append(args, pattern, pattern)
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + memoryColumns + `
		FROM memory_records
		WHERE user_id = ? AND deleted = 0 AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY priority DESC, timestamp DESC
		LIMIT ?
	`
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]*MemoryRecord, error) {
	var records []*MemoryRecord
	for rows.Next() {
		var rec MemoryRecord
		var ts, facts, entities, messageIDs string

		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.ThreadID,
			&ts,
			&rec.Priority,
			&facts,
			&entities,
			&messageIDs,
			&rec.Deleted,
		); err != nil {
			return nil, fmt.Errorf("scanning memory row: %w", err)
		}

		var err error
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		if rec.Facts, err = decodeStrings(facts); err != nil {
			return nil, fmt.Errorf("decoding facts: %w", err)
		}
		if rec.Entities, err = decodeStrings(entities); err != nil {
			return nil, fmt.Errorf("decoding entities: %w", err)
		}
		if rec.MessageIDs, err = decodeStrings(messageIDs); err != nil {
			return nil, fmt.Errorf("decoding message ids: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memory rows: %w", err)
	}
	return records, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
