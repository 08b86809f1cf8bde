// ABOUTME: SQLite implementation for model usage and tool execution telemetry
// ABOUTME: Both tables are append-only; aggregation backs the usage stats endpoint

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SaveUsage stores a model usage record.
func (s *SQLiteStore) SaveUsage(ctx context.Context, rec *UsageRecord) error {
	query := `
		INSERT INTO usage_records (
			id, user_id, thread_id, agent_name, model_id, provider_id,
			prompt_tokens, completion_tokens, total_tokens, estimated_cost, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		nullString(rec.ThreadID),
		rec.AgentName,
		rec.ModelID,
		rec.ProviderID,
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.TotalTokens,
		rec.EstimatedCost,
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}

	s.logger.Debug("saved usage record",
		"id", rec.ID,
		"user_id", rec.UserID,
		"agent", rec.AgentName,
		"total_tokens", rec.TotalTokens,
	)
	return nil
}

// SaveToolExecution stores one tool invocation. Arguments are encoded here and nowhere else.
func (s *SQLiteStore) SaveToolExecution(ctx context.Context, exec *ToolExecution) error {
	args := exec.Args
	if args == nil {
		args = ToolArgs{}
	}
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding tool args: %w", err)
	}

	query := `
		INSERT INTO tool_executions (
			id, user_id, session_id, thread_id, tool_name, args,
			success, error, duration_ms, output_bytes, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		exec.ID,
		exec.UserID,
		exec.SessionID,
		nullString(exec.ThreadID),
		exec.ToolName,
		string(encodedArgs),
		exec.Success,
		nullString(exec.Error),
		exec.DurationMS,
		exec.OutputBytes,
		formatTime(exec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting tool execution: %w", err)
	}
	return nil
}

// ListToolExecutions returns the user's tool executions, newest first
func (s *SQLiteStore) ListToolExecutions(ctx context.Context, userID string, limit int) ([]*ToolExecution, error) {
	query := `
		SELECT id, user_id, session_id, thread_id, tool_name, args,
		       success, error, duration_ms, output_bytes, created_at
		FROM tool_executions
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying tool executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var execs []*ToolExecution
	for rows.Next() {
		var exec ToolExecution
		var threadID, errMsg sql.NullString
		var args, createdAt string

		if err := rows.Scan(
			&exec.ID,
			&exec.UserID,
			&exec.SessionID,
			&threadID,
			&exec.ToolName,
			&args,
			&exec.Success,
			&errMsg,
			&exec.DurationMS,
			&exec.OutputBytes,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning tool execution: %w", err)
		}

		exec.ThreadID = threadID.String
		exec.Error = errMsg.String
		if err := json.Unmarshal([]byte(args), &exec.Args); err != nil {
			return nil, fmt.Errorf("decoding tool args: %w", err)
		}
		if exec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		execs = append(execs, &exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool execution rows: %w", err)
	}
	return execs, nil
}

// GetUsageStats returns aggregated usage statistics with optional filters.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	query := `
		SELECT
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(estimated_cost), 0),
			COUNT(*)
		FROM usage_records
		WHERE 1=1
	`
	args := []any{}

	if filter.UserID != nil {
		query += " AND user_id = ?"
		args = append(args, *filter.UserID)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, formatTime(*filter.Since))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, formatTime(*filter.Until))
	}

	var stats UsageStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.PromptTokens,
		&stats.CompletionTokens,
		&stats.TotalTokens,
		&stats.EstimatedCost,
		&stats.RequestCount,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}

	return &stats, nil
}
