// ABOUTME: SQLite implementation for the background task log
// ABOUTME: Tasks are created when a worker run starts and completed exactly once afterwards

package store

import (
	"context"
	"database/sql"
	"fmt"
)

const taskColumns = `id, user_id, session_id, worker_id, task_type, status, started_at, completed_at,
	tools_used, result, error, notified, notification_text`

// CreateBackgroundTask inserts a new task, normally in the running state
func (s *SQLiteStore) CreateBackgroundTask(ctx context.Context, task *BackgroundTask) error {
	tools, err := encodeStrings(task.ToolsUsed)
	if err != nil {
		return fmt.Errorf("encoding tools: %w", err)
	}

	var completedAt any
	if task.CompletedAt != nil {
		completedAt = formatTime(*task.CompletedAt)
	}

	query := `INSERT INTO background_tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.UserID,
		task.SessionID,
		task.WorkerID,
		task.TaskType,
		string(task.Status),
		formatTime(task.StartedAt),
		completedAt,
		tools,
		nullString(string(task.Result)),
		nullString(task.Error),
		task.Notified,
		nullString(task.NotificationText),
	)
	if err != nil {
		return fmt.Errorf("inserting background task: %w", err)
	}

	s.logger.Debug("created background task", "id", task.ID, "user_id", task.UserID, "worker_id", task.WorkerID)
	return nil
}

// CompleteBackgroundTask records the outcome of a running task.
// Returns ErrNotFound if no running task has that ID.
func (s *SQLiteStore) CompleteBackgroundTask(ctx context.Context, id string, c TaskCompletion) error {
	tools, err := encodeStrings(c.ToolsUsed)
	if err != nil {
		return fmt.Errorf("encoding tools: %w", err)
	}

	query := `
		UPDATE background_tasks
		SET status = ?, completed_at = ?, tools_used = ?, result = ?, error = ?, notification_text = ?
		WHERE id = ? AND status = 'running'
	`
	result, err := s.db.ExecContext(ctx, query,
		string(c.Status),
		formatTime(c.CompletedAt),
		tools,
		nullString(string(c.Result)),
		nullString(c.Error),
		nullString(c.NotificationText),
		id,
	)
	if err != nil {
		return fmt.Errorf("completing background task: %w", err)
	}
	return requireRow(result)
}

// MarkTaskNotified flags that the user has been told about the task.
// Returns ErrNotFound if the task doesn't exist.
func (s *SQLiteStore) MarkTaskNotified(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE background_tasks SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking task notified: %w", err)
	}
	return requireRow(result)
}

// GetBackgroundTask retrieves a task by ID.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetBackgroundTask(ctx context.Context, id string) (*BackgroundTask, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM background_tasks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying background task: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return tasks[0], nil
}

// ListBackgroundTasks returns the user's tasks, most recently started first
func (s *SQLiteStore) ListBackgroundTasks(ctx context.Context, userID string, limit int) ([]*BackgroundTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM background_tasks
		WHERE user_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying background tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]*BackgroundTask, error) {
	var tasks []*BackgroundTask
	for rows.Next() {
		var task BackgroundTask
		var status, startedAt, tools string
		var completedAt, result, errMsg, notification sql.NullString

		if err := rows.Scan(
			&task.ID,
			&task.UserID,
			&task.SessionID,
			&task.WorkerID,
			&task.TaskType,
			&status,
			&startedAt,
			&completedAt,
			&tools,
			&result,
			&errMsg,
			&task.Notified,
			&notification,
		); err != nil {
			return nil, fmt.Errorf("scanning background task: %w", err)
		}

		task.Status = TaskStatus(status)
		var err error
		if task.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if completedAt.Valid {
			t, err := parseTime(completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing completed_at: %w", err)
			}
			task.CompletedAt = &t
		}
		if task.ToolsUsed, err = decodeStrings(tools); err != nil {
			return nil, fmt.Errorf("decoding tools: %w", err)
		}
		if result.Valid {
			task.Result = []byte(result.String)
		}
		task.Error = errMsg.String
		task.NotificationText = notification.String

		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating background task rows: %w", err)
	}
	return tasks, nil
}
