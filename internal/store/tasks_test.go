// ABOUTME: Tests for background task persistence
// ABOUTME: Covers completion, notification flags and most-recent-first listing

package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(id, userID string, started time.Time) *BackgroundTask {
	return &BackgroundTask{
		ID:        id,
		UserID:    userID,
		SessionID: "sess-1",
		WorkerID:  "inbox-watch",
		TaskType:  "poll",
		Status:    TaskStatusRunning,
		StartedAt: started,
	}
}

func TestStore_BackgroundTaskLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.CreateBackgroundTask(ctx, newTask("task-1", "alice", started)))

	done := started.Add(2 * time.Second)
	require.NoError(t, store.CompleteBackgroundTask(ctx, "task-1", TaskCompletion{
		Status:           TaskStatusCompleted,
		CompletedAt:      done,
		ToolsUsed:        []string{"GMAIL_FETCH_EMAILS"},
		Result:           json.RawMessage(`{"new":3}`),
		NotificationText: "You have 3 new emails",
	}))
	require.NoError(t, store.MarkTaskNotified(ctx, "task-1"))

	got, err := store.GetBackgroundTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
	assert.Equal(t, []string{"GMAIL_FETCH_EMAILS"}, got.ToolsUsed)
	assert.JSONEq(t, `{"new":3}`, string(got.Result))
	assert.True(t, got.Notified)
	assert.Equal(t, "You have 3 new emails", got.NotificationText)
}

func TestStore_CompleteBackgroundTask_OnlyOnce(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateBackgroundTask(ctx, newTask("task-1", "alice", time.Now())))
	completion := TaskCompletion{Status: TaskStatusFailed, CompletedAt: time.Now(), Error: "boom"}
	require.NoError(t, store.CompleteBackgroundTask(ctx, "task-1", completion))

	assert.ErrorIs(t, store.CompleteBackgroundTask(ctx, "task-1", completion), ErrNotFound)
	assert.ErrorIs(t, store.MarkTaskNotified(ctx, "missing"), ErrNotFound)
}

func TestStore_ListBackgroundTasks_MostRecentFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.CreateBackgroundTask(ctx, newTask("oldest", "alice", base.Add(-2*time.Hour))))
	require.NoError(t, store.CreateBackgroundTask(ctx, newTask("newest", "alice", base)))
	require.NoError(t, store.CreateBackgroundTask(ctx, newTask("middle", "alice", base.Add(-time.Hour))))
	require.NoError(t, store.CreateBackgroundTask(ctx, newTask("other-user", "bob", base)))

	tasks, err := store.ListBackgroundTasks(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "newest", tasks[0].ID)
	assert.Equal(t, "middle", tasks[1].ID)
	assert.Equal(t, "oldest", tasks[2].ID)

	limited, err := store.ListBackgroundTasks(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "newest", limited[0].ID)
}
