// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on the upsert, soft-delete and ordering semantics other packages rely on

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_CreateThread_Duplicate(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	thread := &Thread{ID: "thread-123", UserID: "alice", CreatedAt: time.Now(), LastMessageAt: time.Now()}
	require.NoError(t, store.CreateThread(ctx, thread))

	err := store.CreateThread(ctx, thread)
	assert.ErrorIs(t, err, ErrDuplicateThread)
}

func TestMockStore_UpsertToolSession_KeepsWorkersAndCreatedAt(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	created := time.Now().Add(-time.Hour)
	require.NoError(t, store.UpsertToolSession(ctx, &ToolSession{
		UserID:    "alice",
		SessionID: "sess-1",
		Workers:   NewWorkerSet(WorkerConfig{ID: "w"}),
		CreatedAt: created,
	}))
	require.NoError(t, store.UpsertToolSession(ctx, &ToolSession{
		UserID:       "alice",
		SessionID:    "sess-2",
		CreatedAt:    time.Now(),
		LastActiveAt: time.Now(),
	}))

	sessions, err := store.ListToolSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-2", sessions[0].SessionID)
	assert.True(t, created.Equal(sessions[0].CreatedAt))
	assert.Equal(t, 1, sessions[0].Workers.Len())
}

func TestMockStore_GetToolSession_ReturnsCopy(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertToolSession(ctx, &ToolSession{
		UserID: "alice", SessionID: "sess-1", Workers: NewWorkerSet(WorkerConfig{ID: "w"}),
	}))

	got, err := store.GetToolSession(ctx, "alice")
	require.NoError(t, err)
	got.Workers.Put(WorkerConfig{ID: "extra"})

	again, err := store.GetToolSession(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Workers.Len())
}

func TestMockStore_SoftDeletedMemoriesAreHidden(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.SaveMemory(ctx, &MemoryRecord{ID: "m1", UserID: "alice", Facts: []string{"likes tea"}}))
	require.NoError(t, store.SoftDeleteMemory(ctx, "m1"))

	found, err := store.SearchMemories(ctx, "alice", []string{"tea"}, 10)
	require.NoError(t, err)
	assert.Empty(t, found)

	recent, err := store.ListRecentMemories(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMockStore_ListBackgroundTasks_MostRecentFirst(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, store.CreateBackgroundTask(ctx, &BackgroundTask{ID: "a", UserID: "alice", Status: TaskStatusRunning, StartedAt: base.Add(-time.Hour)}))
	require.NoError(t, store.CreateBackgroundTask(ctx, &BackgroundTask{ID: "b", UserID: "alice", Status: TaskStatusRunning, StartedAt: base}))

	tasks, err := store.ListBackgroundTasks(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "b", tasks[0].ID)
}
