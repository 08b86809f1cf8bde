// ABOUTME: Tests for SQLite store schema and thread persistence
// ABOUTME: Uses a temporary database file per test

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestStore_CreateThread(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	thread := &Thread{
		ID:            "thread-001",
		UserID:        "alice",
		AgentType:     "assistant",
		CreatedAt:     now,
		LastMessageAt: now,
	}
	require.NoError(t, store.CreateThread(ctx, thread))

	got, err := store.GetThread(ctx, "thread-001")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "assistant", got.AgentType)
	assert.Equal(t, 0, got.MessageCount)
	assert.True(t, now.Equal(got.CreatedAt))
}

func TestStore_CreateThread_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	thread := &Thread{ID: "thread-dup", UserID: "alice", CreatedAt: time.Now(), LastMessageAt: time.Now()}
	require.NoError(t, store.CreateThread(ctx, thread))

	err := store.CreateThread(ctx, thread)
	assert.ErrorIs(t, err, ErrDuplicateThread)
}

func TestStore_GetThread_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetThread(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_TouchThread(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.CreateThread(ctx, &Thread{
		ID: "thread-touch", UserID: "alice", CreatedAt: start, LastMessageAt: start,
	}))

	later := start.Add(time.Minute)
	require.NoError(t, store.TouchThread(ctx, "thread-touch", later))
	require.NoError(t, store.TouchThread(ctx, "thread-touch", later.Add(time.Minute)))

	got, err := store.GetThread(ctx, "thread-touch")
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	assert.True(t, later.Add(time.Minute).Equal(got.LastMessageAt))

	assert.ErrorIs(t, store.TouchThread(ctx, "missing", later), ErrNotFound)
}

func TestStore_MigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
