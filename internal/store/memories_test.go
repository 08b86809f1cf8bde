// ABOUTME: Tests for memory record persistence
// ABOUTME: Covers search matching, recency ordering and soft deletion

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveMemory(t *testing.T, s *SQLiteStore, userID string, age time.Duration, priority int, facts, entities []string) *MemoryRecord {
	t.Helper()
	rec := &MemoryRecord{
		ID:         uuid.New().String(),
		UserID:     userID,
		ThreadID:   "thread-1",
		Timestamp:  time.Now().UTC().Add(-age).Truncate(time.Second),
		Priority:   priority,
		Facts:      facts,
		Entities:   entities,
		MessageIDs: []string{"m1", "m2"},
	}
	require.NoError(t, s.SaveMemory(context.Background(), rec))
	return rec
}

func TestStore_SaveAndGetMemory(t *testing.T) {
	store := setupTestStore(t)
	rec := saveMemory(t, store, "alice", 0, 2, []string{"Alice is vegetarian"}, []string{"diet"})

	got, err := store.GetMemory(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice is vegetarian"}, got.Facts)
	assert.Equal(t, []string{"diet"}, got.Entities)
	assert.Equal(t, []string{"m1", "m2"}, got.MessageIDs)
	assert.Equal(t, 2, got.Priority)
	assert.False(t, got.Deleted)
}

func TestStore_SearchMemories(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	diet := saveMemory(t, store, "alice", time.Hour, 1, []string{"Alice avoids dairy"}, []string{"Diet"})
	saveMemory(t, store, "alice", time.Hour, 1, []string{"Alice likes hiking"}, []string{"outdoors"})
	saveMemory(t, store, "bob", time.Hour, 1, []string{"Bob avoids dairy"}, []string{"diet"})

	got, err := store.SearchMemories(ctx, "alice", []string{"DIET"}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, diet.ID, got[0].ID)

	none, err := store.SearchMemories(ctx, "alice", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_SearchMemories_EscapesWildcards(t *testing.T) {
	store := setupTestStore(t)
	saveMemory(t, store, "alice", 0, 0, []string{"plain fact"}, nil)

	got, err := store.SearchMemories(context.Background(), "alice", []string{"%"}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_ListRecentMemories_NewestFirst(t *testing.T) {
	store := setupTestStore(t)

	old := saveMemory(t, store, "alice", 48*time.Hour, 5, []string{"old"}, nil)
	recent := saveMemory(t, store, "alice", time.Minute, 0, []string{"recent"}, nil)

	got, err := store.ListRecentMemories(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, recent.ID, got[0].ID)
	assert.Equal(t, old.ID, got[1].ID)
}

func TestStore_SoftDeleteMemory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rec := saveMemory(t, store, "alice", 0, 0, []string{"secret"}, nil)

	require.NoError(t, store.SoftDeleteMemory(ctx, rec.ID))

	_, err := store.GetMemory(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := store.SearchMemories(ctx, "alice", []string{"secret"}, 10)
	require.NoError(t, err)
	assert.Empty(t, found)

	// a second delete has nothing live to flag
	assert.ErrorIs(t, store.SoftDeleteMemory(ctx, rec.ID), ErrNotFound)
}
