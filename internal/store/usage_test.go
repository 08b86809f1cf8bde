// ABOUTME: Tests for usage and tool execution telemetry
// ABOUTME: Covers SaveUsage, GetUsageStats filters and tool argument round trips

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveUsage_Stats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	records := []*UsageRecord{
		{UserID: "alice", AgentName: "plan", ModelID: "m-small", ProviderID: "p", PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120, EstimatedCost: 0.01, CreatedAt: now},
		{UserID: "alice", AgentName: "respond", ThreadID: "thread-1", PromptTokens: 300, CompletionTokens: 80, TotalTokens: 380, EstimatedCost: 0.04, CreatedAt: now},
		{UserID: "bob", AgentName: "plan", PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10, CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, r := range records {
		r.ID = uuid.New().String()
		require.NoError(t, store.SaveUsage(ctx, r))
	}

	all, err := store.GetUsageStats(ctx, UsageFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.RequestCount)
	assert.Equal(t, int64(510), all.TotalTokens)

	alice := "alice"
	aliceStats, err := store.GetUsageStats(ctx, UsageFilter{UserID: &alice})
	require.NoError(t, err)
	assert.Equal(t, int64(2), aliceStats.RequestCount)
	assert.Equal(t, int64(400), aliceStats.PromptTokens)
	assert.Equal(t, int64(100), aliceStats.CompletionTokens)
	assert.InDelta(t, 0.05, aliceStats.EstimatedCost, 1e-9)

	since := now.Add(-time.Hour)
	recent, err := store.GetUsageStats(ctx, UsageFilter{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(2), recent.RequestCount)
}

func TestStore_GetUsageStats_Empty(t *testing.T) {
	store := setupTestStore(t)

	stats, err := store.GetUsageStats(context.Background(), UsageFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.RequestCount)
	assert.Zero(t, stats.EstimatedCost)
}

func TestStore_ToolExecution_ArgsRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	exec := &ToolExecution{
		ID:        uuid.New().String(),
		UserID:    "alice",
		SessionID: "sess-1",
		ToolName:  "GMAIL_SEARCH",
		Args: ToolArgs{
			"query":  StringArg("invoice"),
			"limit":  NumberArg(5),
			"unread": BoolArg(true),
			"labels": ListArg(StringArg("inbox"), StringArg("billing")),
			"range":  ObjectArg(map[string]ArgValue{"days": NumberArg(30)}),
		},
		Success:     true,
		DurationMS:  42,
		OutputBytes: 1024,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveToolExecution(ctx, exec))

	execs, err := store.ListToolExecutions(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)

	got := execs[0]
	assert.Equal(t, "GMAIL_SEARCH", got.ToolName)
	assert.True(t, got.Success)
	assert.Equal(t, exec.Args, got.Args)
	assert.Equal(t, []string{"labels", "limit", "query", "range", "unread"}, got.Args.Keys())
}
