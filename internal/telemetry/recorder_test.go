// ABOUTME: Tests for the telemetry recorder

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/muse-gateway/internal/store"
)

type failingWriter struct{ calls int }

func (f *failingWriter) SaveUsage(context.Context, *store.UsageRecord) error {
	f.calls++
	return errors.New("database is locked")
}

func (f *failingWriter) SaveToolExecution(context.Context, *store.ToolExecution) error {
	f.calls++
	return errors.New("database is locked")
}

func TestRecordUsage(t *testing.T) {
	ms := store.NewMockStore()
	r := NewRecorder(ms, nil)
	ctx := context.Background()

	r.RecordUsage(ctx, Usage{UserID: "alice", ThreadID: "t1", Agent: "plan", ModelID: "m", PromptTokens: 120, CompletionTokens: 30, EstimatedCost: 0.002})
	r.RecordUsage(ctx, Usage{UserID: "alice", Agent: "summarize"})

	records := ms.UsageRecords()
	require.Len(t, records, 1, "zero-token calls are skipped")
	assert.Equal(t, "plan", records[0].AgentName)
	assert.Equal(t, int64(150), records[0].TotalTokens)
	assert.NotEmpty(t, records[0].ID)
}

func TestRecordToolExecution(t *testing.T) {
	ms := store.NewMockStore()
	r := NewRecorder(ms, nil)
	ctx := context.Background()

	r.RecordToolExecution(ctx, ToolCall{
		UserID:    "alice",
		SessionID: "sess-1",
		ToolName:  "GMAIL_SEARCH",
		Args:      store.ToolArgs{"query": store.StringArg("invoice")},
		Err:       errors.New("rate limited"),
		Duration:  1500 * time.Millisecond,
	})

	execs, err := ms.ListToolExecutions(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.False(t, execs[0].Success)
	assert.Equal(t, "rate limited", execs[0].Error)
	assert.Equal(t, int64(1500), execs[0].DurationMS)
	assert.Equal(t, store.StringArg("invoice"), execs[0].Args["query"])
}

func TestRecorder_SwallowsWriteErrors(t *testing.T) {
	w := &failingWriter{}
	r := NewRecorder(w, nil)

	assert.NotPanics(t, func() {
		r.RecordUsage(context.Background(), Usage{UserID: "alice", PromptTokens: 1})
		r.RecordToolExecution(context.Background(), ToolCall{UserID: "alice", ToolName: "x"})
	})
	assert.Equal(t, 2, w.calls)
}
