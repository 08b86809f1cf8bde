// ABOUTME: Append-only recorder for model usage and tool executions
// ABOUTME: Write failures are logged and swallowed so telemetry never fails a request

package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/muse-gateway/internal/store"
)

// UsageWriter is the slice of the store the recorder appends to.
type UsageWriter interface {
	SaveUsage(ctx context.Context, rec *store.UsageRecord) error
	SaveToolExecution(ctx context.Context, exec *store.ToolExecution) error
}

// Usage describes one model invocation.
type Usage struct {
	UserID           string
	ThreadID         string
	Agent            string // the step or orchestrator that made the call
	ModelID          string
	ProviderID       string
	PromptTokens     int64
	CompletionTokens int64
	EstimatedCost    float64
}

// ToolCall describes one external tool invocation.
type ToolCall struct {
	UserID      string
	SessionID   string
	ThreadID    string
	ToolName    string
	Args        store.ToolArgs
	Err         error
	Duration    time.Duration
	OutputBytes int
}

// Recorder appends telemetry rows.
type Recorder struct {
	store  UsageWriter
	now    func() time.Time
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w UsageWriter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  w,
		now:    time.Now,
		logger: logger.With("component", "telemetry"),
	}
}

// RecordUsage appends a UsageRecord. Calls with no tokens are skipped.
func (r *Recorder) RecordUsage(ctx context.Context, u Usage) {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return
	}
	rec := &store.UsageRecord{
		ID:               uuid.New().String(),
		UserID:           u.UserID,
		ThreadID:         u.ThreadID,
		AgentName:        u.Agent,
		ModelID:          u.ModelID,
		ProviderID:       u.ProviderID,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.PromptTokens + u.CompletionTokens,
		EstimatedCost:    u.EstimatedCost,
		CreatedAt:        r.now(),
	}
	if err := r.store.SaveUsage(ctx, rec); err != nil {
		r.logger.Warn("failed to record usage",
			"user_id", u.UserID,
			"agent", u.Agent,
			"error", err,
		)
	}
}

// RecordToolExecution appends a ToolExecution.
func (r *Recorder) RecordToolExecution(ctx context.Context, c ToolCall) {
	exec := &store.ToolExecution{
		ID:          uuid.New().String(),
		UserID:      c.UserID,
		SessionID:   c.SessionID,
		ThreadID:    c.ThreadID,
		ToolName:    c.ToolName,
		Args:        c.Args,
		Success:     c.Err == nil,
		DurationMS:  c.Duration.Milliseconds(),
		OutputBytes: c.OutputBytes,
		CreatedAt:   r.now(),
	}
	if c.Err != nil {
		exec.Error = c.Err.Error()
	}
	if err := r.store.SaveToolExecution(ctx, exec); err != nil {
		r.logger.Warn("failed to record tool execution",
			"user_id", c.UserID,
			"tool", c.ToolName,
			"error", err,
		)
	}
}
