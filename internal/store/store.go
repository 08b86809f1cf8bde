// ABOUTME: Store interfaces and data types for muse-gateway persistence
// ABOUTME: Defines Thread, MemoryRecord, ToolSession, BackgroundTask and usage records

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateThread is returned when trying to create a thread that already exists
var ErrDuplicateThread = errors.New("thread already exists")

// Thread represents a single conversation between a user and the assistant
type Thread struct {
	ID            string
	UserID        string
	AgentType     string
	CreatedAt     time.Time
	LastMessageAt time.Time
	MessageCount  int
}

// MemoryRecord is a compressed extract of facts and entities from a past thread.
// Records are written by the extraction collaborator and only ever soft-deleted.
type MemoryRecord struct {
	ID         string
	UserID     string
	ThreadID   string
	Timestamp  time.Time
	Priority   int
	Facts      []string
	Entities   []string
	MessageIDs []string
	Deleted    bool
}

// ToolSession is the per-user handle to the external tool-execution environment.
// There is at most one ToolSession per UserID.
type ToolSession struct {
	UserID       string
	SessionID    string
	SessionURL   string
	Toolkits     []string
	Workers      *WorkerSet
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// LastSeen returns LastActiveAt, or CreatedAt when the session was never refreshed.
func (s *ToolSession) LastSeen() time.Time {
	if s.LastActiveAt.IsZero() {
		return s.CreatedAt
	}
	return s.LastActiveAt
}

// TaskStatus is the lifecycle state of a BackgroundTask
type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// BackgroundTask records one asynchronous tool-driven job run by a background worker
type BackgroundTask struct {
	ID               string
	UserID           string
	SessionID        string
	WorkerID         string
	TaskType         string
	Status           TaskStatus
	StartedAt        time.Time
	CompletedAt      *time.Time
	ToolsUsed        []string
	Result           json.RawMessage
	Error            string
	Notified         bool
	NotificationText string
}

// TaskCompletion carries the fields written when a BackgroundTask finishes
type TaskCompletion struct {
	Status           TaskStatus
	CompletedAt      time.Time
	ToolsUsed        []string
	Result           json.RawMessage
	Error            string
	NotificationText string
}

// UsageRecord is one model invocation. Append-only.
type UsageRecord struct {
	ID               string
	UserID           string
	ThreadID         string // optional
	AgentName        string
	ModelID          string
	ProviderID       string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	EstimatedCost    float64
	CreatedAt        time.Time
}

// ToolExecution is one invocation of an external tool. Append-only.
type ToolExecution struct {
	ID          string
	UserID      string
	SessionID   string
	ThreadID    string
	ToolName    string
	Args        ToolArgs
	Success     bool
	Error       string
	DurationMS  int64
	OutputBytes int
	CreatedAt   time.Time
}

// UsageFilter narrows usage aggregation
type UsageFilter struct {
	UserID *string
	Since  *time.Time
	Until  *time.Time
}

// UsageStats is an aggregate over UsageRecords
type UsageStats struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	EstimatedCost    float64
	RequestCount     int64
}

// ThreadStore persists conversation threads
type ThreadStore interface {
	CreateThread(ctx context.Context, thread *Thread) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	// TouchThread increments the message count and sets the last-message time.
	TouchThread(ctx context.Context, id string, at time.Time) error
}

// MemoryStore persists memory records. Soft-deleted records are never returned by reads.
type MemoryStore interface {
	SaveMemory(ctx context.Context, rec *MemoryRecord) error
	GetMemory(ctx context.Context, id string) (*MemoryRecord, error)
	SoftDeleteMemory(ctx context.Context, id string) error
	ListRecentMemories(ctx context.Context, userID string, limit int) ([]*MemoryRecord, error)
	SearchMemories(ctx context.Context, userID string, terms []string, limit int) ([]*MemoryRecord, error)
}

// SessionStore persists tool sessions keyed by user
type SessionStore interface {
	GetToolSession(ctx context.Context, userID string) (*ToolSession, error)
	// UpsertToolSession inserts the session, or patches session id/url/toolkits/last-active
	// in place when a row for the user already exists. Workers and created-at are kept.
	UpsertToolSession(ctx context.Context, sess *ToolSession) error
	UpdateToolkits(ctx context.Context, userID string, toolkits []string, at time.Time) error
	SaveWorkers(ctx context.Context, userID string, workers *WorkerSet) error
	// DeleteToolSession removes the user's session and returns the prior session id.
	// Returns ErrNotFound when there was nothing to delete.
	DeleteToolSession(ctx context.Context, userID string) (string, error)
	ListToolSessions(ctx context.Context) ([]*ToolSession, error)
}

// TaskStore persists the background task log
type TaskStore interface {
	CreateBackgroundTask(ctx context.Context, task *BackgroundTask) error
	CompleteBackgroundTask(ctx context.Context, id string, c TaskCompletion) error
	MarkTaskNotified(ctx context.Context, id string) error
	GetBackgroundTask(ctx context.Context, id string) (*BackgroundTask, error)
	// ListBackgroundTasks returns the user's tasks most recent first.
	ListBackgroundTasks(ctx context.Context, userID string, limit int) ([]*BackgroundTask, error)
}

// UsageStore persists telemetry
type UsageStore interface {
	SaveUsage(ctx context.Context, rec *UsageRecord) error
	SaveToolExecution(ctx context.Context, exec *ToolExecution) error
	GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error)
	ListToolExecutions(ctx context.Context, userID string, limit int) ([]*ToolExecution, error)
}

// Store is the full persistence surface
type Store interface {
	ThreadStore
	MemoryStore
	SessionStore
	TaskStore
	UsageStore

	// Close releases any resources held by the store
	Close() error
}
