// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	threads    map[string]*Thread       // keyed by thread ID
	memories   map[string]*MemoryRecord // keyed by record ID
	sessions   map[string]*ToolSession  // keyed by user ID
	tasks      map[string]*BackgroundTask
	taskOrder  []string
	usage      []*UsageRecord
	executions []*ToolExecution
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		threads:  make(map[string]*Thread),
		memories: make(map[string]*MemoryRecord),
		sessions: make(map[string]*ToolSession),
		tasks:    make(map[string]*BackgroundTask),
	}
}

// CreateThread stores a new thread.
func (m *MockStore) CreateThread(ctx context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.threads[thread.ID]; exists {
		return ErrDuplicateThread
	}
	t := *thread
	m.threads[t.ID] = &t
	return nil
}

// GetThread retrieves a thread by ID.
func (m *MockStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *t
	return &result, nil
}

// TouchThread bumps message count and last-message time.
func (m *MockStore) TouchThread(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[id]
	if !ok {
		return ErrNotFound
	}
	t.MessageCount++
	t.LastMessageAt = at
	return nil
}

// SaveMemory stores a memory record.
func (m *MockStore) SaveMemory(ctx context.Context, rec *MemoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := cloneMemory(rec)
	m.memories[r.ID] = r
	return nil
}

// GetMemory returns a live memory record.
func (m *MockStore) GetMemory(ctx context.Context, id string) (*MemoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.memories[id]
	if !ok || r.Deleted {
		return nil, ErrNotFound
	}
	return cloneMemory(r), nil
}

// SoftDeleteMemory flags a record as deleted.
func (m *MockStore) SoftDeleteMemory(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.memories[id]
	if !ok || r.Deleted {
		return ErrNotFound
	}
	r.Deleted = true
	return nil
}

// ListRecentMemories returns the user's newest live records.
func (m *MockStore) ListRecentMemories(ctx context.Context, userID string, limit int) ([]*MemoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*MemoryRecord
	for _, r := range m.memories {
		if r.UserID == userID && !r.Deleted {
			out = append(out, cloneMemory(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Priority > out[j].Priority
	})
	return truncate(out, clampLimit(limit)), nil
}

// SearchMemories returns live records whose facts or entities contain any term.
func (m *MockStore) SearchMemories(ctx context.Context, userID string, terms []string, limit int) ([]*MemoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*MemoryRecord
	for _, r := range m.memories {
		if r.UserID != userID || r.Deleted {
			continue
		}
		if memoryMatches(r, terms) {
			out = append(out, cloneMemory(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return truncate(out, clampLimit(limit)), nil
}

// GetToolSession returns the user's session.
func (m *MockStore) GetToolSession(ctx context.Context, userID string) (*ToolSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

// UpsertToolSession inserts or patches the user's session.
func (m *MockStore) UpsertToolSession(ctx context.Context, sess *ToolSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[sess.UserID]; ok {
		existing.SessionID = sess.SessionID
		existing.SessionURL = sess.SessionURL
		existing.Toolkits = append([]string(nil), sess.Toolkits...)
		existing.LastActiveAt = sess.LastActiveAt
		return nil
	}
	s := cloneSession(sess)
	if s.Workers == nil {
		s.Workers = NewWorkerSet()
	}
	m.sessions[s.UserID] = s
	return nil
}

// UpdateToolkits replaces the session toolkits.
func (m *MockStore) UpdateToolkits(ctx context.Context, userID string, toolkits []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return ErrNotFound
	}
	s.Toolkits = append([]string(nil), toolkits...)
	s.LastActiveAt = at
	return nil
}

// SaveWorkers replaces the session workers.
func (m *MockStore) SaveWorkers(ctx context.Context, userID string, workers *WorkerSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return ErrNotFound
	}
	s.Workers = workers.Clone()
	return nil
}

// DeleteToolSession removes the user's session.
func (m *MockStore) DeleteToolSession(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return "", ErrNotFound
	}
	delete(m.sessions, userID)
	return s.SessionID, nil
}

// ListToolSessions returns all sessions ordered by user.
func (m *MockStore) ListToolSessions(ctx context.Context) ([]*ToolSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ToolSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// CreateBackgroundTask stores a task.
func (m *MockStore) CreateBackgroundTask(ctx context.Context, task *BackgroundTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := *task
	t.ToolsUsed = append([]string(nil), task.ToolsUsed...)
	m.tasks[t.ID] = &t
	m.taskOrder = append(m.taskOrder, t.ID)
	return nil
}

// CompleteBackgroundTask records a running task's outcome.
func (m *MockStore) CompleteBackgroundTask(ctx context.Context, id string, c TaskCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.Status != TaskStatusRunning {
		return ErrNotFound
	}
	completedAt := c.CompletedAt
	t.Status = c.Status
	t.CompletedAt = &completedAt
	t.ToolsUsed = append([]string(nil), c.ToolsUsed...)
	t.Result = c.Result
	t.Error = c.Error
	t.NotificationText = c.NotificationText
	return nil
}

// MarkTaskNotified flags a task as notified.
func (m *MockStore) MarkTaskNotified(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Notified = true
	return nil
}

// GetBackgroundTask returns a task by ID.
func (m *MockStore) GetBackgroundTask(ctx context.Context, id string) (*BackgroundTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *t
	return &result, nil
}

// ListBackgroundTasks returns the user's tasks, newest first.
func (m *MockStore) ListBackgroundTasks(ctx context.Context, userID string, limit int) ([]*BackgroundTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*BackgroundTask
	for i := len(m.taskOrder) - 1; i >= 0; i-- {
		t := m.tasks[m.taskOrder[i]]
		if t.UserID == userID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return truncate(out, clampLimit(limit)), nil
}

// SaveUsage appends a usage record.
func (m *MockStore) SaveUsage(ctx context.Context, rec *UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rec
	m.usage = append(m.usage, &r)
	return nil
}

// SaveToolExecution appends a tool execution.
func (m *MockStore) SaveToolExecution(ctx context.Context, exec *ToolExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := *exec
	m.executions = append(m.executions, &e)
	return nil
}

// ListToolExecutions returns the user's tool executions, newest first.
func (m *MockStore) ListToolExecutions(ctx context.Context, userID string, limit int) ([]*ToolExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ToolExecution
	for i := len(m.executions) - 1; i >= 0; i-- {
		if m.executions[i].UserID == userID {
			e := *m.executions[i]
			out = append(out, &e)
		}
	}
	return truncate(out, clampLimit(limit)), nil
}

// GetUsageStats aggregates usage records.
func (m *MockStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats UsageStats
	for _, r := range m.usage {
		if filter.UserID != nil && r.UserID != *filter.UserID {
			continue
		}
		if filter.Since != nil && r.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !r.CreatedAt.Before(*filter.Until) {
			continue
		}
		stats.PromptTokens += r.PromptTokens
		stats.CompletionTokens += r.CompletionTokens
		stats.TotalTokens += r.TotalTokens
		stats.EstimatedCost += r.EstimatedCost
		stats.RequestCount++
	}
	return &stats, nil
}

// UsageRecords returns a copy of every recorded usage row, oldest first.
func (m *MockStore) UsageRecords() []*UsageRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*UsageRecord, 0, len(m.usage))
	for _, r := range m.usage {
		c := *r
		out = append(out, &c)
	}
	return out
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

func memoryMatches(r *MemoryRecord, terms []string) bool {
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		for _, f := range r.Facts {
			if strings.Contains(strings.ToLower(f), term) {
				return true
			}
		}
		for _, e := range r.Entities {
			if strings.Contains(strings.ToLower(e), term) {
				return true
			}
		}
	}
	return false
}

func cloneMemory(r *MemoryRecord) *MemoryRecord {
	c := *r
	c.Facts = append([]string(nil), r.Facts...)
	c.Entities = append([]string(nil), r.Entities...)
	c.MessageIDs = append([]string(nil), r.MessageIDs...)
	return &c
}

func cloneSession(s *ToolSession) *ToolSession {
	c := *s
	c.Toolkits = append([]string(nil), s.Toolkits...)
	if s.Workers != nil {
		c.Workers = s.Workers.Clone()
	}
	return &c
}

func truncate[T any](list []T, limit int) []T {
	if len(list) > limit {
		return list[:limit]
	}
	return list
}

// Ensure MockStore implements Store interface.
var _ Store = (*MockStore)(nil)
