// ABOUTME: Tests for the tool session manager lifecycle
// ABOUTME: Covers refresh idempotence, worker edits, deletion and Acquire

package toolsession

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/muse-gateway/internal/store"
)

type fakeOpener struct {
	calls    int
	toolkits [][]string
	err      error
}

func (f *fakeOpener) OpenSession(_ context.Context, userID string, toolkits []string) (*OpenedSession, error) {
	f.calls++
	f.toolkits = append(f.toolkits, toolkits)
	if f.err != nil {
		return nil, f.err
	}
	return &OpenedSession{
		SessionID:  "opened-" + userID,
		SessionURL: "https://tools.example/" + userID,
	}, nil
}

func newTestManager(t *testing.T, sessions store.SessionStore, opener SessionOpener) (*Manager, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := New(sessions, opener, nil, Options{}, nil)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestCreateOrRefresh_IdempotentPerUser(t *testing.T) {
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m, now := newTestManager(t, db, nil)
	ctx := context.Background()

	first, err := m.CreateOrRefresh(ctx, SessionSpec{
		UserID: "alice", SessionID: "sess-1", SessionURL: "https://a/1", Toolkits: []string{"Gmail"},
	})
	require.NoError(t, err)
	assert.True(t, first.Created)

	*now = now.Add(time.Hour)
	second, err := m.CreateOrRefresh(ctx, SessionSpec{
		UserID: "alice", SessionID: "sess-2", SessionURL: "https://a/2", Toolkits: []string{"pinterest", "gmail"},
	})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "refresh keeps the original identity")

	sessions, err := db.ListToolSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-2", sessions[0].SessionID)
	assert.Equal(t, "https://a/2", sessions[0].SessionURL)
	assert.Equal(t, []string{"gmail", "pinterest"}, sessions[0].Toolkits)
	assert.True(t, now.Equal(sessions[0].LastActiveAt))
}

func TestCreateOrRefresh_Validation(t *testing.T) {
	m, _ := newTestManager(t, store.NewMockStore(), nil)

	_, err := m.CreateOrRefresh(context.Background(), SessionSpec{SessionID: "s"})
	assert.Error(t, err)
	_, err = m.CreateOrRefresh(context.Background(), SessionSpec{UserID: "alice"})
	assert.Error(t, err)
}

func TestGetByUser_NotFound(t *testing.T) {
	m, _ := newTestManager(t, store.NewMockStore(), nil)

	_, err := m.GetByUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateToolkits(t *testing.T) {
	ms := store.NewMockStore()
	m, _ := newTestManager(t, ms, nil)
	ctx := context.Background()

	assert.ErrorIs(t, m.UpdateToolkits(ctx, "alice", []string{"slack"}), ErrSessionNotFound)

	_, err := m.CreateOrRefresh(ctx, SessionSpec{UserID: "alice", SessionID: "s"})
	require.NoError(t, err)
	require.NoError(t, m.UpdateToolkits(ctx, "alice", []string{"Slack", "slack", " gmail "}))

	sess, err := m.GetByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"gmail", "slack"}, sess.Toolkits)
}

func TestUpdateWorkerConfig(t *testing.T) {
	ms := store.NewMockStore()
	m, now := newTestManager(t, ms, nil)
	ctx := context.Background()

	_, err := m.CreateOrRefresh(ctx, SessionSpec{UserID: "alice", SessionID: "s"})
	require.NoError(t, err)
	require.NoError(t, m.RegisterWorker(ctx, "alice", store.WorkerConfig{ID: "inbox-watch", Enabled: true, Config: json.RawMessage(`{"every":"5m"}`)}))
	require.NoError(t, m.RegisterWorker(ctx, "alice", store.WorkerConfig{ID: "digest"}))

	before, err := m.GetByUser(ctx, "alice")
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	require.NoError(t, m.UpdateWorkerConfig(ctx, "alice", "digest", true, json.RawMessage(`{"hour":8}`)))

	after, err := m.GetByUser(ctx, "alice")
	require.NoError(t, err)
	digest, ok := after.Workers.Get("digest")
	require.True(t, ok)
	assert.True(t, digest.Enabled)
	assert.JSONEq(t, `{"hour":8}`, string(digest.Config))

	watch, _ := after.Workers.Get("inbox-watch")
	assert.JSONEq(t, `{"every":"5m"}`, string(watch.Config))
	assert.True(t, before.LastActiveAt.Equal(after.LastActiveAt), "worker edits do not bump last active")
}

func TestUpdateWorkerConfig_UnknownWorkerLeavesStateUnchanged(t *testing.T) {
	ms := store.NewMockStore()
	m, _ := newTestManager(t, ms, nil)
	ctx := context.Background()

	_, err := m.CreateOrRefresh(ctx, SessionSpec{UserID: "alice", SessionID: "s"})
	require.NoError(t, err)
	require.NoError(t, m.RegisterWorker(ctx, "alice", store.WorkerConfig{ID: "inbox-watch", Enabled: true}))

	before, err := m.GetByUser(ctx, "alice")
	require.NoError(t, err)
	beforeJSON, err := json.Marshal(before.Workers)
	require.NoError(t, err)

	err = m.UpdateWorkerConfig(ctx, "alice", "missing", false, nil)
	assert.ErrorIs(t, err, ErrWorkerNotFound)

	after, err := m.GetByUser(ctx, "alice")
	require.NoError(t, err)
	afterJSON, err := json.Marshal(after.Workers)
	require.NoError(t, err)
	assert.Equal(t, beforeJSON, afterJSON)
}

func TestUpdateWorkerConfig_NoSession(t *testing.T) {
	m, _ := newTestManager(t, store.NewMockStore(), nil)

	err := m.UpdateWorkerConfig(context.Background(), "nobody", "w", true, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteByUser(t *testing.T) {
	m, _ := newTestManager(t, store.NewMockStore(), nil)
	ctx := context.Background()

	res, err := m.DeleteByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, res.Deleted)
	assert.Empty(t, res.PriorSessionID)

	_, err = m.CreateOrRefresh(ctx, SessionSpec{UserID: "alice", SessionID: "sess-7"})
	require.NoError(t, err)

	res, err = m.DeleteByUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Equal(t, "sess-7", res.PriorSessionID)

	_, err = m.GetByUser(ctx, "alice")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestIsExpired(t *testing.T) {
	m, now := newTestManager(t, store.NewMockStore(), nil)

	fresh := &store.ToolSession{CreatedAt: now.Add(-8 * 24 * time.Hour), LastActiveAt: now.Add(-time.Hour)}
	assert.False(t, m.IsExpired(fresh))

	idle := &store.ToolSession{CreatedAt: now.Add(-8 * 24 * time.Hour)}
	assert.True(t, m.IsExpired(idle), "falls back to created-at")

	boundary := &store.ToolSession{LastActiveAt: now.Add(-DefaultExpiry)}
	assert.False(t, m.IsExpired(boundary))
}

func TestAcquire_OpensWhenMissing(t *testing.T) {
	opener := &fakeOpener{}
	m, _ := newTestManager(t, store.NewMockStore(), opener)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "alice", []string{"gmail"})
	require.NoError(t, err)
	assert.Equal(t, "opened-alice", h.SessionID)
	assert.True(t, h.Created)
	assert.Equal(t, 1, opener.calls)

	again, err := m.Acquire(ctx, "alice", []string{"GMAIL"})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, 1, opener.calls, "covered toolkits reuse the session")
}

func TestAcquire_ReopensForNewToolkitsOrExpiry(t *testing.T) {
	opener := &fakeOpener{}
	m, now := newTestManager(t, store.NewMockStore(), opener)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "alice", []string{"gmail"})
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "alice", []string{"pinterest"})
	require.NoError(t, err)
	require.Equal(t, 2, opener.calls)
	assert.Equal(t, []string{"gmail", "pinterest"}, opener.toolkits[1])

	*now = now.Add(DefaultExpiry + time.Minute)
	_, err = m.Acquire(ctx, "alice", []string{"gmail"})
	require.NoError(t, err)
	assert.Equal(t, 3, opener.calls)
}

func TestAcquire_Errors(t *testing.T) {
	m, _ := newTestManager(t, store.NewMockStore(), nil)
	_, err := m.Acquire(context.Background(), "alice", nil)
	assert.ErrorIs(t, err, ErrNoSessionOpener)

	failing := &fakeOpener{err: errors.New("upstream 500")}
	m, _ = newTestManager(t, store.NewMockStore(), failing)
	_, err = m.Acquire(context.Background(), "alice", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 500")
}
