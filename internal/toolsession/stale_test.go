// ABOUTME: Tests for the stale connection report

package toolsession

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/muse-gateway/internal/store"
)

type fakeConnections struct {
	conns []Connection
}

func (f *fakeConnections) ListInitiatedConnections(context.Context, string) ([]Connection, error) {
	return f.conns, nil
}

func TestListStaleConnections(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &fakeConnections{conns: []Connection{
		{ID: "c1", App: "gmail", CreatedAt: now.Add(-45 * time.Minute)},
		{ID: "c2", App: "gmail", CreatedAt: now.Add(-15 * time.Minute)},
		{ID: "c3", App: "pinterest", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "c4", App: "gmail", CreatedAt: now.Add(-2 * time.Minute)},
	}}
	m := New(store.NewMockStore(), nil, provider, Options{}, nil)
	m.now = func() time.Time { return now }

	report, err := m.ListStaleConnections(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalStale)
	assert.Equal(t, 10, report.OlderThanMinutes)
	assert.Equal(t, map[string]int{"gmail": 2, "pinterest": 1}, report.ByApp)
	assert.Equal(t, []string{
		"gmail: 2 stale connection(s), oldest 45m0s",
		"pinterest: 1 stale connection(s), oldest 2h0m0s",
	}, report.Summary)

	strict, err := m.ListStaleConnections(context.Background(), "alice", 60)
	require.NoError(t, err)
	assert.Equal(t, 1, strict.TotalStale)

	data, err := json.Marshal(strict)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_stale":1,"older_than_minutes":60,"by_app":{"pinterest":1},"summary":["pinterest: 1 stale connection(s), oldest 2h0m0s"]}`, string(data))
}

func TestListStaleConnections_NoProvider(t *testing.T) {
	m := New(store.NewMockStore(), nil, nil, Options{}, nil)

	_, err := m.ListStaleConnections(context.Background(), "alice", 10)
	assert.ErrorIs(t, err, ErrNoConnectionProvider)
}
