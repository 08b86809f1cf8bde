// ABOUTME: Tests for WorkerSet ordering, updates and JSON encoding

package store

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerSet_PreservesInsertionOrder(t *testing.T) {
	ws := NewWorkerSet(
		WorkerConfig{ID: "z"},
		WorkerConfig{ID: "a"},
		WorkerConfig{ID: "m"},
	)
	ws.Put(WorkerConfig{ID: "a", Enabled: true})

	var ids []string
	for _, w := range ws.List() {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"z", "a", "m"}, ids)

	got, ok := ws.Get("a")
	require.True(t, ok)
	assert.True(t, got.Enabled)
}

func TestWorkerSet_UpdateUnknownLeavesSetUntouched(t *testing.T) {
	ws := NewWorkerSet(WorkerConfig{ID: "digest", Enabled: true, Config: json.RawMessage(`{"hour":8}`)})
	before := ws.List()

	assert.False(t, ws.Update("missing", false, nil))
	if diff := cmp.Diff(before, ws.List()); diff != "" {
		t.Errorf("worker list changed (-before +after):\n%s", diff)
	}

	assert.True(t, ws.Update("digest", false, json.RawMessage(`{"hour":9}`)))
	got, _ := ws.Get("digest")
	assert.False(t, got.Enabled)
	assert.JSONEq(t, `{"hour":9}`, string(got.Config))
}

func TestWorkerSet_ListReturnsCopies(t *testing.T) {
	ws := NewWorkerSet(WorkerConfig{ID: "w", Config: json.RawMessage(`{"a":1}`)})

	list := ws.List()
	list[0].Config[2] = 'b'

	got, _ := ws.Get("w")
	assert.JSONEq(t, `{"a":1}`, string(got.Config))
}

func TestWorkerSet_JSON(t *testing.T) {
	ws := NewWorkerSet(
		WorkerConfig{ID: "one", Enabled: true},
		WorkerConfig{ID: "two"},
	)
	data, err := json.Marshal(ws)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"one","enabled":true},{"id":"two","enabled":false}]`, string(data))

	decoded := NewWorkerSet()
	require.NoError(t, json.Unmarshal(data, decoded))
	assert.Equal(t, ws.List(), decoded.List())

	empty, err := json.Marshal(NewWorkerSet())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))

	err = json.Unmarshal([]byte(`[{"id":"x"},{"id":"x"}]`), NewWorkerSet())
	assert.Error(t, err)
}

func TestWorkerSet_Enabled(t *testing.T) {
	ws := NewWorkerSet(
		WorkerConfig{ID: "on", Enabled: true},
		WorkerConfig{ID: "off"},
	)
	enabled := ws.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "on", enabled[0].ID)

	var nilSet *WorkerSet
	assert.Zero(t, nilSet.Len())
	assert.Empty(t, nilSet.Enabled())
}
