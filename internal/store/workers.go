// ABOUTME: WorkerSet holds a tool session's background worker configs keyed by worker id
// ABOUTME: Preserves insertion order for listing and serializes as a JSON array at the storage boundary

package store

import (
	"encoding/json"
	"fmt"
)

// WorkerConfig configures one background worker attached to a tool session
type WorkerConfig struct {
	ID      string          `json:"id"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// WorkerSet is an ordered map of WorkerConfig by id.
// The zero value is not usable; use NewWorkerSet.
type WorkerSet struct {
	order []string
	byID  map[string]WorkerConfig
}

// NewWorkerSet builds a set from the given configs. Later duplicates replace earlier ones
// but keep the first position.
func NewWorkerSet(configs ...WorkerConfig) *WorkerSet {
	ws := &WorkerSet{byID: make(map[string]WorkerConfig, len(configs))}
	for _, c := range configs {
		ws.Put(c)
	}
	return ws
}

// Len returns the number of workers
func (ws *WorkerSet) Len() int {
	if ws == nil {
		return 0
	}
	return len(ws.order)
}

// Get returns the worker with the given id
func (ws *WorkerSet) Get(id string) (WorkerConfig, bool) {
	if ws == nil {
		return WorkerConfig{}, false
	}
	c, ok := ws.byID[id]
	return c, ok
}

// Put inserts or replaces a worker
func (ws *WorkerSet) Put(c WorkerConfig) {
	if _, exists := ws.byID[c.ID]; !exists {
		ws.order = append(ws.order, c.ID)
	}
	ws.byID[c.ID] = cloneWorker(c)
}

// Update replaces the enabled flag and config of an existing worker.
// Returns false, leaving the set untouched, when id is unknown.
func (ws *WorkerSet) Update(id string, enabled bool, config json.RawMessage) bool {
	if ws == nil {
		return false
	}
	if _, ok := ws.byID[id]; !ok {
		return false
	}
	ws.byID[id] = cloneWorker(WorkerConfig{ID: id, Enabled: enabled, Config: config})
	return true
}

// List returns copies of all workers in insertion order
func (ws *WorkerSet) List() []WorkerConfig {
	if ws == nil {
		return nil
	}
	out := make([]WorkerConfig, 0, len(ws.order))
	for _, id := range ws.order {
		out = append(out, cloneWorker(ws.byID[id]))
	}
	return out
}

// Enabled returns the enabled workers in insertion order
func (ws *WorkerSet) Enabled() []WorkerConfig {
	var out []WorkerConfig
	for _, c := range ws.List() {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy
func (ws *WorkerSet) Clone() *WorkerSet {
	return NewWorkerSet(ws.List()...)
}

// MarshalJSON encodes the set as an array in insertion order
func (ws *WorkerSet) MarshalJSON() ([]byte, error) {
	list := ws.List()
	if list == nil {
		list = []WorkerConfig{}
	}
	return json.Marshal(list)
}

// UnmarshalJSON decodes an array of workers, rejecting duplicate ids
func (ws *WorkerSet) UnmarshalJSON(data []byte) error {
	var list []WorkerConfig
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decoding workers: %w", err)
	}
	next := NewWorkerSet()
	for _, c := range list {
		if _, dup := next.byID[c.ID]; dup {
			return fmt.Errorf("duplicate worker id %q", c.ID)
		}
		next.Put(c)
	}
	*ws = *next
	return nil
}

func cloneWorker(c WorkerConfig) WorkerConfig {
	if c.Config != nil {
		c.Config = append(json.RawMessage(nil), c.Config...)
	}
	return c
}
