package channel

import (
	"encoding/json"
	"sync"

	"github.com/groupmix/go-controller/internal/schedule"
)

// #region types

// ProgressSink receives incremental snapshots for one request. It is
// invoked synchronously by the dispatch loop, zero or more times,
// strictly before the request's terminal outcome is delivered.
type ProgressSink func(schedule.Progress)

type outcome struct {
	data json.RawMessage
	err  error
}

type entry struct {
	done chan outcome // buffered 1; written exactly once
	sink ProgressSink
}

// #endregion

// #region table

// table maps a correlation id to its pending caller. It is owned by
// exactly one Channel instance and never shared across channels, so
// independent sessions cannot cross-contaminate.
type table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newTable() *table {
	return &table{entries: make(map[string]*entry)}
}

func (t *table) register(id string, e *entry) {
	t.mu.Lock()
	t.entries[id] = e
	t.mu.Unlock()
}

// lookup returns the entry without removing it (progress dispatch).
func (t *table) lookup(id string) (*entry, bool) {
	t.mu.Lock()
	e, ok := t.entries[id]
	t.mu.Unlock()
	return e, ok
}

// take removes and returns the entry (terminal dispatch).
func (t *table) take(id string) (*entry, bool) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	return e, ok
}

// drain empties the table and returns everything that was pending.
func (t *table) drain() []*entry {
	t.mu.Lock()
	pending := make([]*entry, 0, len(t.entries))
	for id, e := range t.entries {
		pending = append(pending, e)
		delete(t.entries, id)
	}
	t.mu.Unlock()
	return pending
}

func (t *table) size() int {
	t.mu.Lock()
	n := len(t.entries)
	t.mu.Unlock()
	return n
}

// #endregion
