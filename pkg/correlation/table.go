// Package correlation tracks in-flight tool calls so asynchronous results can
// be matched back to the request that produced them.
package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry records one outstanding tool call.
type Entry struct {
	CallID    string
	TurnID    string
	Tool      string
	StartedAt time.Time

	// Cancel aborts the call's execution context. Best-effort: operations past
	// the point of no return run to completion and their result is discarded.
	Cancel context.CancelFunc
}

// Table maps tool-call identifiers to in-flight execution state. Entries are
// removed the instant a terminal status is recorded; the table must be empty
// at turn completion.
type Table struct {
	entries map[string]Entry
	seen    map[string]struct{}
	logger  zerolog.Logger
	mu      sync.Mutex
}

// NewTable creates an empty correlation table.
func NewTable(logger zerolog.Logger) *Table {
	return &Table{
		entries: make(map[string]Entry),
		seen:    make(map[string]struct{}),
		logger:  logger,
	}
}

// Register adds an entry for a newly dispatched tool call. Call identifiers
// are unique for the lifetime of the session; reuse is rejected even after the
// original entry resolved.
func (t *Table) Register(e Entry) error {
	if e.CallID == "" {
		return fmt.Errorf("call id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.seen[e.CallID]; dup {
		return fmt.Errorf("duplicate tool call id: %s", e.CallID)
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	t.seen[e.CallID] = struct{}{}
	t.entries[e.CallID] = e
	return nil
}

// Resolve removes and returns the entry for a call that reached a terminal
// status. The second return is false when no such call is in flight.
func (t *Table) Resolve(callID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[callID]
	if !ok {
		return Entry{}, false
	}
	delete(t.entries, callID)
	return e, true
}

// Executing returns the entries still in flight for a turn.
func (t *Table) Executing(turnID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for _, e := range t.entries {
		if e.TurnID == turnID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of in-flight entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Drain asserts the table holds no entries for the given turn. A non-empty
// table at turn completion is a protocol invariant violation: it is logged as
// a defect, the stragglers are cancelled and removed, and their ids returned.
func (t *Table) Drain(turnID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var leaked []string
	for id, e := range t.entries {
		if e.TurnID != turnID {
			continue
		}
		leaked = append(leaked, id)
		if e.Cancel != nil {
			e.Cancel()
		}
		delete(t.entries, id)
	}

	if len(leaked) > 0 {
		t.logger.Error().
			Str("turnId", turnID).
			Strs("callIds", leaked).
			Msg("Correlation table not empty at turn completion")
	}

	return leaked
}
