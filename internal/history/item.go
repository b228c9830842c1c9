// Package history implements the execution history: a
// sequence of history items doubly linked via prev/next, optionally
// persisted to a keyed append log, collapsible into per-state records for
// analysis tools, and steppable backward.
package history

import (
	"sync"
	"time"

	"github.com/corestate/statecraft/internal/scopeddata"
)

// Kind tags the four history item shapes.
type Kind string

const (
	KindStateMachineStart Kind = "state_machine_start"
	KindCall              Kind = "call"
	KindReturn            Kind = "return"
	KindConcurrency       Kind = "concurrency"
)

// CallType distinguishes the outer container entry from the inner body
// execution of a single state.
type CallType string

const (
	CallExecute   CallType = "execute"
	CallContainer CallType = "container"
)

// Item is one entry of the history log. Every item carries the common
// fields; the Kind-specific payload fields are populated when relevant to
// its kind and left zero otherwise.
type Item struct {
	HistoryItemID   string
	Kind            Kind
	StatePath       []string // state ids from root to this state
	StatePathByName []string
	StateType       string
	Timestamp       time.Time
	RunID           string
	PrevID          string
	NextID          string // empty until the matching item is appended

	// Call / Return payload.
	CallType   CallType
	ScopedData map[string]scopeddata.Entry
	Inputs     map[string]scopeddata.Value
	Outputs    map[string]scopeddata.Value
	Outcome    string
	Cancelled  bool

	// StateMachineStart payload.
	RootSnapshot any
	Version      int

	// Concurrency payload: the entry history_item_id of each spawned branch.
	BranchEntryIDs []string
}

// Log is the in-memory doubly-linked sequence for one running (or
// completed) state machine execution, optionally mirrored into a Store.
// Barrier/preemptive branches each run on their own goroutine and call
// Append concurrently so items/byID are guarded by mu.
type Log struct {
	mu    sync.Mutex
	items []*Item
	byID  map[string]*Item
	store Store
}

// NewLog returns an empty log, optionally backed by store (nil is valid:
// history is kept in memory only).
func NewLog(store Store) *Log {
	return &Log{byID: map[string]*Item{}, store: store}
}

// Append links item to the current tail, assigns PrevID, and persists it if
// a Store is attached.
func (l *Log) Append(item *Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) > 0 {
		tail := l.items[len(l.items)-1]
		item.PrevID = tail.HistoryItemID
		tail.NextID = item.HistoryItemID
	}
	l.items = append(l.items, item)
	l.byID[item.HistoryItemID] = item
	if l.store != nil {
		return l.store.Put(item.HistoryItemID, item)
	}
	return nil
}

// Items returns a snapshot of the live in-memory item list in order.
func (l *Log) Items() []*Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Item, len(l.items))
	copy(out, l.items)
	return out
}

// Get looks up an item by id.
func (l *Log) Get(id string) (*Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.byID[id]
	return it, ok
}

// MarkCancelled flags the Call item id as cancelled in the live in-memory
// log, used by barrier/preemptive execution to retroactively mark a
// branch's Call once the race against its siblings decides it lost. A no-op if
// id is empty or unknown (no log attached, or the branch never reached
// its suspension point).
func (l *Log) MarkCancelled(id string) {
	if id == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if it, ok := l.byID[id]; ok {
		it.Cancelled = true
	}
}

// Truncate drops every item after (and not including) keepThroughID,
// used by backward stepping ("remove the trailing items up to
// (and excluding) that call from the live in-memory list"). The persistent
// log, if any, is untouched; it is append-only.
func (l *Log) Truncate(keepThroughID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := -1
	for i, it := range l.items {
		if it.HistoryItemID == keepThroughID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for _, it := range l.items[idx+1:] {
		delete(l.byID, it.HistoryItemID)
	}
	l.items = l.items[:idx+1]
	l.items[idx].NextID = ""
}
