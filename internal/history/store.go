package history

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/corestate/statecraft/internal/errs"
)

// historyBucket is the single bbolt bucket every history item is written
// into, keyed by history_item_id.
var historyBucket = []byte("history_items")

// Store is the history persistence contract: put runs under an
// exclusive mutex, flush/close persist and release. A Store is optional;
// Log works in-memory-only when none is attached.
type Store interface {
	Put(id string, item *Item) error
	Flush() error
	Close() error
}

// record is the self-describing map every Item is serialised to.
type record map[string]any

func toRecord(item *Item) record {
	r := record{
		"history_item_id":    item.HistoryItemID,
		"kind":               string(item.Kind),
		"state_path":         item.StatePath,
		"state_path_by_name": item.StatePathByName,
		"state_type":         item.StateType,
		"timestamp":          item.Timestamp.Format(time.RFC3339Nano),
		"run_id":             item.RunID,
		"prev_id":            item.PrevID,
		"next_id":            item.NextID,
	}
	switch item.Kind {
	case KindCall, KindReturn:
		r["call_type"] = string(item.CallType)
		r["outcome"] = item.Outcome
		r["cancelled"] = item.Cancelled
		putOrFallback(r, "scoped_data", item.ScopedData)
		putOrFallback(r, "inputs", item.Inputs)
		putOrFallback(r, "outputs", item.Outputs)
	case KindStateMachineStart:
		r["version"] = item.Version
		putOrFallback(r, "root_snapshot", item.RootSnapshot)
	case KindConcurrency:
		r["branch_entry_ids"] = item.BranchEntryIDs
	}
	return r
}

// putOrFallback attempts to round-trip v through JSON; on failure it
// substitutes a string rendering under key plus a key+"_error_type" field
// naming the Go type of the marshal error, rather than losing the item.
func putOrFallback(r record, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		r[key] = fmt.Sprintf("%v", v)
		r[key+"_error_type"] = fmt.Sprintf("%T", err)
		return
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		r[key] = fmt.Sprintf("%v", v)
		r[key+"_error_type"] = fmt.Sprintf("%T", err)
		return
	}
	r[key] = generic
}

// BoltStore persists history items to a bbolt keyed log: one bucket,
// byte-string keys, writes behind a mutex.
type BoltStore struct {
	mu sync.Mutex
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt file at path and ensures
// the history bucket exists.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errs.PersistenceFault("history.OpenBoltStore", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errs.PersistenceFault("history.OpenBoltStore", err)
	}
	return &BoltStore{db: db}, nil
}

// Put serialises item to its self-describing record and writes it under an
// exclusive mutex, safe to call concurrently from multiple
// concurrency branches writing into the same store.
func (s *BoltStore) Put(id string, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(toRecord(item))
	if err != nil {
		return errs.PersistenceFault("history.Put", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).Put([]byte(id), b)
	})
	if err != nil {
		return errs.PersistenceFault("history.Put", err)
	}
	return nil
}

// Flush is a no-op for bbolt: Update already commits and fsyncs per
// transaction. Present to satisfy the Store contract.
func (s *BoltStore) Flush() error { return nil }

// Close releases the underlying file handle.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return errs.PersistenceFault("history.Close", err)
	}
	return nil
}

// All returns every stored record, in bucket iteration order, for analysis
// tools that want a read-only view without going through a live Log.
func (s *BoltStore) All() ([]record, error) {
	var out []record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).ForEach(func(k, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, errs.PersistenceFault("history.All", err)
	}
	return out, nil
}
