// Package txn implements MULTI/EXEC/WATCH/DISCARD transactions (spec.md
// §4.11): per-connection command queueing, and optimistic concurrency
// via a secondary key→watchers registry that flips a connection's dirty
// flag on any write to a watched key.
package txn

import "sync"

// QueuedCommand is one command accepted between MULTI and EXEC.
type QueuedCommand struct {
	Argv [][]byte
}

// Transaction is the per-connection transaction state. The connection
// owns one of these; it is not safe for concurrent use by multiple
// goroutines since only the owning connection's dispatcher loop touches
// it (spec.md §4.11 forbids interleaving another command from the same
// connection anyway).
type Transaction struct {
	InMulti bool
	Dirty   bool
	Queue   []QueuedCommand
	watched map[WatchKey]struct{}
}

// WatchKey identifies one watched key within one database.
type WatchKey struct {
	DB  int
	Key string
}

func New() *Transaction {
	return &Transaction{watched: map[WatchKey]struct{}{}}
}

func (t *Transaction) Begin() { t.InMulti = true }

func (t *Transaction) Enqueue(argv [][]byte) {
	t.Queue = append(t.Queue, QueuedCommand{Argv: argv})
}

// Reset clears queued commands and multi state but leaves watches
// intact — EXEC/DISCARD both reset this way; watches persist across
// EXEC only until EXEC's own UNWATCH-equivalent cleanup runs (callers
// are expected to call ClearWatches too once EXEC has resolved, mirroring
// real Redis's "EXEC always unwatches" behavior).
func (t *Transaction) Reset() {
	t.InMulti = false
	t.Dirty = false
	t.Queue = nil
}

func (t *Transaction) ClearWatches(reg *WatchRegistry, connID uint64) {
	for wk := range t.watched {
		reg.unwatch(wk, connID)
	}
	t.watched = map[WatchKey]struct{}{}
}

func (t *Transaction) AddWatch(wk WatchKey) {
	t.watched[wk] = struct{}{}
}

// WatchRegistry is the server-wide key→watching-connections index.
// Grounded on spec.md §4.11's "secondary registry (key → set of
// watching connections) updated on every write."
type WatchRegistry struct {
	mu       sync.Mutex
	watchers map[WatchKey]map[uint64]*Transaction
}

func NewWatchRegistry() *WatchRegistry {
	return &WatchRegistry{watchers: map[WatchKey]map[uint64]*Transaction{}}
}

// Watch registers t (identified by connID) as watching wk.
func (r *WatchRegistry) Watch(wk WatchKey, connID uint64, t *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[wk]
	if !ok {
		set = map[uint64]*Transaction{}
		r.watchers[wk] = set
	}
	set[connID] = t
	t.AddWatch(wk)
}

func (r *WatchRegistry) unwatch(wk WatchKey, connID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.watchers[wk]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.watchers, wk)
		}
	}
}

// Touch marks every transaction watching (db, key) dirty. Called by the
// write path on every mutating command, regardless of whether a
// transaction is in progress for that key's owner (spec.md §4.11: "any
// subsequent write by any connection to a watched key flips this
// connection's dirty flag").
func (r *WatchRegistry) Touch(db int, key string) {
	wk := WatchKey{DB: db, Key: key}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.watchers[wk] {
		t.Dirty = true
	}
}
