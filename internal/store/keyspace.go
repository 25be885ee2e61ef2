package store

import (
	"hash/fnv"
	"sort"
	"sync"
)

const shardCount = 32

// ExpireHook is invoked whenever a key is reaped because its deadline
// passed, either lazily on access or by the background sweeper (spec.md
// §4.2). It runs with no locks held.
type ExpireHook func(keyspaceIndex int, key string)

type shard struct {
	mu sync.RWMutex
	m  map[string]*Entry
}

// Keyspace is one of the database's N selectable logical databases (spec.md
// §3). Concurrency is handled by striping keys across fixed shards, each
// guarded by its own RWMutex — multiple readers, one writer, per shard.
// This approximates the spec's "exclusive access to a single entry" at
// shard granularity, which is the same trade-off the teacher's sharded
// concurrent registries make (internal/memorystore hashes hosts across a
// fixed tree rather than locking the whole store).
type Keyspace struct {
	index  int
	shards [shardCount]*shard
	onExp  ExpireHook

	// execGate serializes an EXEC batch's whole replay against every
	// other connection's commands against this keyspace: a lone command
	// holds the read side for its own single call, EXEC holds the write
	// side across its entire queued replay (spec.md §4.11: "no other
	// commands from other connections interleave with the batch from
	// this connection's point of view of its own keyspace"). Nested
	// calls — EXEC's own queued commands, a script's Redis calls — never
	// take this gate themselves, so a connection can't deadlock against
	// the gate it's already holding.
	execGate sync.RWMutex
}

func NewKeyspace(index int, onExpire ExpireHook) *Keyspace {
	ks := &Keyspace{index: index, onExp: onExpire}
	for i := range ks.shards {
		ks.shards[i] = &shard{m: make(map[string]*Entry)}
	}
	return ks
}

func (ks *Keyspace) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return ks.shards[h.Sum32()%shardCount]
}

// BeginCommand blocks until no EXEC batch holds this keyspace's gate
// and returns the function that releases this single command's hold on
// it. Dispatch calls this once per non-nested, keyspace-touching call.
func (ks *Keyspace) BeginCommand() (end func()) {
	ks.execGate.RLock()
	return ks.execGate.RUnlock
}

// BeginExec takes exclusive access to this keyspace for the duration of
// an EXEC batch's replay and returns the function that releases it.
func (ks *Keyspace) BeginExec() (end func()) {
	ks.execGate.Lock()
	return ks.execGate.Unlock
}

func (ks *Keyspace) fireExpire(key string) {
	if ks.onExp != nil {
		ks.onExp(ks.index, key)
	}
}

// View runs fn with read access to key's entry. If the entry is missing or
// has expired, fn is called with (nil, false); an expired entry is reaped
// (possibly by another goroutine racing to do the same — both outcomes are
// safe) and ExpireHook fires.
func (ks *Keyspace) View(key string, fn func(e *Entry, exists bool)) {
	s := ks.shardFor(key)
	s.mu.RLock()
	e, ok := s.m[key]
	if ok && e.Expired(nowMillis()) {
		s.mu.RUnlock()
		ks.expireIfStillExpired(key)
		fn(nil, false)
		return
	}
	if ok {
		e.Touch()
	}
	fn(e, ok)
	s.mu.RUnlock()
}

func (ks *Keyspace) expireIfStillExpired(key string) {
	s := ks.shardFor(key)
	s.mu.Lock()
	e, ok := s.m[key]
	removed := false
	if ok && e.Expired(nowMillis()) {
		delete(s.m, key)
		removed = true
	}
	s.mu.Unlock()
	if removed {
		ks.fireExpire(key)
	}
}

// Update runs fn with exclusive access to key's entry (nil if absent or
// expired). fn returns the entry to store (nil to leave deleted) and
// whether the key should be deleted. Returning (same pointer, false) is a
// no-op write-back; Update is also how new keys are created.
func (ks *Keyspace) Update(key string, fn func(e *Entry, exists bool) (result *Entry, del bool)) {
	s := ks.shardFor(key)
	s.mu.Lock()
	e, ok := s.m[key]
	expiredNow := false
	if ok && e.Expired(nowMillis()) {
		delete(s.m, key)
		ok = false
		e = nil
		expiredNow = true
	}
	result, del := fn(e, ok)
	if del || result == nil {
		delete(s.m, key)
	} else {
		s.m[key] = result
	}
	s.mu.Unlock()
	if expiredNow {
		ks.fireExpire(key)
	}
}

// Insert stores entry at key unconditionally, overwriting any prior value.
func (ks *Keyspace) Insert(key string, e *Entry) {
	s := ks.shardFor(key)
	s.mu.Lock()
	s.m[key] = e
	s.mu.Unlock()
}

// Remove deletes key, returning whether it existed (and was not already
// logically expired).
func (ks *Keyspace) Remove(key string) bool {
	removed := false
	ks.Update(key, func(e *Entry, exists bool) (*Entry, bool) {
		removed = exists
		return nil, true
	})
	return removed
}

// Contains reports whether key is present and unexpired.
func (ks *Keyspace) Contains(key string) bool {
	found := false
	ks.View(key, func(_ *Entry, exists bool) { found = exists })
	return found
}

// Len returns the number of live (possibly not-yet-lazily-expired) keys.
func (ks *Keyspace) Len() int {
	n := 0
	for _, s := range ks.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Keys returns a snapshot of all key names currently resident (including
// entries that have expired but not yet been swept — callers that care use
// Contains/View to filter).
func (ks *Keyspace) Keys() []string {
	out := make([]string, 0, ks.Len())
	for _, s := range ks.shards {
		s.mu.RLock()
		for k := range s.m {
			out = append(out, k)
		}
		s.mu.RUnlock()
	}
	return out
}

// Retain removes every key for which pred returns false.
func (ks *Keyspace) Retain(pred func(key string, e *Entry) bool) {
	for _, s := range ks.shards {
		s.mu.Lock()
		for k, e := range s.m {
			if !pred(k, e) {
				delete(s.m, k)
			}
		}
		s.mu.Unlock()
	}
}

// ForEachExpired calls fn for every entry whose deadline has passed as of
// nowMs, removing it first. Used by the background sweeper (spec.md §4.2).
func (ks *Keyspace) ForEachExpired(nowMs int64, fn func(key string)) {
	for _, s := range ks.shards {
		var expired []string
		s.mu.Lock()
		for k, e := range s.m {
			if e.Expired(nowMs) {
				expired = append(expired, k)
				delete(s.m, k)
			}
		}
		s.mu.Unlock()
		for _, k := range expired {
			fn(k)
		}
	}
}

// Sample returns up to n random (key, entry) pairs, used by approximate
// eviction policies (spec.md §4.14).
func (ks *Keyspace) Sample(n int, onlyVolatile bool) []SampledEntry {
	out := make([]SampledEntry, 0, n)
	// Sampling proportionally across shards keeps this close to uniform
	// without building a full index of every key up front.
	perShard := n/shardCount + 1
	for _, s := range ks.shards {
		s.mu.RLock()
		count := 0
		for k, e := range s.m {
			if count >= perShard {
				break
			}
			if onlyVolatile {
				if _, has := e.ExpireAt(); !has {
					continue
				}
			}
			out = append(out, SampledEntry{Key: k, Entry: e})
			count++
		}
		s.mu.RUnlock()
		if len(out) >= n {
			break
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

type SampledEntry struct {
	Key   string
	Entry *Entry
}

// ScanResult is the cursor-paginated KEYS/SCAN primitive (spec.md §4.13).
// The cursor encodes a sorted-key offset; it is opaque to callers and only
// guaranteed to terminate (return cursor 0) once every key resident for the
// whole scan has been visited at least once.
type ScanResult struct {
	Cursor uint64
	Keys   []string
}

// Scan returns up to count keys starting at cursor, matching the optional
// glob pattern. Keys are scanned in a stable sorted order so that
// concurrent inserts/deletes don't cause a key to be skipped across the
// full sweep (they may still be seen zero or more times, as permitted by
// spec.md §4.13).
func (ks *Keyspace) Scan(cursor uint64, count int, match func(string) bool) ScanResult {
	all := ks.Keys()
	sort.Strings(all)
	start := int(cursor)
	if start > len(all) {
		start = len(all)
	}
	end := start + count
	if end > len(all) {
		end = len(all)
	}
	out := make([]string, 0, end-start)
	for _, k := range all[start:end] {
		if !ks.Contains(k) {
			continue
		}
		if match == nil || match(k) {
			out = append(out, k)
		}
	}
	next := uint64(end)
	if end >= len(all) {
		next = 0
	}
	return ScanResult{Cursor: next, Keys: out}
}

// Database is the fixed-size family of keyspaces a connection selects among
// (spec.md §3).
type Database struct {
	Keyspaces []*Keyspace
}

func NewDatabase(count int, onExpire ExpireHook) *Database {
	db := &Database{Keyspaces: make([]*Keyspace, count)}
	for i := range db.Keyspaces {
		db.Keyspaces[i] = NewKeyspace(i, onExpire)
	}
	return db
}
