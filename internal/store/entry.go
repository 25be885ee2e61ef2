package store

import (
	"sync/atomic"
	"time"
)

// noExpiry is the sentinel stored in Entry.expiresAt meaning "no deadline".
// Millisecond wall-clock deadlines are always positive, so 0 is safe to use
// and lets us keep the field a plain atomic.Int64 instead of an
// atomic.Pointer[int64] (spec.md's Option<i64> modeled without an
// allocation per entry).
const noExpiry = 0

// Entry is a stored Value plus its metadata (spec.md §3). LRU/LFU and the
// expiration deadline are accessed through atomics so that read-mostly
// traversal (store.View) can touch them without upgrading to an exclusive
// per-shard lock — only Value itself requires the write lock to mutate.
type Entry struct {
	Value Value

	expiresAt atomic.Int64
	lru       atomic.Int64
	lfu       atomic.Uint32
}

func NewEntry(v Value) *Entry {
	e := &Entry{Value: v}
	e.lru.Store(time.Now().Unix())
	e.lfu.Store(5)
	return e
}

// SetExpireAt sets the absolute millisecond deadline, or clears it if ms<=0.
func (e *Entry) SetExpireAt(ms int64) {
	if ms <= 0 {
		e.expiresAt.Store(noExpiry)
		return
	}
	e.expiresAt.Store(ms)
}

// ExpireAt returns the absolute millisecond deadline and whether one is set.
func (e *Entry) ExpireAt() (int64, bool) {
	ms := e.expiresAt.Load()
	return ms, ms != noExpiry
}

func (e *Entry) ClearExpire() { e.expiresAt.Store(noExpiry) }

// Expired reports whether e's deadline has passed as of nowMs.
func (e *Entry) Expired(nowMs int64) bool {
	ms := e.expiresAt.Load()
	return ms != noExpiry && ms <= nowMs
}

func (e *Entry) Touch() {
	e.lru.Store(time.Now().Unix())
	for {
		cur := e.lfu.Load()
		if cur >= 255 {
			return
		}
		if e.lfu.CompareAndSwap(cur, cur+1) {
			return
		}
	}
}

func (e *Entry) LRU() int64  { return e.lru.Load() }
func (e *Entry) LFU() uint32 { return e.lfu.Load() }

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
