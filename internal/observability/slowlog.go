// Package observability implements the slowlog, MONITOR mirroring, and
// the INFO text blob described in spec.md §4.16. Grounded on the
// teacher's cclog-style structured logging for the text rendering and
// on the pack's prometheus.NewCounter/Gauge idiom
// (etalazz-vsa/internal/ratelimiter/telemetry/churn) for the exported
// metrics in metrics.go.
package observability

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// SlowlogEntry is one recorded command, matching spec.md §4.16's tuple
// exactly: auto-id, unix seconds, elapsed microseconds, argv, client
// address, client name.
type SlowlogEntry struct {
	ID         int64
	TimestampS int64
	ElapsedUs  int64
	Argv       [][]byte
	ClientAddr string
	ClientName string
}

// Slowlog is a bounded deque trimmed from the tail; both the threshold
// and max length are live-configurable per spec.md.
type Slowlog struct {
	mu        sync.Mutex
	entries   *list.List // front = newest
	nextID    atomic.Int64
	threshold atomic.Int64 // microseconds; negative disables
	maxLen    atomic.Int64

	// Record leaves ClientAddr/ClientName empty; the connection
	// supervisor sets them per call via RecordFor.
}

func NewSlowlog(thresholdUs int64, maxLen int) *Slowlog {
	s := &Slowlog{entries: list.New()}
	s.threshold.Store(thresholdUs)
	s.maxLen.Store(int64(maxLen))
	return s
}

func (s *Slowlog) SetThreshold(us int64) { s.threshold.Store(us) }
func (s *Slowlog) SetMaxLen(n int)       { s.maxLen.Store(int64(n)) }

// Record pushes an entry iff elapsed meets the configured threshold,
// trimming the deque to the configured max length.
func (s *Slowlog) Record(argv [][]byte, elapsed time.Duration) {
	s.RecordFor(argv, elapsed, "", "")
}

// RecordFor is Record with the client address/name the connection
// supervisor knows and the bare dispatcher does not.
func (s *Slowlog) RecordFor(argv [][]byte, elapsed time.Duration, addr, name string) {
	threshold := s.threshold.Load()
	if threshold < 0 {
		return
	}
	us := elapsed.Microseconds()
	if us < threshold {
		return
	}

	entry := SlowlogEntry{
		ID:         s.nextID.Add(1),
		TimestampS: time.Now().Unix(),
		ElapsedUs:  us,
		Argv:       argv,
		ClientAddr: addr,
		ClientName: name,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.PushFront(entry)
	maxLen := int(s.maxLen.Load())
	for s.entries.Len() > maxLen && maxLen >= 0 {
		s.entries.Remove(s.entries.Back())
	}
}

// Len returns the current entry count (SLOWLOG LEN).
func (s *Slowlog) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

// Get returns up to n most-recent entries, or all of them if n<0
// (SLOWLOG GET [count]).
func (s *Slowlog) Get(n int) []SlowlogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SlowlogEntry, 0, s.entries.Len())
	for e := s.entries.Front(); e != nil; e = e.Next() {
		if n >= 0 && len(out) >= n {
			break
		}
		out = append(out, e.Value.(SlowlogEntry))
	}
	return out
}

// Reset clears every entry (SLOWLOG RESET).
func (s *Slowlog) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Init()
}
