package stream

import (
	"sort"
	"sync"

	"github.com/corekv/corekv/internal/radix"
)

// Entry is one appended record: an ordered list of field/value pairs,
// matching spec.md §4.4's "flat field list, duplicates permitted" rule.
type Entry struct {
	ID     ID
	Fields []Field
}

type Field struct {
	Name  []byte
	Value []byte
}

// Stream is the append-ordered log for one keyspace value of kind Stream.
// Entries are stored in a radix tree keyed by their 16-byte big-endian ID
// so that range scans stay O(log N) (spec.md §4.3, §4.4); the snapshot
// codec persists a stream as a flat list of entries, not as the tree.
type Stream struct {
	mu       sync.RWMutex
	entries  *radix.Tree
	length   int
	lastID   ID
	maxDelID ID // highest ID ever removed, for XINFO STREAM's max-deleted-entry-id
	addedCt  uint64
	groups   map[string]*Group
}

func New() *Stream {
	return &Stream{entries: radix.New(), groups: map[string]*Group{}}
}

func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.length
}

func (s *Stream) LastID() ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID
}

// Append assigns an ID (resolving "*" via NextAuto against nowMs) and
// inserts the entry. An explicit id must be strictly greater than the
// stream's current last ID.
func (s *Stream) Append(nowMs uint64, id *ID, fields []Field) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var assigned ID
	if id == nil {
		next, err := NextAuto(nowMs, s.lastID)
		if err != nil {
			return ID{}, err
		}
		assigned = next
	} else {
		if s.length > 0 || s.addedCt > 0 {
			if !s.lastID.Less(*id) {
				return ID{}, ErrNotGreater
			}
		}
		assigned = *id
	}

	s.entries.Insert(assigned.Bytes(), &Entry{ID: assigned, Fields: fields})
	s.length++
	s.addedCt++
	s.lastID = assigned
	return assigned, nil
}

// Get looks up a single entry by exact ID.
func (s *Stream) Get(id ID) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries.Get(id.Bytes())
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Range returns entries with start <= id <= end in ascending order,
// capped at count entries if count > 0.
func (s *Stream) Range(start, end ID, count int) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pairs := s.entries.Range(start.Bytes(), end.Bytes())
	return capEntries(pairs, count)
}

// RevRange returns entries with start <= id <= end in descending order.
func (s *Stream) RevRange(start, end ID, count int) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pairs := s.entries.RevRange(start.Bytes(), end.Bytes())
	return capEntries(pairs, count)
}

func capEntries(pairs []radix.Pair, count int) []*Entry {
	if count > 0 && len(pairs) > count {
		pairs = pairs[:count]
	}
	out := make([]*Entry, len(pairs))
	for i, p := range pairs {
		out[i] = p.Value.(*Entry)
	}
	return out
}

// Delete removes an entry (XDEL). Group PELs are not purged here; a
// delivered-but-deleted entry still appears, with nil fields, in
// ReadGroupHistory's replay, and XACK still clears the PEL slot.
func (s *Stream) Delete(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries.Remove(id.Bytes())
	if ok {
		s.length--
		if s.maxDelID.Less(id) {
			s.maxDelID = id
		}
	}
	return ok
}

// Trim removes entries to enforce an approximate or exact MAXLEN/MINID
// policy (spec.md §4.4 XTRIM). It walks ascending from the start and
// deletes until the predicate says stop.
func (s *Stream) Trim(keep func(remaining int, oldest ID) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for {
		pairs := s.entries.Range(MinID.Bytes(), MaxID.Bytes())
		if len(pairs) == 0 {
			break
		}
		oldest := pairs[0].Value.(*Entry)
		if keep(s.length, oldest.ID) {
			break
		}
		s.entries.Remove(oldest.ID.Bytes())
		s.length--
		if s.maxDelID.Less(oldest.ID) {
			s.maxDelID = oldest.ID
		}
		removed++
	}
	return removed
}

// GroupNames returns the stream's consumer group names in sorted order.
func (s *Stream) GroupNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.groups))
	for n := range s.groups {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Stream) Group(name string) (*Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[name]
	return g, ok
}

// CreateGroup registers a new consumer group at the given start ID (or
// MaxID for "$", meaning "only entries appended after this point").
func (s *Stream) CreateGroup(name string, start ID) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[name]; exists {
		return nil, ErrGroupExists
	}
	g := newGroup(name, start)
	s.groups[name] = g
	return g, nil
}

func (s *Stream) DestroyGroup(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[name]; !ok {
		return false
	}
	delete(s.groups, name)
	return true
}
