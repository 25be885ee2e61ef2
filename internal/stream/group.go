package stream

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrGroupExists    = errors.New("BUSYGROUP Consumer Group name already exists")
	ErrNoSuchGroup    = errors.New("NOGROUP No such consumer group")
	ErrNoSuchConsumer = errors.New("NOGROUP No such consumer")
)

// PendingEntry records one delivery of an entry to a consumer group that
// has not yet been acknowledged (spec.md §4.4 XREADGROUP/XACK/XPENDING).
type PendingEntry struct {
	ID            ID
	Consumer      string
	DeliveryTime  int64 // unix millis of most recent (re)delivery
	DeliveryCount uint64
}

// Consumer tracks a named reader within a group, for XINFO CONSUMERS and
// idle-time bookkeeping.
type Consumer struct {
	Name     string
	SeenTime int64
	ActiveTime int64
}

// Group is a consumer group: a named cursor (LastDelivered) plus a
// pending-entry list keyed by entry ID, shared across all consumers that
// read via ">" (spec.md §4.4).
type Group struct {
	mu            sync.Mutex
	Name          string
	LastDelivered ID
	consumers     map[string]*Consumer
	pending       map[ID]*PendingEntry
}

func newGroup(name string, start ID) *Group {
	return &Group{
		Name:          name,
		LastDelivered: start,
		consumers:     map[string]*Consumer{},
		pending:       map[ID]*PendingEntry{},
	}
}

func (g *Group) ensureConsumer(name string, nowMs int64) *Consumer {
	c, ok := g.consumers[name]
	if !ok {
		c = &Consumer{Name: name, SeenTime: nowMs, ActiveTime: nowMs}
		g.consumers[name] = c
	} else {
		c.SeenTime = nowMs
	}
	return c
}

// Deliver records that entries were handed to consumer as a new
// (first-time) delivery, advancing LastDelivered and adding PEL slots.
func (g *Group) Deliver(consumer string, entries []*Entry, nowMs int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureConsumer(consumer, nowMs)
	for _, e := range entries {
		g.pending[e.ID] = &PendingEntry{
			ID:            e.ID,
			Consumer:      consumer,
			DeliveryTime:  nowMs,
			DeliveryCount: 1,
		}
		if g.LastDelivered.Less(e.ID) {
			g.LastDelivered = e.ID
		}
	}
}

// RestorePending installs a PEL slot directly with an explicit delivery
// count, used by the snapshot and command-log loaders to reconstruct
// state without going through the normal first-delivery path.
func (g *Group) RestorePending(id ID, consumer string, deliveryTimeMs int64, deliveryCount uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureConsumer(consumer, deliveryTimeMs)
	g.pending[id] = &PendingEntry{
		ID:            id,
		Consumer:      consumer,
		DeliveryTime:  deliveryTimeMs,
		DeliveryCount: deliveryCount,
	}
	if g.LastDelivered.Less(id) {
		g.LastDelivered = id
	}
}

// Ack removes ids from the pending list. Returns the count actually
// cleared, matching XACK's integer reply semantics.
func (g *Group) Ack(ids []ID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := g.pending[id]; ok {
			delete(g.pending, id)
			n++
		}
	}
	return n
}

// PendingSummary is the reply shape for XPENDING with no range arguments:
// total count, lowest/highest ID in the PEL, and per-consumer counts.
type PendingSummary struct {
	Count     int
	Lowest    ID
	Highest   ID
	ByConsumer map[string]int
}

func (g *Group) Summary() PendingSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	sum := PendingSummary{ByConsumer: map[string]int{}}
	if len(g.pending) == 0 {
		return sum
	}
	first := true
	for _, pe := range g.pending {
		sum.Count++
		sum.ByConsumer[pe.Consumer]++
		if first || pe.ID.Less(sum.Lowest) {
			sum.Lowest = pe.ID
		}
		if first || sum.Highest.Less(pe.ID) {
			sum.Highest = pe.ID
		}
		first = false
	}
	return sum
}

// Range lists pending entries with start <= id <= end, sorted ascending,
// optionally filtered to one consumer, capped at count.
func (g *Group) Range(start, end ID, count int, consumer string) []*PendingEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*PendingEntry
	for _, pe := range g.pending {
		if pe.ID.Less(start) || end.Less(pe.ID) {
			continue
		}
		if consumer != "" && pe.Consumer != consumer {
			continue
		}
		out = append(out, pe)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out
}

// Claim reassigns ownership of pending entries to consumer (XCLAIM).
// Entries idle for less than minIdleMs are skipped; each claimed entry
// gets DeliveryTime nowMs and, unless justID is set, a bumped
// DeliveryCount.
func (g *Group) Claim(ids []ID, consumer string, minIdleMs int64, nowMs int64, justID bool) []*PendingEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureConsumer(consumer, nowMs)
	var claimed []*PendingEntry
	for _, id := range ids {
		pe, ok := g.pending[id]
		if !ok {
			continue
		}
		if nowMs-pe.DeliveryTime < minIdleMs {
			continue
		}
		pe.Consumer = consumer
		pe.DeliveryTime = nowMs
		if !justID {
			pe.DeliveryCount++
		}
		claimed = append(claimed, pe)
	}
	return claimed
}

// AutoClaim is XAUTOCLAIM: like Claim but scans the PEL in ID order
// starting from cursor, stopping after count entries, and returns the
// next cursor (zero ID if the scan reached the end).
func (g *Group) AutoClaim(cursor ID, consumer string, minIdleMs int64, nowMs int64, count int) (claimed []*PendingEntry, deleted []ID, next ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var all []*PendingEntry
	for _, pe := range g.pending {
		if pe.ID.Less(cursor) {
			continue
		}
		all = append(all, pe)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.Less(all[j].ID) })

	g.ensureConsumer(consumer, nowMs)
	taken := 0
	for _, pe := range all {
		if taken >= count {
			next = pe.ID
			return claimed, deleted, next
		}
		if nowMs-pe.DeliveryTime < minIdleMs {
			continue
		}
		pe.Consumer = consumer
		pe.DeliveryTime = nowMs
		pe.DeliveryCount++
		claimed = append(claimed, pe)
		taken++
	}
	return claimed, deleted, ID{}
}

// Consumers lists the group's known consumers sorted by name.
func (g *Group) Consumers() []*Consumer {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Consumer, 0, len(g.consumers))
	for _, c := range g.consumers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DelConsumer removes a consumer and returns how many of its pending
// entries were dropped from the PEL (XGROUP DELCONSUMER).
func (g *Group) DelConsumer(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.consumers, name)
	n := 0
	for id, pe := range g.pending {
		if pe.Consumer == name {
			delete(g.pending, id)
			n++
		}
	}
	return n
}

// SetID repositions the group's delivery cursor (XGROUP SETID).
func (g *Group) SetID(id ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.LastDelivered = id
}
