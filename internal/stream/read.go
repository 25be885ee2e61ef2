package stream

// ReadGroupNew serves XREADGROUP GROUP g c STREAMS k ">": it returns up to
// count entries newer than the group's last-delivered ID, advances that
// cursor, and records a fresh PEL entry for each one delivered to
// consumer (spec.md §4.4).
func (s *Stream) ReadGroupNew(group *Group, consumer string, count int, nowMs int64) []*Entry {
	group.mu.Lock()
	after := group.LastDelivered
	group.mu.Unlock()

	// Entries strictly greater than `after`: since IDs never repeat, the
	// smallest possible successor key is (after.Ms, after.Seq+1).
	start := after
	if start.Seq == ^uint64(0) {
		start = ID{Ms: after.Ms + 1, Seq: 0}
	} else {
		start = ID{Ms: after.Ms, Seq: after.Seq + 1}
	}

	entries := s.Range(start, MaxID, count)
	if len(entries) == 0 {
		return nil
	}
	group.Deliver(consumer, entries, nowMs)
	return entries
}

// ReadGroupHistory serves XREADGROUP with an explicit ID other than ">":
// it replays the consumer's own already-pending entries with ID >= from,
// without touching the delivery cursor or creating new PEL slots.
func (s *Stream) ReadGroupHistory(group *Group, consumer string, from ID, count int) []*Entry {
	group.mu.Lock()
	var ids []ID
	for id, pe := range group.pending {
		if pe.Consumer != consumer {
			continue
		}
		if id.Less(from) {
			continue
		}
		ids = append(ids, id)
	}
	group.mu.Unlock()

	sortIDs(ids)
	if count > 0 && len(ids) > count {
		ids = ids[:count]
	}

	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.Get(id); ok {
			out = append(out, e)
		} else {
			// Source entry was deleted (XDEL); upstream reports a nil
			// placeholder so the caller can still see the ID was pending.
			out = append(out, &Entry{ID: id, Fields: nil})
		}
	}
	return out
}

func sortIDs(ids []ID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j].Less(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
