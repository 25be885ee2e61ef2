package maintenance

import (
	"math/rand"

	"github.com/go-co-op/gocron/v2"

	"github.com/corekv/corekv/internal/corelog"
	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/store"
)

func (m *Manager) registerEvictionLoop() {
	corelog.Infof("maintenance: registering maxmemory eviction loop (policy=%d, cap=%d bytes)",
		m.cfg.MaxMemoryPolicy, m.cfg.MaxMemoryBytes)
	_, err := m.sch.NewJob(
		gocron.DurationJob(m.evictionInterval()),
		gocron.NewTask(m.evictCycle),
	)
	if err != nil {
		corelog.Errorf("maintenance: could not register eviction loop: %v", err)
	}
}

// usedBytes sums ApproxSize across every resident key. This walks the
// full keyspace each cycle; fine at the sampling cadence eviction runs
// at, not meant for a hot path.
func (m *Manager) usedBytes() int64 {
	var total int64
	for _, ks := range m.cfg.Databases {
		for _, key := range ks.Keys() {
			ks.View(key, func(e *store.Entry, exists bool) {
				if exists {
					total += int64(e.Value.ApproxSize())
				}
			})
		}
	}
	return total
}

// evictCycle samples candidate keys per spec.md §4.14's approximate
// eviction and removes the worst-ranked one repeatedly until memory use
// drops back under the configured cap or no evictable candidate remains.
func (m *Manager) evictCycle() {
	onlyVolatile := m.cfg.MaxMemoryPolicy == VolatileLRU ||
		m.cfg.MaxMemoryPolicy == VolatileLFU ||
		m.cfg.MaxMemoryPolicy == VolatileRandom ||
		m.cfg.MaxMemoryPolicy == VolatileTTL

	for m.usedBytes() > m.cfg.MaxMemoryBytes {
		dbIndex, key, ok := m.pickVictim(onlyVolatile)
		if !ok {
			return // nothing left to evict under this policy
		}
		ks := m.cfg.Databases[dbIndex]
		if ks.Remove(key) {
			m.evictedTotal.Add(1)
			if m.cfg.Metrics != nil {
				m.cfg.Metrics.IncEvictedKey()
			}
			if m.cfg.Notifier != nil {
				m.cfg.Notifier.Notify(notify.ClassEvicted, dbIndex, "evicted", []byte(key))
			}
		}
	}
}

// pickVictim samples cfg.MaxMemorySamples entries from each database and
// returns the single worst-ranked candidate across all of them.
func (m *Manager) pickVictim(onlyVolatile bool) (dbIndex int, key string, ok bool) {
	var bestDB int
	var bestKey string
	var bestScore float64
	found := false

	for i, ks := range m.cfg.Databases {
		for _, sample := range ks.Sample(m.samples(), onlyVolatile) {
			score, usable := m.rank(sample)
			if !usable {
				continue
			}
			if !found || score > bestScore {
				bestDB, bestKey, bestScore, found = i, sample.Key, score, true
			}
		}
	}
	return bestDB, bestKey, found
}

// rank scores a sampled entry so the highest score is evicted first:
// oldest-LRU, lowest-LFU, soonest-TTL, or pure random depending on
// policy (spec.md §4.14).
func (m *Manager) rank(s store.SampledEntry) (float64, bool) {
	switch m.cfg.MaxMemoryPolicy {
	case AllKeysLRU, VolatileLRU:
		return -float64(s.Entry.LRU()), true
	case AllKeysLFU, VolatileLFU:
		return -float64(s.Entry.LFU()), true
	case AllKeysRandom, VolatileRandom:
		return rand.Float64(), true
	case VolatileTTL:
		ms, has := s.Entry.ExpireAt()
		if !has {
			return 0, false
		}
		return -float64(ms), true
	default:
		return 0, false
	}
}
