// Package maintenance implements the background upkeep jobs described
// in spec.md §4.14: the expiration sweeper, memory-pressure eviction,
// and the periodic snapshot trigger. Grounded on the teacher's
// internal/taskmanager (gocron/v2 scheduler, one RegisterXService
// function per job, a package-level Start/Shutdown pair) generalized
// from HPC-cluster housekeeping jobs to keyspace housekeeping jobs.
package maintenance

import (
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/corekv/corekv/internal/corelog"
	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/observability"
	"github.com/corekv/corekv/internal/store"
)

// Policy selects which keys an eviction pass samples and how it ranks
// them for removal (spec.md §4.14).
type Policy int

const (
	NoEviction Policy = iota
	AllKeysLRU
	AllKeysLFU
	AllKeysRandom
	VolatileLRU
	VolatileLFU
	VolatileRandom
	VolatileTTL
)

func ParsePolicy(s string) Policy {
	switch s {
	case "allkeys-lru":
		return AllKeysLRU
	case "allkeys-lfu":
		return AllKeysLFU
	case "allkeys-random":
		return AllKeysRandom
	case "volatile-lru":
		return VolatileLRU
	case "volatile-lfu":
		return VolatileLFU
	case "volatile-random":
		return VolatileRandom
	case "volatile-ttl":
		return VolatileTTL
	default:
		return NoEviction
	}
}

// SaveRule is one "seconds changes" pair from the `save` config
// directive: a snapshot fires once at least Changes writes have
// accumulated and at least Seconds have elapsed since the last save.
type SaveRule struct {
	Seconds int
	Changes int
}

// Config bundles every tunable maintenance.Manager reads at
// construction; all durations are time.Duration values.
type Config struct {
	ExpireSweepInterval time.Duration // default 100ms if zero
	MaxMemoryBytes      int64         // 0 = no cap
	MaxMemoryPolicy     Policy
	MaxMemorySamples    int // default 5 if zero
	EvictionInterval    time.Duration // default 100ms if zero

	SaveRules    []SaveRule
	SnapshotPath string // empty disables the periodic trigger

	Databases []*store.Keyspace
	Notifier  *notify.Notifier
	// Metrics, if non-nil, mirrors expired/evicted counts onto the
	// admin HTTP surface's Prometheus registry.
	Metrics *observability.Metrics
}

// Manager owns the gocron scheduler backing every background job and
// the dirty-write counters the snapshot trigger consumes.
type Manager struct {
	cfg Config
	sch gocron.Scheduler

	dirtySinceLastSave atomic.Int64
	lastSaveUnix       atomic.Int64

	evictedTotal  atomic.Int64
	expiredTotal  atomic.Int64
}

func NewManager(cfg Config) (*Manager, error) {
	sch, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, sch: sch}
	m.lastSaveUnix.Store(time.Now().Unix())
	return m, nil
}

// MarkDirty records n writes against the save-point change counter;
// the connection supervisor calls this once per mutating command
// Dispatch reports (spec.md §4.14's save-point trigger).
func (m *Manager) MarkDirty(n int64) {
	m.dirtySinceLastSave.Add(n)
}

func (m *Manager) EvictedTotal() int64 { return m.evictedTotal.Load() }
func (m *Manager) ExpiredTotal() int64 { return m.expiredTotal.Load() }

// Dirty and LastSaveUnix expose the save-point counters INFO's
// Persistence section reports (spec.md §4.16's rdb_changes_since_last_save
// and rdb_last_save_time).
func (m *Manager) Dirty() int64        { return m.dirtySinceLastSave.Load() }
func (m *Manager) LastSaveUnix() int64 { return m.lastSaveUnix.Load() }

// Start registers every configured background job and starts the
// scheduler. Jobs that don't apply to this configuration (no
// maxmemory cap, no save rules) are simply not registered.
func (m *Manager) Start() {
	m.registerExpireSweeper()
	if m.cfg.MaxMemoryBytes > 0 && m.cfg.MaxMemoryPolicy != NoEviction {
		m.registerEvictionLoop()
	}
	if m.cfg.SnapshotPath != "" && len(m.cfg.SaveRules) > 0 {
		m.registerSnapshotTrigger()
	}
	m.sch.Start()
}

func (m *Manager) Shutdown() error {
	return m.sch.Shutdown()
}

func (m *Manager) sweepInterval() time.Duration {
	if m.cfg.ExpireSweepInterval > 0 {
		return m.cfg.ExpireSweepInterval
	}
	return 100 * time.Millisecond
}

func (m *Manager) evictionInterval() time.Duration {
	if m.cfg.EvictionInterval > 0 {
		return m.cfg.EvictionInterval
	}
	return 100 * time.Millisecond
}

func (m *Manager) samples() int {
	if m.cfg.MaxMemorySamples > 0 {
		return m.cfg.MaxMemorySamples
	}
	return 5
}

func (m *Manager) registerExpireSweeper() {
	corelog.Infof("maintenance: registering expiration sweeper with %s interval", m.sweepInterval())
	_, err := m.sch.NewJob(
		gocron.DurationJob(m.sweepInterval()),
		gocron.NewTask(func() { m.sweepExpired(time.Now().UnixMilli()) }),
	)
	if err != nil {
		corelog.Errorf("maintenance: could not register expiration sweeper: %v", err)
	}
}

// sweepExpired reaps every deadline-passed entry across every database
// and fires the keyspace-notification expired event for each (spec.md
// §4.2: "reaped by either the background sweeper or lazy check on
// access").
func (m *Manager) sweepExpired(nowMs int64) {
	for i, ks := range m.cfg.Databases {
		dbIndex := i
		ks.ForEachExpired(nowMs, func(key string) {
			m.expiredTotal.Add(1)
			if m.cfg.Metrics != nil {
				m.cfg.Metrics.IncExpiredKey()
			}
			if m.cfg.Notifier != nil {
				m.cfg.Notifier.Notify(notify.ClassExpired, dbIndex, "expired", []byte(key))
			}
		})
	}
}
