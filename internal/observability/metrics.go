package observability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide Prometheus exposition surface served by
// the admin HTTP surface's /metrics route (spec.md §4.17). Grounded on
// the pack's promauto.NewCounter/Gauge idiom
// (etalazz-vsa/internal/ratelimiter/telemetry/churn/prom_counters.go).
//
// A handful of counters are additionally mirrored into plain atomics
// (commandsTotal/keyspaceHits/keyspaceMisses/expiredKeys/evictedKeys/
// connected) so Snapshot can render
// them as line-protocol for the /metrics/influx route without reaching
// into prometheus's internal dto representation.
type Metrics struct {
	CommandsTotal    *prometheus.CounterVec
	ConnectedClients prometheus.Gauge
	ExpiredKeysTotal prometheus.Counter
	EvictedKeysTotal prometheus.Counter
	KeyspaceHits     prometheus.Counter
	KeyspaceMisses   prometheus.Counter
	CommandDuration  prometheus.Histogram

	commandsTotal  atomic.Int64
	keyspaceHits   atomic.Int64
	keyspaceMisses atomic.Int64
	expiredKeys    atomic.Int64
	evictedKeys    atomic.Int64
	connected      atomic.Int64
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corekv_commands_processed_total",
			Help: "Total commands dispatched, labeled by verb.",
		}, []string{"verb"}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "corekv_connected_clients",
			Help: "Currently open client connections.",
		}),
		ExpiredKeysTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "corekv_expired_keys_total",
			Help: "Keys reaped by the background expiration sweeper.",
		}),
		EvictedKeysTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "corekv_evicted_keys_total",
			Help: "Keys removed by maxmemory eviction.",
		}),
		KeyspaceHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "corekv_keyspace_hits_total",
			Help: "Successful key lookups.",
		}),
		KeyspaceMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "corekv_keyspace_misses_total",
			Help: "Key lookups that found nothing.",
		}),
		CommandDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "corekv_command_duration_seconds",
			Help:    "Per-command dispatch latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveCommand(verb string, seconds float64) {
	m.CommandsTotal.WithLabelValues(verb).Inc()
	m.CommandDuration.Observe(seconds)
	m.commandsTotal.Add(1)
}

// IncKeyspaceHit and IncKeyspaceMiss advance both the Prometheus
// counter and its atomic mirror; internal/server calls whichever one
// applies instead of touching KeyspaceHits/KeyspaceMisses directly.
func (m *Metrics) IncKeyspaceHit() {
	m.KeyspaceHits.Inc()
	m.keyspaceHits.Add(1)
}

func (m *Metrics) IncKeyspaceMiss() {
	m.KeyspaceMisses.Inc()
	m.keyspaceMisses.Add(1)
}

func (m *Metrics) IncExpiredKey() {
	m.ExpiredKeysTotal.Inc()
	m.expiredKeys.Add(1)
}

func (m *Metrics) IncEvictedKey() {
	m.EvictedKeysTotal.Inc()
	m.evictedKeys.Add(1)
}

func (m *Metrics) IncConnected() {
	m.ConnectedClients.Inc()
	m.connected.Add(1)
}

func (m *Metrics) DecConnected() {
	m.ConnectedClients.Dec()
	m.connected.Add(-1)
}

// Snapshot is a plain-value copy of the atomic-mirrored counters,
// rendered as line-protocol by EncodeLineProtocol for the
// /metrics/influx route (the notify-nats-url sibling expansion: an
// alternate scrape format alongside Prometheus rather than a
// replacement for it).
type Snapshot struct {
	CommandsTotal    int64
	ConnectedClients int64
	ExpiredKeysTotal int64
	EvictedKeysTotal int64
	KeyspaceHits     int64
	KeyspaceMisses   int64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		CommandsTotal:    m.commandsTotal.Load(),
		ConnectedClients: m.connected.Load(),
		ExpiredKeysTotal: m.expiredKeys.Load(),
		EvictedKeysTotal: m.evictedKeys.Load(),
		KeyspaceHits:     m.keyspaceHits.Load(),
		KeyspaceMisses:   m.keyspaceMisses.Load(),
	}
}
