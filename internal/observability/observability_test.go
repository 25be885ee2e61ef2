package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestSlowlogRecordsOverThreshold(t *testing.T) {
	sl := NewSlowlog(1000, 128) // 1ms threshold
	sl.Record([][]byte{[]byte("GET"), []byte("k")}, 500*time.Microsecond)
	require.Equal(t, 0, sl.Len())

	sl.Record([][]byte{[]byte("GET"), []byte("k")}, 2*time.Millisecond)
	require.Equal(t, 1, sl.Len())

	entries := sl.Get(-1)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), entries[0].ID)
}

func TestSlowlogTrimsToMaxLen(t *testing.T) {
	sl := NewSlowlog(0, 2)
	for i := 0; i < 5; i++ {
		sl.Record([][]byte{[]byte("SET")}, time.Millisecond)
	}
	require.Equal(t, 2, sl.Len())
}

func TestSlowlogReset(t *testing.T) {
	sl := NewSlowlog(0, 10)
	sl.Record([][]byte{[]byte("SET")}, time.Millisecond)
	sl.Reset()
	require.Equal(t, 0, sl.Len())
}

func TestMonitorMirrorsToOtherListeners(t *testing.T) {
	m := NewMonitor()
	ch1 := m.Attach(1)
	ch2 := m.Attach(2)

	m.Mirror(1, 0, "127.0.0.1:1", [][]byte{[]byte("SET"), []byte("k"), []byte("v")})

	select {
	case <-ch1:
		t.Fatal("listener 1 should not see its own mirrored command")
	default:
	}

	select {
	case line := <-ch2:
		require.Contains(t, line, "SET")
	default:
		t.Fatal("expected listener 2 to receive the mirrored line")
	}
}

func TestRenderInfoSections(t *testing.T) {
	in := InfoInput{
		Version:          "corekv-0.1",
		ConnectedClients: 3,
		Databases:        []DBStat{{Index: 0, Keys: 5, Expires: 1}},
	}
	all := RenderInfo("all", in)
	require.Contains(t, all, "# Server")
	require.Contains(t, all, "# Clients")
	require.Contains(t, all, "db0:keys=5,expires=1")

	only := RenderInfo("clients", in)
	require.Contains(t, only, "connected_clients:3")
	require.NotContains(t, only, "# Server")
}

func TestEncodeLineProtocolRendersFields(t *testing.T) {
	s := Snapshot{CommandsTotal: 10, KeyspaceHits: 7, KeyspaceMisses: 3}
	line, err := EncodeLineProtocol("corekv", s, time.Unix(1000, 0))
	require.NoError(t, err)
	require.Contains(t, string(line), "corekv ")
	require.Contains(t, string(line), "commands_total=10i")
	require.Contains(t, string(line), "keyspace_hits_total=7i")
}

func TestMetricsSnapshotMirrorsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveCommand("get", 0.001)
	m.IncKeyspaceHit()
	m.IncKeyspaceMiss()
	m.IncExpiredKey()
	m.IncEvictedKey()
	m.IncConnected()

	snap := m.Snapshot()
	require.Equal(t, int64(1), snap.CommandsTotal)
	require.Equal(t, int64(1), snap.KeyspaceHits)
	require.Equal(t, int64(1), snap.KeyspaceMisses)
	require.Equal(t, int64(1), snap.ExpiredKeysTotal)
	require.Equal(t, int64(1), snap.EvictedKeysTotal)
	require.Equal(t, int64(1), snap.ConnectedClients)

	m.DecConnected()
	require.Equal(t, int64(0), m.Snapshot().ConnectedClients)
}
