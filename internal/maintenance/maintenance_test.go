package maintenance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/pubsub"
	"github.com/corekv/corekv/internal/store"
)

func newTestKeyspace() *store.Keyspace {
	return store.NewKeyspace(0, nil)
}

func TestSweepExpiredFiresNotification(t *testing.T) {
	ks := newTestKeyspace()
	ks.Insert("gone", func() *store.Entry {
		e := store.NewEntry(store.NewString([]byte("v")))
		e.SetExpireAt(1) // already in the past
		return e
	}())
	ks.Insert("keep", store.NewEntry(store.NewString([]byte("v"))))

	n := notify.NewNotifier(pubsub.NewRegistry())
	n.SetFlags(notify.ClassAll | notify.ClassKeyevent)

	m, err := NewManager(Config{Databases: []*store.Keyspace{ks}, Notifier: n})
	require.NoError(t, err)

	m.sweepExpired(time.Now().UnixMilli())

	require.False(t, ks.Contains("gone"))
	require.True(t, ks.Contains("keep"))
	require.Equal(t, int64(1), m.ExpiredTotal())
}

func TestEvictCycleReducesUsageUnderCap(t *testing.T) {
	ks := newTestKeyspace()
	for i := 0; i < 20; i++ {
		ks.Insert(string(rune('a'+i)), store.NewEntry(store.NewString(make([]byte, 200))))
	}

	m, err := NewManager(Config{
		Databases:        []*store.Keyspace{ks},
		MaxMemoryBytes:   1000,
		MaxMemoryPolicy:  AllKeysRandom,
		MaxMemorySamples: 5,
	})
	require.NoError(t, err)

	m.evictCycle()

	require.LessOrEqual(t, m.usedBytes(), int64(1000))
	require.Greater(t, m.EvictedTotal(), int64(0))
}

func TestSaveSnapshotRoundTrip(t *testing.T) {
	ks := newTestKeyspace()
	ks.Insert("k1", store.NewEntry(store.NewString([]byte("v1"))))
	ks.Insert("k2", store.NewEntry(store.NewString([]byte("v2"))))

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.corekv")

	m, err := NewManager(Config{Databases: []*store.Keyspace{ks}})
	require.NoError(t, err)

	require.NoError(t, m.SaveSnapshot(path, []*store.Keyspace{ks}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestMaybeSaveRespectsRules(t *testing.T) {
	ks := newTestKeyspace()
	ks.Insert("k", store.NewEntry(store.NewString([]byte("v"))))

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.corekv")

	m, err := NewManager(Config{
		Databases:    []*store.Keyspace{ks},
		SnapshotPath: path,
		SaveRules:    []SaveRule{{Seconds: 0, Changes: 1}},
	})
	require.NoError(t, err)

	m.MarkDirty(1)
	m.maybeSave()

	_, err = os.Stat(path)
	require.NoError(t, err)
}
