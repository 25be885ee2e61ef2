package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyspaceInsertViewRemove(t *testing.T) {
	ks := NewKeyspace(0, nil)
	ks.Insert("a", NewEntry(NewString([]byte("1"))))

	found := false
	ks.View("a", func(e *Entry, exists bool) {
		found = exists
		require.Equal(t, "1", string(e.Value.Str))
	})
	require.True(t, found)
	require.True(t, ks.Remove("a"))
	require.False(t, ks.Contains("a"))
}

func TestExpiredKeyActsAbsent(t *testing.T) {
	var expiredKeys []string
	ks := NewKeyspace(0, func(_ int, key string) { expiredKeys = append(expiredKeys, key) })
	e := NewEntry(NewString([]byte("v")))
	e.SetExpireAt(nowMillis() - 1000)
	ks.Insert("k", e)

	ks.View("k", func(_ *Entry, exists bool) {
		require.False(t, exists)
	})
	require.False(t, ks.Contains("k"))
	require.Equal(t, []string{"k"}, expiredKeys)
}

func TestForEachExpiredSweeps(t *testing.T) {
	ks := NewKeyspace(0, nil)
	live := NewEntry(NewString([]byte("v")))
	ks.Insert("live", live)

	dead := NewEntry(NewString([]byte("v")))
	dead.SetExpireAt(nowMillis() - 1)
	ks.Insert("dead", dead)

	var swept []string
	ks.ForEachExpired(nowMillis(), func(key string) { swept = append(swept, key) })
	require.Equal(t, []string{"dead"}, swept)
	require.True(t, ks.Contains("live"))
	require.False(t, ks.Contains("dead"))
}

func TestUpdateCreatesAndMutates(t *testing.T) {
	ks := NewKeyspace(0, nil)
	ks.Update("counter", func(e *Entry, exists bool) (*Entry, bool) {
		if !exists {
			return NewEntry(NewString([]byte("1"))), false
		}
		e.Value.Str = []byte("2")
		return e, false
	})
	ks.View("counter", func(e *Entry, exists bool) {
		require.True(t, exists)
		require.Equal(t, "1", string(e.Value.Str))
	})
	ks.Update("counter", func(e *Entry, exists bool) (*Entry, bool) {
		require.True(t, exists)
		e.Value.Str = []byte("2")
		return e, false
	})
	ks.View("counter", func(e *Entry, exists bool) {
		require.Equal(t, "2", string(e.Value.Str))
	})
}

func TestScanVisitsEveryKey(t *testing.T) {
	ks := NewKeyspace(0, nil)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		ks.Insert(k, NewEntry(NewString([]byte("x"))))
	}
	seen := map[string]bool{}
	cursor := uint64(0)
	for {
		res := ks.Scan(cursor, 2, nil)
		for _, k := range res.Keys {
			seen[k] = true
		}
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}
	require.Len(t, seen, 5)
}

func TestZSetSkiplistOrdering(t *testing.T) {
	z := NewZSetStruct()
	z.Add("a", 1)
	z.Add("b", 2)
	z.Add("c", 3)
	z.Add("d", 4)
	z.Add("e", 5)

	require.Equal(t, 4, z.Rank("e"))
	require.Equal(t, 0, z.Rank("a"))

	rng := z.RangeByScore(1, 3, true, false)
	require.Len(t, rng, 2)
	require.Equal(t, "b", rng[0].Member)
	require.Equal(t, "c", rng[1].Member)

	z.Remove("c")
	require.Equal(t, 4, z.Len())
	require.Equal(t, -1, z.Rank("c"))
}

func TestSketchApproximatesCardinality(t *testing.T) {
	blob := NewSketchBlob()
	for i := 0; i < 1000; i++ {
		SketchAdd(blob, []byte(time.Duration(i).String()))
	}
	count := SketchCount(blob)
	require.InEpsilonf(t, 1000, float64(count), 0.1, "estimate %d too far from 1000", count)
}
