package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnqueueAndReset(t *testing.T) {
	tr := New()
	tr.Begin()
	tr.Enqueue([][]byte{[]byte("INCR"), []byte("x")})
	tr.Enqueue([][]byte{[]byte("GET"), []byte("x")})
	require.True(t, tr.InMulti)
	require.Len(t, tr.Queue, 2)

	tr.Reset()
	require.False(t, tr.InMulti)
	require.Empty(t, tr.Queue)
	require.False(t, tr.Dirty)
}

func TestWatchTouchMarksDirty(t *testing.T) {
	reg := NewWatchRegistry()
	tr := New()
	reg.Watch(WatchKey{DB: 0, Key: "x"}, 1, tr)

	require.False(t, tr.Dirty)
	reg.Touch(0, "x")
	require.True(t, tr.Dirty)
}

func TestTouchOnUnwatchedKeyDoesNothing(t *testing.T) {
	reg := NewWatchRegistry()
	tr := New()
	reg.Watch(WatchKey{DB: 0, Key: "x"}, 1, tr)

	reg.Touch(0, "y")
	require.False(t, tr.Dirty)
}

func TestClearWatchesRemovesFromRegistry(t *testing.T) {
	reg := NewWatchRegistry()
	tr := New()
	reg.Watch(WatchKey{DB: 0, Key: "x"}, 1, tr)
	tr.ClearWatches(reg, 1)

	reg.Touch(0, "x")
	require.False(t, tr.Dirty)
}

func TestMultipleConnectionsWatchingSameKey(t *testing.T) {
	reg := NewWatchRegistry()
	a := New()
	b := New()
	reg.Watch(WatchKey{DB: 0, Key: "x"}, 1, a)
	reg.Watch(WatchKey{DB: 0, Key: "x"}, 2, b)

	reg.Touch(0, "x")
	require.True(t, a.Dirty)
	require.True(t, b.Dirty)
}

func TestUnwatchOneConnectionLeavesOtherWatching(t *testing.T) {
	reg := NewWatchRegistry()
	a := New()
	b := New()
	reg.Watch(WatchKey{DB: 0, Key: "x"}, 1, a)
	reg.Watch(WatchKey{DB: 0, Key: "x"}, 2, b)

	a.ClearWatches(reg, 1)
	reg.Touch(0, "x")
	require.False(t, a.Dirty)
	require.True(t, b.Dirty)
}
