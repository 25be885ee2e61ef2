package radix

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func id(ms, seq uint64) []byte {
	b := make([]byte, 16)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(ms >> (8 * i))
		b[15-i] = byte(seq >> (8 * i))
	}
	return b
}

func TestInsertGetRemove(t *testing.T) {
	tr := New()
	tr.Insert(id(100, 0), "a")
	tr.Insert(id(100, 1), "b")
	tr.Insert(id(200, 0), "c")
	require.Equal(t, 3, tr.Len())

	v, ok := tr.Get(id(100, 1))
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok = tr.Get(id(999, 0))
	require.False(t, ok)

	v, ok = tr.Remove(id(100, 0))
	require.True(t, ok)
	require.Equal(t, "a", v)
	require.Equal(t, 2, tr.Len())
}

func TestRangeAscendingAndDescending(t *testing.T) {
	tr := New()
	tr.Insert(id(100, 0), "a")
	tr.Insert(id(100, 1), "b")
	tr.Insert(id(100, 2), "c")
	tr.Insert(id(200, 0), "d")

	asc := tr.Range(id(0, 0), id(1<<62, 0))
	require.Len(t, asc, 4)
	require.Equal(t, []string{"a", "b", "c", "d"}, valuesOf(asc))

	desc := tr.RevRange(id(0, 0), id(1<<62, 0))
	require.Equal(t, []string{"d", "c", "b", "a"}, valuesOf(desc))
}

func TestRangeBounded(t *testing.T) {
	tr := New()
	tr.Insert(id(100, 0), "a")
	tr.Insert(id(100, 1), "b")
	tr.Insert(id(200, 0), "c")

	got := tr.Range(id(100, 1), id(200, 0))
	require.Equal(t, []string{"b", "c"}, valuesOf(got))
}

func valuesOf(pairs []Pair) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Value.(string)
	}
	return out
}
