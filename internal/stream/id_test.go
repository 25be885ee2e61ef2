package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIDSentinels(t *testing.T) {
	lo, err := ParseID("-", 0)
	require.NoError(t, err)
	require.Equal(t, MinID, lo)

	hi, err := ParseID("+", ^uint64(0))
	require.NoError(t, err)
	require.Equal(t, MaxID, hi)
}

func TestParseIDDefaultsSeq(t *testing.T) {
	id, err := ParseID("5", 0)
	require.NoError(t, err)
	require.Equal(t, ID{Ms: 5, Seq: 0}, id)

	id, err = ParseID("5", ^uint64(0))
	require.NoError(t, err)
	require.Equal(t, ID{Ms: 5, Seq: ^uint64(0)}, id)

	id, err = ParseID("5-3", 0)
	require.NoError(t, err)
	require.Equal(t, ID{Ms: 5, Seq: 3}, id)
}

func TestParseIDRejectsGarbage(t *testing.T) {
	_, err := ParseID("not-a-number", 0)
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestNextAutoAdvancesWithinSameMs(t *testing.T) {
	next, err := NextAuto(100, ID{Ms: 100, Seq: 5})
	require.NoError(t, err)
	require.Equal(t, ID{Ms: 100, Seq: 6}, next)
}

func TestNextAutoResetsSeqOnNewMs(t *testing.T) {
	next, err := NextAuto(200, ID{Ms: 100, Seq: 5})
	require.NoError(t, err)
	require.Equal(t, ID{Ms: 200, Seq: 0}, next)
}

func TestNextAutoExhausted(t *testing.T) {
	_, err := NextAuto(1, MaxID)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestIDBytesRoundTrip(t *testing.T) {
	id := ID{Ms: 123456789, Seq: 42}
	require.Equal(t, id, IDFromBytes(id.Bytes()))
}

func TestIDOrdering(t *testing.T) {
	require.True(t, ID{Ms: 1, Seq: 9}.Less(ID{Ms: 2, Seq: 0}))
	require.True(t, ID{Ms: 5, Seq: 1}.Less(ID{Ms: 5, Seq: 2}))
	require.False(t, ID{Ms: 5, Seq: 2}.Less(ID{Ms: 5, Seq: 2}))
}
