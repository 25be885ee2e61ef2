package resp

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, f Frame) Frame {
	t.Helper()
	buf := Encode(nil, f)
	d := NewDecoder(bufio.NewReader(bytes.NewReader(buf)))
	got, err := d.ReadFrame()
	require.NoError(t, err)
	return got
}

func TestRoundTripSimple(t *testing.T) {
	got := roundTrip(t, Simple("OK"))
	require.Equal(t, SimpleString, got.Kind)
	require.Equal(t, "OK", got.Str)
}

func TestRoundTripError(t *testing.T) {
	got := roundTrip(t, Err("ERR boom"))
	require.Equal(t, Error, got.Kind)
	require.Equal(t, "ERR boom", got.Str)
}

func TestRoundTripInteger(t *testing.T) {
	got := roundTrip(t, Int(-42))
	require.Equal(t, Integer, got.Kind)
	require.EqualValues(t, -42, got.Int)
}

func TestRoundTripBulk(t *testing.T) {
	got := roundTrip(t, BulkStr("hello world"))
	b, ok := AsBytes(got)
	require.True(t, ok)
	require.Equal(t, "hello world", string(b))
}

func TestRoundTripNullBulk(t *testing.T) {
	got := roundTrip(t, Null())
	require.Equal(t, BulkString, got.Kind)
	require.True(t, got.Null)
}

func TestRoundTripArray(t *testing.T) {
	in := Arr(BulkStr("a"), Int(1), Simple("OK"), Null())
	got := roundTrip(t, in)
	require.Equal(t, Array, got.Kind)
	require.Len(t, got.Items, 4)
	require.Equal(t, "a", string(got.Items[0].Bulk))
	require.EqualValues(t, 1, got.Items[1].Int)
	require.Equal(t, "OK", got.Items[2].Str)
	require.True(t, got.Items[3].Null)
}

func TestRoundTripNullArray(t *testing.T) {
	got := roundTrip(t, NullArray())
	require.Equal(t, Array, got.Kind)
	require.True(t, got.Null)
}

func TestNestedArray(t *testing.T) {
	in := Arr(Arr(Int(1), Int(2)), Arr(BulkStr("x")))
	got := roundTrip(t, in)
	require.Len(t, got.Items, 2)
	require.Len(t, got.Items[0].Items, 2)
	require.Equal(t, "x", string(got.Items[1].Items[0].Bulk))
}

func TestNegativeLengthRejected(t *testing.T) {
	d := NewDecoder(bufio.NewReader(bytes.NewReader([]byte("$-2\r\n"))))
	_, err := d.ReadFrame()
	require.ErrorIs(t, err, ErrNegativeLength)
}

func TestParseNeedsMore(t *testing.T) {
	_, _, err := Parse([]byte("$5\r\nhel"))
	require.ErrorIs(t, err, ErrNeedMore)
}

func TestParseConsumesExactly(t *testing.T) {
	buf := Encode(nil, Arr(BulkStr("PING")))
	extra := append(append([]byte{}, buf...), []byte("garbage")...)
	f, n, err := Parse(extra)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, "PING", string(f.Items[0].Bulk))
}
