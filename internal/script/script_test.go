package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadIsIdempotentAndEvalShaRoundTrips(t *testing.T) {
	rt := NewRuntime()
	digest, err := rt.Load(`KEYS[1] + ARGV[1]`)
	require.NoError(t, err)
	require.Len(t, digest, 40)
	require.True(t, rt.Exists(digest))

	digest2, err := rt.Load(`KEYS[1] + ARGV[1]`)
	require.NoError(t, err)
	require.Equal(t, digest, digest2)
}

func TestEvalShaUnknownDigestFails(t *testing.T) {
	rt := NewRuntime()
	_, err := rt.EvalSHA("deadbeef", nil, nil, nil)
	require.ErrorIs(t, err, ErrNoScript)
}

func TestEvalBodyCallsDispatcherAndMarshalsBulk(t *testing.T) {
	rt := NewRuntime()
	var seenArgv []string
	dispatcher := func(argv []string) Value {
		seenArgv = argv
		return BulkValue("PONG")
	}

	_, v, err := rt.EvalBody(`call("PING", KEYS[1])`, []string{"mykey"}, nil, dispatcher)
	require.NoError(t, err)
	require.Equal(t, []string{"PING", "mykey"}, seenArgv)
	require.NotNil(t, v.Bulk)
	require.Equal(t, "PONG", *v.Bulk)
}

func TestEvalBodyCallRaisesOnDispatcherError(t *testing.T) {
	rt := NewRuntime()
	dispatcher := func(argv []string) Value {
		return ErrValue("ERR boom")
	}

	_, _, err := rt.EvalBody(`call("BADCMD")`, nil, nil, dispatcher)
	require.Error(t, err)
}

func TestEvalBodyPcallReturnsErrorAsData(t *testing.T) {
	rt := NewRuntime()
	dispatcher := func(argv []string) Value {
		return ErrValue("ERR boom")
	}

	_, v, err := rt.EvalBody(`pcall("BADCMD")`, nil, nil, dispatcher)
	require.NoError(t, err)
	require.NotNil(t, v.Err)
	require.Equal(t, "ERR boom", *v.Err)
}

func TestFlushClearsCache(t *testing.T) {
	rt := NewRuntime()
	digest, err := rt.Load(`1 + 1`)
	require.NoError(t, err)
	rt.Flush()
	require.False(t, rt.Exists(digest))
}

func TestValueMarshalRoundTrip(t *testing.T) {
	arr := ArrayValue([]Value{IntValue(1), BulkValue("x"), StatusValue("OK"), NullValue()})
	env := toScriptEnv(arr)
	back := fromScriptEnv(env)
	require.Len(t, back.Array, 4)
	require.Equal(t, int64(1), *back.Array[0].Int)
	require.Equal(t, "x", *back.Array[1].Bulk)
	require.Equal(t, "OK", *back.Array[2].Status)
	require.True(t, back.Array[3].IsNull())
}
