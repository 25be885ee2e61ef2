package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/resp"
)

func argv(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func TestSetGetRoundTripThroughDispatch(t *testing.T) {
	srv := NewServer(1)
	conn := NewConn(srv.NextConnID())

	f, mutated := Dispatch(srv, conn, argv("SET", "k", "v"), false)
	require.Equal(t, resp.SimpleString, f.Kind)
	require.True(t, mutated)

	g, mutated := Dispatch(srv, conn, argv("GET", "k"), false)
	require.Equal(t, resp.BulkString, g.Kind)
	require.Equal(t, []byte("v"), g.Bulk)
	require.False(t, mutated)
}

func TestUnknownCommand(t *testing.T) {
	srv := NewServer(1)
	conn := NewConn(srv.NextConnID())

	f, _ := Dispatch(srv, conn, argv("FROBNICATE", "x"), false)
	require.Equal(t, resp.Error, f.Kind)
	require.Contains(t, f.Str, "unknown command")
}

func TestWrongArity(t *testing.T) {
	srv := NewServer(1)
	conn := NewConn(srv.NextConnID())

	f, _ := Dispatch(srv, conn, argv("GET"), false)
	require.Equal(t, resp.Error, f.Kind)
	require.Contains(t, f.Str, "wrong number of arguments")
}

func TestMultiExecHappyPath(t *testing.T) {
	srv := NewServer(1)
	conn := NewConn(srv.NextConnID())

	f, _ := Dispatch(srv, conn, argv("MULTI"), false)
	require.Equal(t, "OK", f.Str)

	q, _ := Dispatch(srv, conn, argv("SET", "k", "v"), false)
	require.Equal(t, "QUEUED", q.Str)

	q2, _ := Dispatch(srv, conn, argv("GET", "k"), false)
	require.Equal(t, "QUEUED", q2.Str)

	exec, _ := Dispatch(srv, conn, argv("EXEC"), false)
	require.Equal(t, resp.Array, exec.Kind)
	require.Len(t, exec.Items, 2)
	require.Equal(t, "OK", exec.Items[0].Str)
	require.Equal(t, []byte("v"), exec.Items[1].Bulk)
	require.False(t, conn.Txn.InMulti)
}

func TestExecWithoutMulti(t *testing.T) {
	srv := NewServer(1)
	conn := NewConn(srv.NextConnID())

	f, _ := Dispatch(srv, conn, argv("EXEC"), false)
	require.Equal(t, resp.Error, f.Kind)
	require.Contains(t, f.Str, "EXEC without MULTI")
}

// TestWatchAbort walks through spec.md's watch-abort scenario: connection
// A watches x, opens MULTI, queues INCR x; connection B sets x directly;
// connection A's EXEC observes the dirty flag and aborts with a null array.
func TestWatchAbort(t *testing.T) {
	srv := NewServer(1)
	connA := NewConn(srv.NextConnID())
	connB := NewConn(srv.NextConnID())

	w, _ := Dispatch(srv, connA, argv("WATCH", "x"), false)
	require.Equal(t, "OK", w.Str)

	m, _ := Dispatch(srv, connA, argv("MULTI"), false)
	require.Equal(t, "OK", m.Str)

	q, _ := Dispatch(srv, connA, argv("INCR", "x"), false)
	require.Equal(t, "QUEUED", q.Str)

	s, _ := Dispatch(srv, connB, argv("SET", "x", "42"), false)
	require.Equal(t, "OK", s.Str)

	exec, _ := Dispatch(srv, connA, argv("EXEC"), false)
	require.True(t, exec.Null)
	require.Equal(t, resp.Array, exec.Kind)
}

func TestEvalRoundTrip(t *testing.T) {
	srv := NewServer(1)
	conn := NewConn(srv.NextConnID())

	f, _ := Dispatch(srv, conn, argv("EVAL", "1 + 1", "0"), false)
	require.Equal(t, resp.Integer, f.Kind)
	require.Equal(t, int64(2), f.Int)
}

func TestEvalCallIntoStore(t *testing.T) {
	srv := NewServer(1)
	conn := NewConn(srv.NextConnID())

	f, _ := Dispatch(srv, conn, argv("EVAL", `call("SET", KEYS[1], ARGV[1])`, "1", "k", "v"), false)
	require.Equal(t, resp.SimpleString, f.Kind)
	require.Equal(t, "OK", f.Str)

	g, _ := Dispatch(srv, conn, argv("GET", "k"), false)
	require.Equal(t, []byte("v"), g.Bulk)
}

func TestPingEcho(t *testing.T) {
	srv := NewServer(1)
	conn := NewConn(srv.NextConnID())

	p, _ := Dispatch(srv, conn, argv("PING"), false)
	require.Equal(t, "PONG", p.Str)

	e, _ := Dispatch(srv, conn, argv("ECHO", "hi"), false)
	require.Equal(t, []byte("hi"), e.Bulk)
}

func TestSubscribePublishDeliversMessage(t *testing.T) {
	srv := NewServer(1)
	sub := NewConn(srv.NextConnID())
	pub := NewConn(srv.NextConnID())

	s, _ := Dispatch(srv, sub, argv("SUBSCRIBE", "ch"), false)
	require.Equal(t, resp.Array, s.Kind)
	require.Equal(t, "subscribe", string(s.Items[0].Bulk))

	n, _ := Dispatch(srv, pub, argv("PUBLISH", "ch", "hello"), false)
	require.Equal(t, int64(1), n.Int)

	select {
	case msg := <-sub.Outbox():
		require.Equal(t, "message", string(msg.Items[0].Bulk))
		require.Equal(t, "ch", string(msg.Items[1].Bulk))
		require.Equal(t, "hello", string(msg.Items[2].Bulk))
	default:
		t.Fatal("expected a delivered message")
	}
}

func TestAuthWrongPassword(t *testing.T) {
	srv := NewServer(1)
	conn := NewConn(srv.NextConnID())

	u, ok := srv.ACL.GetUser("default")
	require.True(t, ok)
	u.ParseRules([]string{">secret"})
	srv.ACL.SetUser(u)
	conn.Authenticated = false

	f, _ := Dispatch(srv, conn, argv("AUTH", "wrong"), false)
	require.Equal(t, resp.Error, f.Kind)
	require.Contains(t, f.Str, "WRONGPASS")

	ok2, _ := Dispatch(srv, conn, argv("AUTH", "secret"), false)
	require.Equal(t, "OK", ok2.Str)
	require.True(t, conn.Authenticated)
}
