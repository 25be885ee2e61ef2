package dispatch

import (
	"strings"

	"github.com/corekv/corekv/internal/resp"
)

// noMultiVerbs are allowed to run even while a connection has MULTI
// open; every other verb gets queued instead of executed (spec.md
// §4.11).
var noMultiVerbs = map[string]bool{
	"multi": true, "exec": true, "discard": true, "watch": true,
	"unwatch": true, "quit": true, "reset": true,
}

// Dispatch is the command dispatcher's single entry point (spec.md
// §4.7): verb lookup by case-insensitive ASCII byte folding, MULTI
// queueing, ACL authorization, and delegation to the per-family
// handler tables. nested is true when this call is scripting's
// call/pcall or a transaction's EXEC re-entering the dispatcher — a
// nested call skips MULTI-queueing (it is already inside EXEC's queue
// replay) and is not itself logged or MONITOR-mirrored by the caller.
//
// Returns the response frame and whether the command mutated the
// keyspace (so the caller knows whether to append it to the command
// log and mirror it to MONITOR).
func Dispatch(srv *Server, conn *Conn, argv [][]byte, nested bool) (resp.Frame, bool) {
	if len(argv) == 0 {
		return errUnknownCommand(""), false
	}
	verb := asciiLower(string(argv[0]))

	if !nested && !conn.Authenticated && verb != "auth" && verb != "hello" && verb != "quit" {
		return errNoAuth(), false
	}

	if !nested && conn.Txn.InMulti && !noMultiVerbs[verb] {
		conn.Txn.Enqueue(argv)
		return resp.Simple("QUEUED"), false
	}

	if !nested && conn.Authenticated {
		if !conn.User.CanExecute(verb) {
			return errNoPerm("run '" + verb + "'"), false
		}
		if keyedVerbs[verb] && len(argv) > 1 && !conn.User.CanAccessKey(argv[1]) {
			return errNoPerm("access one of the keys used as arguments"), false
		}
	}

	switch verb {
	case "ping":
		return cmdPing(argv), false
	case "echo":
		return cmdEcho(argv), false
	case "select":
		return srv.cmdSelect(conn, argv), false
	case "quit":
		return resp.Simple("OK"), false
	case "hello":
		return srv.cmdHello(conn, argv), false
	case "auth":
		return srv.cmdAuth(conn, argv), false
	}

	if frame, ok := srv.dispatchTxn(conn, verb, argv, nested); ok {
		return frame, false
	}
	if frame, ok := srv.dispatchACL(conn, verb, argv); ok {
		return frame, false
	}
	if frame, ok := srv.dispatchPubSub(conn, verb, argv); ok {
		return frame, false
	}
	// A single top-level command takes a shared hold on its keyspace's
	// EXEC gate for its own duration; a nested call (a queued EXEC
	// command replaying, or a script's own Redis call) never takes the
	// gate itself, since it may already be running inside the exclusive
	// hold EXEC took for the whole batch (spec.md §4.11).
	if !nested {
		end := srv.Databases[conn.DBIndex].BeginCommand()
		defer end()
	}

	if frame, ok := srv.dispatchScript(conn, verb, argv, nested); ok {
		return frame, writeVerbs[verb]
	}
	if frame, ok := srv.dispatchData(conn, verb, argv); ok {
		return frame, writeVerbs[verb]
	}
	if frame, ok := srv.dispatchStream(conn, verb, argv); ok {
		return frame, writeVerbs[verb]
	}

	return errUnknownCommand(verb), false
}

// asciiLower folds only ASCII letters, matching RESP verbs which are
// always ASCII (spec.md §4.7 line 133).
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func cmdPing(argv [][]byte) resp.Frame {
	switch len(argv) {
	case 1:
		return resp.Simple("PONG")
	case 2:
		return resp.Bulk(argv[1])
	default:
		return errWrongArgs("ping")
	}
}

func cmdEcho(argv [][]byte) resp.Frame {
	if len(argv) != 2 {
		return errWrongArgs("echo")
	}
	return resp.Bulk(argv[1])
}

func (s *Server) cmdSelect(conn *Conn, argv [][]byte) resp.Frame {
	if len(argv) != 2 {
		return errWrongArgs("select")
	}
	n, ok := parseIntArg(argv[1])
	if !ok {
		return errNotInt()
	}
	if n < 0 || n >= len(s.Databases) {
		return resp.Err("ERR DB index is out of range")
	}
	conn.DBIndex = n
	return resp.Simple("OK")
}

// cmdHello is a minimal RESP2-only stand-in: real HELLO negotiates
// protocol version and can authenticate in one round trip, but this
// store speaks RESP2 exclusively.
func (s *Server) cmdHello(conn *Conn, argv [][]byte) resp.Frame {
	if len(argv) >= 2 {
		ver := strings.TrimSpace(string(argv[1]))
		if ver != "2" {
			return resp.Err("NOPROTO unsupported protocol version")
		}
	}
	return resp.Arr(
		resp.BulkStr("server"), resp.BulkStr("corekv"),
		resp.BulkStr("proto"), resp.Int(2),
	)
}

func (s *Server) cmdAuth(conn *Conn, argv [][]byte) resp.Frame {
	var username, password string
	switch len(argv) {
	case 2:
		username, password = "default", string(argv[1])
	case 3:
		username, password = string(argv[1]), string(argv[2])
	default:
		return errWrongArgs("auth")
	}
	u, ok := s.ACL.Authenticate(username, password)
	if !ok {
		return errWrongPass()
	}
	conn.User = u
	conn.Authenticated = true
	return resp.Simple("OK")
}
