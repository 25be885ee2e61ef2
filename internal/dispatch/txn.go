package dispatch

import (
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/txn"
)

// dispatchTxn handles MULTI/EXEC/DISCARD/WATCH/UNWATCH/RESET (spec.md
// §4.11). Called only for verbs noMultiVerbs lets through even while a
// transaction is open.
func (s *Server) dispatchTxn(conn *Conn, verb string, argv [][]byte, nested bool) (resp.Frame, bool) {
	switch verb {
	case "multi":
		if conn.Txn.InMulti {
			return resp.Err("ERR MULTI calls can not be nested"), true
		}
		conn.Txn.Begin()
		return resp.Simple("OK"), true

	case "discard":
		if !conn.Txn.InMulti {
			return resp.Err("ERR DISCARD without MULTI"), true
		}
		conn.Txn.Reset()
		conn.Txn.ClearWatches(s.Watchers, conn.ConnID)
		return resp.Simple("OK"), true

	case "watch":
		if conn.Txn.InMulti {
			return resp.Err("ERR WATCH inside MULTI is not allowed"), true
		}
		if len(argv) < 2 {
			return errWrongArgs(verb), true
		}
		for _, k := range argv[1:] {
			s.Watchers.Watch(txn.WatchKey{DB: conn.DBIndex, Key: string(k)}, conn.ConnID, conn.Txn)
		}
		return resp.Simple("OK"), true

	case "unwatch":
		conn.Txn.ClearWatches(s.Watchers, conn.ConnID)
		return resp.Simple("OK"), true

	case "reset":
		conn.Txn.Reset()
		conn.Txn.ClearWatches(s.Watchers, conn.ConnID)
		return resp.Simple("RESET"), true

	case "exec":
		if !conn.Txn.InMulti {
			return errNotInMulti(), true
		}
		if conn.Txn.Dirty {
			conn.Txn.Reset()
			conn.Txn.ClearWatches(s.Watchers, conn.ConnID)
			return resp.NullArray(), true
		}
		queue := conn.Txn.Queue
		conn.Txn.Reset()
		conn.Txn.ClearWatches(s.Watchers, conn.ConnID)

		// Hold this keyspace's gate exclusively for the whole replay so
		// no other connection's command can interleave against it
		// mid-EXEC (spec.md §4.11). The queued commands below run with
		// nested=true and never contend for the gate themselves.
		end := s.Databases[conn.DBIndex].BeginExec()
		defer end()

		replies := make([]resp.Frame, len(queue))
		for i, qc := range queue {
			frame, _ := Dispatch(s, conn, qc.Argv, true)
			replies[i] = frame
		}
		return resp.ArrSlice(replies), true

	default:
		return resp.Frame{}, false
	}
}
