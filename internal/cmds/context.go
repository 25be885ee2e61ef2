// Package cmds implements the data-type operation handlers named in
// spec.md §4.13: typed access/mutation/range primitives over the
// string, list, hash, set, sorted-set, bitmap, and generic-key
// surfaces, plus SORT and KEYS/SCAN. Handlers are grounded file-by-file
// on original_source/src/cmd/{string,list,hash,set,zset,bitmap,sort}.rs,
// reimplemented against internal/store's Go value model and RESP frames
// instead of the Rust source's bytes::Bytes/Resp enum.
package cmds

import (
	"github.com/corekv/corekv/internal/blocking"
	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
	"github.com/corekv/corekv/internal/txn"
)

// Context is the per-database handle every command handler operates
// against — the keyspace to read/write, the notifier for keyspace
// events, the blocking coordinator producer commands must wake, and the
// watch registry writes must flip dirty (spec.md §4.10/§4.9/§4.11).
type Context struct {
	DBIndex  int
	Store    *store.Keyspace
	Notify   *notify.Notifier
	Block    *blocking.Coordinator
	Watchers *txn.WatchRegistry
}

// touch notifies both the keyspace-event subsystem and any WATCHers of
// key after a write. Every mutating handler calls this exactly once per
// key it modifies.
func (c *Context) touch(class notify.Class, event string, key string) {
	c.Notify.Notify(class, c.DBIndex, event, []byte(key))
	c.Watchers.Touch(c.DBIndex, key)
}

func errWrongType() resp.Frame { return resp.Err(store.ErrWrongType.Error()) }

func errArity(cmd string) resp.Frame {
	return resp.Errf("ERR wrong number of arguments for '%s' command", cmd)
}

func errNotInt() resp.Frame {
	return resp.Err("ERR value is not an integer or out of range")
}

func errNotFloat() resp.Frame {
	return resp.Err("ERR value is not a valid float")
}

func errSyntax() resp.Frame {
	return resp.Err("ERR syntax error")
}
