package cmds

import (
	"strconv"
	"time"

	"github.com/corekv/corekv/internal/glob"
	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
)

// Del implements DEL over N keys, returning the count actually removed.
func (c *Context) Del(keys []string) resp.Frame {
	var n int
	for _, k := range keys {
		if c.Store.Remove(k) {
			n++
			c.touch(notify.ClassGeneric, "del", k)
		}
	}
	return resp.Int(int64(n))
}

// Exists implements EXISTS over N keys (repeats count if the same key
// is named more than once, matching upstream Redis semantics).
func (c *Context) Exists(keys []string) resp.Frame {
	var n int
	for _, k := range keys {
		if c.Store.Contains(k) {
			n++
		}
	}
	return resp.Int(int64(n))
}

// Type implements TYPE.
func (c *Context) Type(key string) resp.Frame {
	var kind store.Kind
	found := false
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if exists {
			found = true
			kind = e.Value.Kind
		}
	})
	if !found {
		return resp.Simple("none")
	}
	return resp.Simple(kind.String())
}

// Expire implements EXPIRE/PEXPIRE (atMs is the absolute deadline in Unix
// milliseconds, already computed by the caller).
func (c *Context) Expire(key string, atMs int64) resp.Frame {
	var set bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if !exists {
			return e, false
		}
		e.SetExpireAt(atMs)
		set = true
		return e, false
	})
	if !set {
		return resp.Int(0)
	}
	c.touch(notify.ClassGeneric, "expire", key)
	return resp.Int(1)
}

// Persist implements PERSIST.
func (c *Context) Persist(key string) resp.Frame {
	var cleared bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if !exists {
			return e, false
		}
		if _, has := e.ExpireAt(); has {
			e.ClearExpire()
			cleared = true
		}
		return e, false
	})
	if cleared {
		c.touch(notify.ClassGeneric, "persist", key)
		return resp.Int(1)
	}
	return resp.Int(0)
}

// TTL implements TTL (seconds) / PTTL (ms) depending on asMillis:
// -2 if the key is absent, -1 if it has no expiry.
func (c *Context) TTL(key string, asMillis bool) resp.Frame {
	var out int64 = -2
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		ms, has := e.ExpireAt()
		if !has {
			out = -1
			return
		}
		remaining := ms - time.Now().UnixMilli()
		if remaining < 0 {
			remaining = 0
		}
		if asMillis {
			out = remaining
		} else {
			out = remaining / 1000
		}
	})
	return resp.Int(out)
}

// Keys implements KEYS: full synchronous glob match (spec.md §4.13:
// "KEYS returns full matches synchronously (O(N))").
func (c *Context) Keys(pattern string) resp.Frame {
	all := c.Store.Keys()
	items := make([]resp.Frame, 0, len(all))
	for _, k := range all {
		if glob.Match([]byte(pattern), []byte(k)) {
			items = append(items, resp.BulkStr(k))
		}
	}
	return resp.ArrSlice(items)
}

// Scan implements SCAN's cursor-paginated iteration (spec.md §4.13),
// delegating to the keyspace's stable-sorted-order Scan primitive.
func (c *Context) Scan(cursor uint64, pattern string, count int) resp.Frame {
	var match func(string) bool
	if pattern != "" {
		match = func(k string) bool { return glob.Match([]byte(pattern), []byte(k)) }
	}
	result := c.Store.Scan(cursor, count, match)
	items := make([]resp.Frame, len(result.Keys))
	for i, k := range result.Keys {
		items[i] = resp.BulkStr(k)
	}
	return resp.Arr(resp.BulkStr(strconv.FormatUint(result.Cursor, 10)), resp.ArrSlice(items))
}
