package cmds

import (
	"strconv"

	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
)

// HSet implements HSET/HMSET over an even-length field/value argv,
// returning the count of newly-created fields. Grounded on
// original_source/src/cmd/hash.rs's hset (create-on-absent, WRONGTYPE
// guard, overwrite-existing-field semantics).
func (c *Context) HSet(key string, fieldValues [][]byte) resp.Frame {
	if len(fieldValues)%2 != 0 || len(fieldValues) == 0 {
		return errArity("hset")
	}
	var created int
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if exists && e.Value.Kind != store.KindHash {
			typeErr = true
			return e, false
		}
		if !exists {
			e = store.NewEntry(store.NewHash())
		}
		for i := 0; i < len(fieldValues); i += 2 {
			field := string(fieldValues[i])
			if _, has := e.Value.Hash[field]; !has {
				created++
			}
			e.Value.Hash[field] = append([]byte(nil), fieldValues[i+1]...)
		}
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	c.touch(notify.ClassHash, "hset", key)
	return resp.Int(int64(created))
}

// HGet implements HGET.
func (c *Context) HGet(key, field string) resp.Frame {
	var out resp.Frame = resp.Null()
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindHash {
			typeErr = true
			return
		}
		if v, has := e.Value.Hash[field]; has {
			out = resp.Bulk(v)
		}
	})
	if typeErr {
		return errWrongType()
	}
	return out
}

// HDel implements HDEL, deleting the key once the last field is gone.
func (c *Context) HDel(key string, fields []string) resp.Frame {
	var removed int
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if !exists {
			return e, false
		}
		if e.Value.Kind != store.KindHash {
			typeErr = true
			return e, false
		}
		for _, f := range fields {
			if _, has := e.Value.Hash[f]; has {
				delete(e.Value.Hash, f)
				removed++
			}
		}
		if len(e.Value.Hash) == 0 {
			return nil, true
		}
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	if removed > 0 {
		c.touch(notify.ClassHash, "hdel", key)
	}
	return resp.Int(int64(removed))
}

// HGetAll implements HGETALL, flattened field,value,field,value...
func (c *Context) HGetAll(key string) resp.Frame {
	var items []resp.Frame
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			items = []resp.Frame{}
			return
		}
		if e.Value.Kind != store.KindHash {
			typeErr = true
			return
		}
		for f, v := range e.Value.Hash {
			items = append(items, resp.BulkStr(f), resp.Bulk(v))
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.ArrSlice(items)
}

// HExists implements HEXISTS.
func (c *Context) HExists(key, field string) resp.Frame {
	found := false
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindHash {
			typeErr = true
			return
		}
		_, found = e.Value.Hash[field]
	})
	if typeErr {
		return errWrongType()
	}
	if found {
		return resp.Int(1)
	}
	return resp.Int(0)
}

// HLen implements HLEN.
func (c *Context) HLen(key string) resp.Frame {
	var n int
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindHash {
			typeErr = true
			return
		}
		n = len(e.Value.Hash)
	})
	if typeErr {
		return errWrongType()
	}
	return resp.Int(int64(n))
}

// HMGet implements HMGET.
func (c *Context) HMGet(key string, fields []string) resp.Frame {
	items := make([]resp.Frame, len(fields))
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		for i, f := range fields {
			if !exists {
				items[i] = resp.Null()
				continue
			}
			if e.Value.Kind != store.KindHash {
				typeErr = true
				return
			}
			if v, has := e.Value.Hash[f]; has {
				items[i] = resp.Bulk(v)
			} else {
				items[i] = resp.Null()
			}
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.ArrSlice(items)
}

// HKeys implements HKEYS.
func (c *Context) HKeys(key string) resp.Frame {
	var items []resp.Frame
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			items = []resp.Frame{}
			return
		}
		if e.Value.Kind != store.KindHash {
			typeErr = true
			return
		}
		for f := range e.Value.Hash {
			items = append(items, resp.BulkStr(f))
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.ArrSlice(items)
}

// HVals implements HVALS.
func (c *Context) HVals(key string) resp.Frame {
	var items []resp.Frame
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			items = []resp.Frame{}
			return
		}
		if e.Value.Kind != store.KindHash {
			typeErr = true
			return
		}
		for _, v := range e.Value.Hash {
			items = append(items, resp.Bulk(v))
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.ArrSlice(items)
}

// HIncrBy implements HINCRBY.
func (c *Context) HIncrBy(key, field string, delta int64) resp.Frame {
	var result int64
	var typeErr, parseErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if exists && e.Value.Kind != store.KindHash {
			typeErr = true
			return e, false
		}
		if !exists {
			e = store.NewEntry(store.NewHash())
		}
		var cur int64
		if v, has := e.Value.Hash[field]; has {
			n, err := strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				parseErr = true
				return e, false
			}
			cur = n
		}
		result = cur + delta
		e.Value.Hash[field] = []byte(strconv.FormatInt(result, 10))
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	if parseErr {
		return errNotInt()
	}
	c.touch(notify.ClassHash, "hincrby", key)
	return resp.Int(result)
}
