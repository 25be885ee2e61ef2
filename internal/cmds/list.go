package cmds

import (
	"container/list"

	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
)

// push is shared by LPUSH/RPUSH; left=true pushes front, returns the
// resulting length. Grounded on original_source/src/cmd/list.rs's
// lpush/rpush (create-on-absent, reset expired entries, WRONGTYPE on
// non-list).
func (c *Context) push(key string, values [][]byte, left bool) resp.Frame {
	var newLen int
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if exists && e.Value.Kind != store.KindList {
			typeErr = true
			return e, false
		}
		if !exists {
			e = store.NewEntry(store.NewList())
		}
		for _, v := range values {
			cp := append([]byte(nil), v...)
			if left {
				e.Value.List.PushFront(cp)
			} else {
				e.Value.List.PushBack(cp)
			}
		}
		newLen = e.Value.List.Len()
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	event := "rpush"
	if left {
		event = "lpush"
	}
	c.touch(notify.ClassList, event, key)
	c.Block.Notify(c.DBIndex, key, func() (any, bool) { return nil, false })
	return resp.Int(int64(newLen))
}

func (c *Context) LPush(key string, values [][]byte) resp.Frame { return c.push(key, values, true) }
func (c *Context) RPush(key string, values [][]byte) resp.Frame { return c.push(key, values, false) }

// pop is shared by LPOP/RPOP; no blocking-pop command calls it.
func (c *Context) pop(key string, left bool) ([]byte, bool, error) {
	var val []byte
	var ok bool
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if !exists {
			return e, false
		}
		if e.Value.Kind != store.KindList {
			typeErr = true
			return e, false
		}
		var elem *list.Element
		if left {
			elem = e.Value.List.Front()
		} else {
			elem = e.Value.List.Back()
		}
		if elem == nil {
			return e, false
		}
		val = elem.Value.([]byte)
		ok = true
		e.Value.List.Remove(elem)
		if e.Value.List.Len() == 0 {
			return nil, true
		}
		return e, false
	})
	if typeErr {
		return nil, false, store.ErrWrongType
	}
	if ok {
		event := "rpop"
		if left {
			event = "lpop"
		}
		c.touch(notify.ClassList, event, key)
	}
	return val, ok, nil
}

func (c *Context) LPop(key string) resp.Frame { return c.popFrame(key, true) }
func (c *Context) RPop(key string) resp.Frame { return c.popFrame(key, false) }

func (c *Context) popFrame(key string, left bool) resp.Frame {
	v, ok, err := c.pop(key, left)
	if err != nil {
		return errWrongType()
	}
	if !ok {
		return resp.Null()
	}
	return resp.Bulk(v)
}

// LLen implements LLEN.
func (c *Context) LLen(key string) resp.Frame {
	var n int
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindList {
			typeErr = true
			return
		}
		n = e.Value.List.Len()
	})
	if typeErr {
		return errWrongType()
	}
	return resp.Int(int64(n))
}

// LRange implements LRANGE with negative-from-end clamped, inclusive
// indices (spec.md §4.13).
func (c *Context) LRange(key string, start, stop int) resp.Frame {
	var items []resp.Frame
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			items = []resp.Frame{}
			return
		}
		if e.Value.Kind != store.KindList {
			typeErr = true
			return
		}
		n := e.Value.List.Len()
		s, e2, ok := clampRange(start, stop, n)
		if !ok {
			items = []resp.Frame{}
			return
		}
		i := 0
		for el := e.Value.List.Front(); el != nil; el = el.Next() {
			if i > e2 {
				break
			}
			if i >= s {
				items = append(items, resp.Bulk(el.Value.([]byte)))
			}
			i++
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.ArrSlice(items)
}

// clampRange normalizes Redis-style negative-from-end [start,stop]
// bounds against a sequence of length n, inclusive on both ends.
func clampRange(start, stop, n int) (int, int, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}

// LIndex implements LINDEX.
func (c *Context) LIndex(key string, index int) resp.Frame {
	var out resp.Frame = resp.Null()
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindList {
			typeErr = true
			return
		}
		n := e.Value.List.Len()
		if index < 0 {
			index += n
		}
		if index < 0 || index >= n {
			return
		}
		i := 0
		for el := e.Value.List.Front(); el != nil; el = el.Next() {
			if i == index {
				out = resp.Bulk(el.Value.([]byte))
				return
			}
			i++
		}
	})
	if typeErr {
		return errWrongType()
	}
	return out
}

// LSet implements LSET.
func (c *Context) LSet(key string, index int, value []byte) resp.Frame {
	var typeErr, noKey, outOfRange bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if !exists {
			noKey = true
			return e, false
		}
		if e.Value.Kind != store.KindList {
			typeErr = true
			return e, false
		}
		n := e.Value.List.Len()
		idx := index
		if idx < 0 {
			idx += n
		}
		if idx < 0 || idx >= n {
			outOfRange = true
			return e, false
		}
		i := 0
		for el := e.Value.List.Front(); el != nil; el = el.Next() {
			if i == idx {
				el.Value = append([]byte(nil), value...)
				break
			}
			i++
		}
		return e, false
	})
	switch {
	case noKey:
		return resp.Err("ERR no such key")
	case typeErr:
		return errWrongType()
	case outOfRange:
		return resp.Err("ERR index out of range")
	}
	c.touch(notify.ClassList, "lset", key)
	return resp.Simple("OK")
}

// LRem implements LREM: count>0 removes from head, count<0 from tail,
// count==0 removes all occurrences.
func (c *Context) LRem(key string, count int, value []byte) resp.Frame {
	var removed int
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if !exists {
			return e, false
		}
		if e.Value.Kind != store.KindList {
			typeErr = true
			return e, false
		}
		l := e.Value.List
		matches := func(v []byte) bool {
			return string(v) == string(value)
		}
		limit := count
		if limit < 0 {
			limit = -limit
		}
		if count >= 0 {
			for el := l.Front(); el != nil; {
				next := el.Next()
				if matches(el.Value.([]byte)) && (count == 0 || removed < limit) {
					l.Remove(el)
					removed++
				}
				el = next
			}
		} else {
			for el := l.Back(); el != nil; {
				prev := el.Prev()
				if matches(el.Value.([]byte)) && removed < limit {
					l.Remove(el)
					removed++
				}
				el = prev
			}
		}
		if l.Len() == 0 {
			return nil, true
		}
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	if removed > 0 {
		c.touch(notify.ClassList, "lrem", key)
	}
	return resp.Int(int64(removed))
}

// LTrim implements LTRIM.
func (c *Context) LTrim(key string, start, stop int) resp.Frame {
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if !exists {
			return e, false
		}
		if e.Value.Kind != store.KindList {
			typeErr = true
			return e, false
		}
		n := e.Value.List.Len()
		s, stopIdx, ok := clampRange(start, stop, n)
		if !ok {
			return nil, true
		}
		i := 0
		for el := e.Value.List.Front(); el != nil; {
			next := el.Next()
			if i < s || i > stopIdx {
				e.Value.List.Remove(el)
			}
			el = next
			i++
		}
		if e.Value.List.Len() == 0 {
			return nil, true
		}
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	c.touch(notify.ClassList, "ltrim", key)
	return resp.Simple("OK")
}
