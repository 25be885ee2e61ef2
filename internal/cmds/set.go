package cmds

import (
	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
)

// SAdd implements SADD, grounded on original_source/src/cmd/set.rs's
// sadd (create-on-absent, return count of newly-inserted members).
func (c *Context) SAdd(key string, members [][]byte) resp.Frame {
	var added int
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if exists && e.Value.Kind != store.KindSet {
			typeErr = true
			return e, false
		}
		if !exists {
			e = store.NewEntry(store.NewSet())
		}
		for _, m := range members {
			ms := string(m)
			if _, has := e.Value.Set[ms]; !has {
				e.Value.Set[ms] = struct{}{}
				added++
			}
		}
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	if added > 0 {
		c.touch(notify.ClassSet, "sadd", key)
	}
	return resp.Int(int64(added))
}

// SRem implements SREM.
func (c *Context) SRem(key string, members [][]byte) resp.Frame {
	var removed int
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if !exists {
			return e, false
		}
		if e.Value.Kind != store.KindSet {
			typeErr = true
			return e, false
		}
		for _, m := range members {
			ms := string(m)
			if _, has := e.Value.Set[ms]; has {
				delete(e.Value.Set, ms)
				removed++
			}
		}
		if len(e.Value.Set) == 0 {
			return nil, true
		}
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	if removed > 0 {
		c.touch(notify.ClassSet, "srem", key)
	}
	return resp.Int(int64(removed))
}

// SIsMember implements SISMEMBER.
func (c *Context) SIsMember(key string, member []byte) resp.Frame {
	found := false
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindSet {
			typeErr = true
			return
		}
		_, found = e.Value.Set[string(member)]
	})
	if typeErr {
		return errWrongType()
	}
	if found {
		return resp.Int(1)
	}
	return resp.Int(0)
}

// SMembers implements SMEMBERS.
func (c *Context) SMembers(key string) resp.Frame {
	var items []resp.Frame
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			items = []resp.Frame{}
			return
		}
		if e.Value.Kind != store.KindSet {
			typeErr = true
			return
		}
		for m := range e.Value.Set {
			items = append(items, resp.BulkStr(m))
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.ArrSlice(items)
}

// SCard implements SCARD.
func (c *Context) SCard(key string) resp.Frame {
	var n int
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindSet {
			typeErr = true
			return
		}
		n = len(e.Value.Set)
	})
	if typeErr {
		return errWrongType()
	}
	return resp.Int(int64(n))
}

// readSet snapshots a set's members for use by the multi-key set
// algebra commands below; returns (members, isSet, typeErr).
func (c *Context) readSet(key string) (map[string]struct{}, bool, bool) {
	var out map[string]struct{}
	var typeErr bool
	found := false
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindSet {
			typeErr = true
			return
		}
		found = true
		out = make(map[string]struct{}, len(e.Value.Set))
		for m := range e.Value.Set {
			out[m] = struct{}{}
		}
	})
	return out, found, typeErr
}

// SInter implements SINTER over N keys.
func (c *Context) SInter(keys []string) resp.Frame {
	if len(keys) == 0 {
		return resp.ArrSlice(nil)
	}
	base, ok, typeErr := c.readSet(keys[0])
	if typeErr {
		return errWrongType()
	}
	if !ok {
		return resp.ArrSlice(nil)
	}
	result := base
	for _, k := range keys[1:] {
		other, ok, typeErr := c.readSet(k)
		if typeErr {
			return errWrongType()
		}
		if !ok {
			return resp.ArrSlice(nil)
		}
		next := map[string]struct{}{}
		for m := range result {
			if _, has := other[m]; has {
				next[m] = struct{}{}
			}
		}
		result = next
	}
	return setToFrame(result)
}

// SUnion implements SUNION over N keys.
func (c *Context) SUnion(keys []string) resp.Frame {
	result := map[string]struct{}{}
	for _, k := range keys {
		s, ok, typeErr := c.readSet(k)
		if typeErr {
			return errWrongType()
		}
		if !ok {
			continue
		}
		for m := range s {
			result[m] = struct{}{}
		}
	}
	return setToFrame(result)
}

// SDiff implements SDIFF: members of keys[0] not present in any other key.
func (c *Context) SDiff(keys []string) resp.Frame {
	if len(keys) == 0 {
		return resp.ArrSlice(nil)
	}
	base, ok, typeErr := c.readSet(keys[0])
	if typeErr {
		return errWrongType()
	}
	if !ok {
		return resp.ArrSlice(nil)
	}
	result := map[string]struct{}{}
	for m := range base {
		result[m] = struct{}{}
	}
	for _, k := range keys[1:] {
		other, ok, typeErr := c.readSet(k)
		if typeErr {
			return errWrongType()
		}
		if !ok {
			continue
		}
		for m := range other {
			delete(result, m)
		}
	}
	return setToFrame(result)
}

func setToFrame(s map[string]struct{}) resp.Frame {
	items := make([]resp.Frame, 0, len(s))
	for m := range s {
		items = append(items, resp.BulkStr(m))
	}
	return resp.ArrSlice(items)
}
