package cmds

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
)

var (
	errSetSyntax = errors.New("syntax error")
	errSetNotInt = errors.New("value is not an integer or out of range")
)

// SetOpts mirrors spec.md §4.13's SET option set: NX/XX gate the write
// on key presence, EX/PX/EXAT/PXAT set a deadline, KEEPTTL preserves
// the existing one, GET returns the prior value before overwriting.
type SetOpts struct {
	NX, XX, KeepTTL, Get bool
	ExpireAtMs           int64 // 0 = no deadline change beyond KeepTTL
	HasExpire            bool
}

// ParseSetOpts consumes SET's trailing option tokens (argv[2:]).
func ParseSetOpts(argv [][]byte) (SetOpts, error) {
	var o SetOpts
	now := time.Now()
	for i := 0; i < len(argv); i++ {
		tok := strings.ToUpper(string(argv[i]))
		switch tok {
		case "NX":
			o.NX = true
		case "XX":
			o.XX = true
		case "KEEPTTL":
			o.KeepTTL = true
		case "GET":
			o.Get = true
		case "EX", "PX", "EXAT", "PXAT":
			i++
			if i >= len(argv) {
				return o, errSetSyntax
			}
			n, err := strconv.ParseInt(string(argv[i]), 10, 64)
			if err != nil {
				return o, errSetNotInt
			}
			switch tok {
			case "EX":
				o.ExpireAtMs = now.Add(time.Duration(n) * time.Second).UnixMilli()
			case "PX":
				o.ExpireAtMs = now.Add(time.Duration(n) * time.Millisecond).UnixMilli()
			case "EXAT":
				o.ExpireAtMs = n * 1000
			case "PXAT":
				o.ExpireAtMs = n
			}
			o.HasExpire = true
		default:
			return o, errSetSyntax
		}
	}
	return o, nil
}

// Set implements SET with the full option set.
func (c *Context) Set(key string, value []byte, o SetOpts) resp.Frame {
	var old []byte
	var hadOld bool
	aborted := false

	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if o.NX && exists {
			aborted = true
			return e, false
		}
		if o.XX && !exists {
			aborted = true
			return e, !exists
		}
		if exists && e.Value.Kind == store.KindString {
			old = append([]byte(nil), e.Value.Str...)
			hadOld = true
		}

		ne := store.NewEntry(store.NewString(value))
		if o.KeepTTL && exists {
			if ms, has := e.ExpireAt(); has {
				ne.SetExpireAt(ms)
			}
		}
		if o.HasExpire {
			ne.SetExpireAt(o.ExpireAtMs)
		}
		return ne, false
	})

	if aborted {
		if o.Get {
			if hadOld {
				return resp.Bulk(old)
			}
			return resp.Null()
		}
		return resp.Null()
	}

	c.touch(notify.ClassString, "set", key)

	if o.Get {
		if hadOld {
			return resp.Bulk(old)
		}
		return resp.Null()
	}
	return resp.Simple("OK")
}

// Get implements GET.
func (c *Context) Get(key string) resp.Frame {
	var out resp.Frame
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			out = resp.Null()
			return
		}
		if e.Value.Kind != store.KindString {
			out = errWrongType()
			return
		}
		out = resp.Bulk(e.Value.Str)
	})
	return out
}

// GetSet implements GETSET: SET plus returning the old value.
func (c *Context) GetSet(key string, value []byte) resp.Frame {
	return c.Set(key, value, SetOpts{Get: true})
}

// GetEx implements GETEX: GET plus optional TTL mutation, without the
// NX/XX/GET option surface SET has.
func (c *Context) GetEx(key string, o SetOpts, persist bool) resp.Frame {
	var out resp.Frame
	found := false
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if !exists {
			out = resp.Null()
			return e, false
		}
		if e.Value.Kind != store.KindString {
			out = errWrongType()
			return e, false
		}
		found = true
		out = resp.Bulk(e.Value.Str)
		if persist {
			e.ClearExpire()
		} else if o.HasExpire {
			e.SetExpireAt(o.ExpireAtMs)
		}
		return e, false
	})
	if found {
		c.touch(notify.ClassGeneric, "getex", key)
	}
	return out
}

// Append implements APPEND, creating the key if absent.
func (c *Context) Append(key string, suffix []byte) resp.Frame {
	var newLen int
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if exists && e.Value.Kind != store.KindString {
			typeErr = true
			return e, false
		}
		if !exists {
			e = store.NewEntry(store.NewString(nil))
		}
		e.Value.Str = append(e.Value.Str, suffix...)
		newLen = len(e.Value.Str)
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	c.touch(notify.ClassString, "append", key)
	return resp.Int(int64(newLen))
}

// StrLen implements STRLEN.
func (c *Context) StrLen(key string) resp.Frame {
	var n int
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindString {
			typeErr = true
			return
		}
		n = len(e.Value.Str)
	})
	if typeErr {
		return errWrongType()
	}
	return resp.Int(int64(n))
}

// MSet implements MSET over an even-length argv of key/value pairs.
func (c *Context) MSet(argv [][]byte) resp.Frame {
	if len(argv)%2 != 0 || len(argv) == 0 {
		return errArity("mset")
	}
	for i := 0; i < len(argv); i += 2 {
		key := string(argv[i])
		c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
			return store.NewEntry(store.NewString(append([]byte(nil), argv[i+1]...))), false
		})
		c.touch(notify.ClassString, "set", key)
	}
	return resp.Simple("OK")
}

// MGet implements MGET, returning null for missing or non-string keys.
func (c *Context) MGet(keys []string) resp.Frame {
	items := make([]resp.Frame, len(keys))
	for i, key := range keys {
		c.Store.View(key, func(e *store.Entry, exists bool) {
			if !exists || e.Value.Kind != store.KindString {
				items[i] = resp.Null()
				return
			}
			items[i] = resp.Bulk(e.Value.Str)
		})
	}
	return resp.ArrSlice(items)
}

// SetNX implements SETNX.
func (c *Context) SetNX(key string, value []byte) resp.Frame {
	set := false
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if exists {
			return e, false
		}
		set = true
		return store.NewEntry(store.NewString(value)), false
	})
	if set {
		c.touch(notify.ClassString, "set", key)
		return resp.Int(1)
	}
	return resp.Int(0)
}

func (c *Context) incrBy(key string, delta int64) resp.Frame {
	var result int64
	var typeErr, overflow, parseErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		var cur int64
		if exists {
			if e.Value.Kind != store.KindString {
				typeErr = true
				return e, false
			}
			n, err := strconv.ParseInt(string(e.Value.Str), 10, 64)
			if err != nil {
				parseErr = true
				return e, false
			}
			cur = n
		}
		sum := cur + delta
		if (delta > 0 && sum < cur) || (delta < 0 && sum > cur) {
			overflow = true
			return e, false
		}
		result = sum
		ne := store.NewEntry(store.NewString([]byte(strconv.FormatInt(sum, 10))))
		if exists {
			if ms, has := e.ExpireAt(); has {
				ne.SetExpireAt(ms)
			}
		}
		return ne, false
	})
	switch {
	case typeErr:
		return errWrongType()
	case parseErr:
		return errNotInt()
	case overflow:
		return resp.Err("ERR increment or decrement would overflow")
	}
	c.touch(notify.ClassString, "incrby", key)
	return resp.Int(result)
}

func (c *Context) Incr(key string) resp.Frame           { return c.incrBy(key, 1) }
func (c *Context) Decr(key string) resp.Frame           { return c.incrBy(key, -1) }
func (c *Context) IncrBy(key string, n int64) resp.Frame { return c.incrBy(key, n) }
func (c *Context) DecrBy(key string, n int64) resp.Frame { return c.incrBy(key, -n) }

// IncrByFloat implements INCRBYFLOAT with trailing-zero trimming.
func (c *Context) IncrByFloat(key string, delta float64) resp.Frame {
	var result float64
	var typeErr, parseErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		var cur float64
		if exists {
			if e.Value.Kind != store.KindString {
				typeErr = true
				return e, false
			}
			n, err := strconv.ParseFloat(string(e.Value.Str), 64)
			if err != nil {
				parseErr = true
				return e, false
			}
			cur = n
		}
		result = cur + delta
		formatted := strconv.FormatFloat(result, 'f', -1, 64)
		ne := store.NewEntry(store.NewString([]byte(formatted)))
		if exists {
			if ms, has := e.ExpireAt(); has {
				ne.SetExpireAt(ms)
			}
		}
		return ne, false
	})
	if typeErr {
		return errWrongType()
	}
	if parseErr {
		return errNotFloat()
	}
	c.touch(notify.ClassString, "incrbyfloat", key)
	return resp.Bulk([]byte(strconv.FormatFloat(result, 'f', -1, 64)))
}
