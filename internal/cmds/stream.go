package cmds

import (
	"strconv"
	"time"

	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
	"github.com/corekv/corekv/internal/stream"
)

// streamAt fetches (or, if create is set, creates) the *stream.Stream at
// key, returning (nil, false) on a WRONGTYPE clash.
func (c *Context) streamAt(key string, create bool) (*stream.Stream, bool) {
	var s *stream.Stream
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if exists && e.Value.Kind != store.KindStream {
			typeErr = true
			return e, false
		}
		if !exists {
			if !create {
				return e, false
			}
			e = store.NewEntry(store.NewStream(stream.New()))
		}
		s = e.Value.Stream.(*stream.Stream)
		return e, false
	})
	return s, !typeErr
}

func entryFrame(e *stream.Entry) resp.Frame {
	if e.Fields == nil {
		return resp.Arr(resp.BulkStr(e.ID.String()), resp.NullArray())
	}
	fields := make([]resp.Frame, 0, len(e.Fields)*2)
	for _, f := range e.Fields {
		fields = append(fields, resp.Bulk(f.Name), resp.Bulk(f.Value))
	}
	return resp.Arr(resp.BulkStr(e.ID.String()), resp.ArrSlice(fields))
}

func entriesFrame(entries []*stream.Entry) resp.Frame {
	items := make([]resp.Frame, len(entries))
	for i, e := range entries {
		items[i] = entryFrame(e)
	}
	return resp.ArrSlice(items)
}

// XAdd implements XADD, grounded on original_source's stream append
// semantics (spec.md §4.4): idOrStar is nil for "*", the id otherwise.
func (c *Context) XAdd(key string, idOrStar *stream.ID, fieldValues [][]byte) resp.Frame {
	if len(fieldValues)%2 != 0 || len(fieldValues) == 0 {
		return errArity("xadd")
	}
	s, ok := c.streamAt(key, true)
	if !ok {
		return errWrongType()
	}
	fields := make([]stream.Field, 0, len(fieldValues)/2)
	for i := 0; i < len(fieldValues); i += 2 {
		fields = append(fields, stream.Field{Name: fieldValues[i], Value: fieldValues[i+1]})
	}
	id, err := s.Append(uint64(time.Now().UnixMilli()), idOrStar, fields)
	if err != nil {
		return resp.Err(err.Error())
	}
	c.touch(notify.ClassStream, "xadd", key)
	c.Block.Notify(c.DBIndex, key, func() (any, bool) { return nil, false })
	return resp.BulkStr(id.String())
}

// XLen implements XLEN.
func (c *Context) XLen(key string) resp.Frame {
	s, ok := c.streamAt(key, false)
	if !ok {
		return errWrongType()
	}
	if s == nil {
		return resp.Int(0)
	}
	return resp.Int(int64(s.Len()))
}

// XRange implements XRANGE/XREVRANGE.
func (c *Context) XRange(key string, start, end stream.ID, count int, reverse bool) resp.Frame {
	s, ok := c.streamAt(key, false)
	if !ok {
		return errWrongType()
	}
	if s == nil {
		return resp.ArrSlice(nil)
	}
	var entries []*stream.Entry
	if reverse {
		entries = s.RevRange(start, end, count)
	} else {
		entries = s.Range(start, end, count)
	}
	return entriesFrame(entries)
}

// XDel implements XDEL.
func (c *Context) XDel(key string, ids []stream.ID) resp.Frame {
	s, ok := c.streamAt(key, false)
	if !ok {
		return errWrongType()
	}
	if s == nil {
		return resp.Int(0)
	}
	var n int64
	for _, id := range ids {
		if s.Delete(id) {
			n++
		}
	}
	if n > 0 {
		c.touch(notify.ClassStream, "xdel", key)
	}
	return resp.Int(n)
}

// XTrim implements XTRIM MAXLEN (approximate trimming isn't
// distinguished from exact here; both enforce the same final bound).
func (c *Context) XTrim(key string, maxLen int) resp.Frame {
	s, ok := c.streamAt(key, false)
	if !ok {
		return errWrongType()
	}
	if s == nil {
		return resp.Int(0)
	}
	removed := s.Trim(func(remaining int, _ stream.ID) bool { return remaining <= maxLen })
	if removed > 0 {
		c.touch(notify.ClassStream, "xtrim", key)
	}
	return resp.Int(int64(removed))
}

// XGroupCreate implements XGROUP CREATE, optionally creating the stream
// key (MKSTREAM) if it doesn't already exist. "$" as start resolves to
// the stream's current last ID at creation time.
func (c *Context) XGroupCreate(key, group string, start stream.ID, mkstream bool) resp.Frame {
	s, ok := c.streamAt(key, mkstream)
	if !ok {
		return errWrongType()
	}
	if s == nil {
		return resp.Err("ERR The XGROUP subcommand requires the key to exist. Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically.")
	}
	if start == stream.MaxID {
		start = s.LastID()
	}
	if _, err := s.CreateGroup(group, start); err != nil {
		return resp.Err(err.Error())
	}
	return resp.Simple("OK")
}

// XGroupDestroy implements XGROUP DESTROY.
func (c *Context) XGroupDestroy(key, group string) resp.Frame {
	s, ok := c.streamAt(key, false)
	if !ok {
		return errWrongType()
	}
	if s == nil {
		return resp.Int(0)
	}
	if s.DestroyGroup(group) {
		return resp.Int(1)
	}
	return resp.Int(0)
}

// XReadGroup implements XREADGROUP GROUP g c [COUNT n] STREAMS key id,
// where id is either ">" (new entries only) or an explicit ID (replay
// this consumer's own pending history).
func (c *Context) XReadGroup(key, groupName, consumer string, count int, newOnly bool, from stream.ID) resp.Frame {
	s, ok := c.streamAt(key, false)
	if !ok {
		return errWrongType()
	}
	if s == nil {
		return resp.Err(stream.ErrNoSuchGroup.Error())
	}
	g, ok := s.Group(groupName)
	if !ok {
		return errNoSuchGroup()
	}
	now := time.Now().UnixMilli()
	var entries []*stream.Entry
	if newOnly {
		entries = s.ReadGroupNew(g, consumer, count, now)
	} else {
		entries = s.ReadGroupHistory(g, consumer, from, count)
	}
	if len(entries) == 0 {
		return resp.NullArray()
	}
	return entriesFrame(entries)
}

func errNoSuchGroup() resp.Frame { return resp.Err(stream.ErrNoSuchGroup.Error()) }

// XAck implements XACK.
func (c *Context) XAck(key, groupName string, ids []stream.ID) resp.Frame {
	s, ok := c.streamAt(key, false)
	if !ok {
		return errWrongType()
	}
	if s == nil {
		return resp.Int(0)
	}
	g, ok := s.Group(groupName)
	if !ok {
		return resp.Int(0)
	}
	return resp.Int(int64(g.Ack(ids)))
}

// XPending implements the summary form of XPENDING (no range args):
// [count, lowest, highest, [[consumer, count]...]].
func (c *Context) XPending(key, groupName string) resp.Frame {
	s, ok := c.streamAt(key, false)
	if !ok {
		return errWrongType()
	}
	if s == nil {
		return errNoSuchGroup()
	}
	g, ok := s.Group(groupName)
	if !ok {
		return errNoSuchGroup()
	}
	sum := g.Summary()
	if sum.Count == 0 {
		return resp.Arr(resp.Int(0), resp.Null(), resp.Null(), resp.NullArray())
	}
	perConsumer := make([]resp.Frame, 0, len(sum.ByConsumer))
	for name, n := range sum.ByConsumer {
		perConsumer = append(perConsumer, resp.Arr(resp.BulkStr(name), resp.BulkStr(strconv.Itoa(n))))
	}
	return resp.Arr(
		resp.Int(int64(sum.Count)),
		resp.BulkStr(sum.Lowest.String()),
		resp.BulkStr(sum.Highest.String()),
		resp.ArrSlice(perConsumer),
	)
}

// XClaim implements XCLAIM.
func (c *Context) XClaim(key, groupName, consumer string, ids []stream.ID, minIdleMs int64, justID bool) resp.Frame {
	s, ok := c.streamAt(key, false)
	if !ok {
		return errWrongType()
	}
	if s == nil {
		return errNoSuchGroup()
	}
	g, ok := s.Group(groupName)
	if !ok {
		return errNoSuchGroup()
	}
	claimed := g.Claim(ids, consumer, minIdleMs, time.Now().UnixMilli(), justID)
	items := make([]resp.Frame, 0, len(claimed))
	for _, pe := range claimed {
		if justID {
			items = append(items, resp.BulkStr(pe.ID.String()))
			continue
		}
		if e, ok := s.Get(pe.ID); ok {
			items = append(items, entryFrame(e))
		}
	}
	return resp.ArrSlice(items)
}
