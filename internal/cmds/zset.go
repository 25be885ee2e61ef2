package cmds

import (
	"strconv"

	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
)

// ScoreMember is one (score, member) pair in a ZADD argv.
type ScoreMember struct {
	Score  float64
	Member string
}

// ParseScoreMembers consumes ZADD's score/member pairs (argv[2:]),
// grounded on original_source/src/cmd/zset.rs's zadd parsing.
func ParseScoreMembers(argv [][]byte) ([]ScoreMember, error) {
	if len(argv)%2 != 0 || len(argv) == 0 {
		return nil, errSetSyntax
	}
	out := make([]ScoreMember, 0, len(argv)/2)
	for i := 0; i < len(argv); i += 2 {
		score, err := strconv.ParseFloat(string(argv[i]), 64)
		if err != nil {
			return nil, errSetNotInt
		}
		out = append(out, ScoreMember{Score: score, Member: string(argv[i+1])})
	}
	return out, nil
}

// ZAdd implements ZADD, returning the count of newly-added members
// (existing members get their score updated in place, per spec.md
// §4.13's "updates score if member exists").
func (c *Context) ZAdd(key string, pairs []ScoreMember) resp.Frame {
	var added int
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if exists && e.Value.Kind != store.KindZSet {
			typeErr = true
			return e, false
		}
		if !exists {
			e = store.NewEntry(store.NewZSet())
		}
		for _, p := range pairs {
			if e.Value.ZSet.Add(p.Member, p.Score) {
				added++
			}
		}
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	c.touch(notify.ClassZSet, "zadd", key)
	return resp.Int(int64(added))
}

// ZRem implements ZREM.
func (c *Context) ZRem(key string, members []string) resp.Frame {
	var removed int
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if !exists {
			return e, false
		}
		if e.Value.Kind != store.KindZSet {
			typeErr = true
			return e, false
		}
		for _, m := range members {
			if e.Value.ZSet.Remove(m) {
				removed++
			}
		}
		if e.Value.ZSet.Len() == 0 {
			return nil, true
		}
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	if removed > 0 {
		c.touch(notify.ClassZSet, "zrem", key)
	}
	return resp.Int(int64(removed))
}

// ZScore implements ZSCORE.
func (c *Context) ZScore(key, member string) resp.Frame {
	var out resp.Frame = resp.Null()
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindZSet {
			typeErr = true
			return
		}
		if score, ok := e.Value.ZSet.Score(member); ok {
			out = resp.Bulk([]byte(formatScore(score)))
		}
	})
	if typeErr {
		return errWrongType()
	}
	return out
}

// ZCard implements ZCARD.
func (c *Context) ZCard(key string) resp.Frame {
	var n int
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindZSet {
			typeErr = true
			return
		}
		n = e.Value.ZSet.Len()
	})
	if typeErr {
		return errWrongType()
	}
	return resp.Int(int64(n))
}

// ZRank implements ZRANK (reverse=true for ZREVRANK).
func (c *Context) ZRank(key, member string, reverse bool) resp.Frame {
	var out resp.Frame = resp.Null()
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindZSet {
			typeErr = true
			return
		}
		rank := e.Value.ZSet.Rank(member)
		if rank < 0 {
			return
		}
		if reverse {
			rank = e.Value.ZSet.Len() - 1 - rank
		}
		out = resp.Int(int64(rank))
	})
	if typeErr {
		return errWrongType()
	}
	return out
}

// ZRange implements ZRANGE by index (start/stop, negative-from-end).
func (c *Context) ZRange(key string, start, stop int, withScores, reverse bool) resp.Frame {
	var items []resp.Frame
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			items = []resp.Frame{}
			return
		}
		if e.Value.Kind != store.KindZSet {
			typeErr = true
			return
		}
		n := e.Value.ZSet.Len()
		s, stopIdx, ok := clampRange(start, stop, n)
		if !ok {
			items = []resp.Frame{}
			return
		}
		members := e.Value.ZSet.RangeByIndex(s, stopIdx)
		if reverse {
			for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
				members[i], members[j] = members[j], members[i]
			}
		}
		for _, m := range members {
			items = append(items, resp.BulkStr(m.Member))
			if withScores {
				items = append(items, resp.Bulk([]byte(formatScore(m.Score))))
			}
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.ArrSlice(items)
}

// ScoreRange bounds ZRANGEBYSCORE (spec.md §4.13: `(` exclusive prefix,
// -inf/+inf sentinels).
type ScoreRange struct {
	Min, Max           float64
	MinExcl, MaxExcl   bool
	Offset, Count      int
	HasLimit           bool
}

// ZRangeByScore implements ZRANGEBYSCORE/ZREVRANGEBYSCORE.
func (c *Context) ZRangeByScore(key string, r ScoreRange, withScores, reverse bool) resp.Frame {
	var items []resp.Frame
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			items = []resp.Frame{}
			return
		}
		if e.Value.Kind != store.KindZSet {
			typeErr = true
			return
		}
		members := e.Value.ZSet.RangeByScore(r.Min, r.Max, r.MinExcl, r.MaxExcl)
		if reverse {
			for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
				members[i], members[j] = members[j], members[i]
			}
		}
		if r.HasLimit {
			lo := r.Offset
			if lo > len(members) {
				lo = len(members)
			}
			hi := len(members)
			if r.Count >= 0 && lo+r.Count < hi {
				hi = lo + r.Count
			}
			members = members[lo:hi]
		}
		for _, m := range members {
			items = append(items, resp.BulkStr(m.Member))
			if withScores {
				items = append(items, resp.Bulk([]byte(formatScore(m.Score))))
			}
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.ArrSlice(items)
}

// LexRange bounds ZRANGEBYLEX.
type LexRange struct {
	Min, Max         []byte
	MinExcl, MaxExcl bool
	MinInf, MaxInf   bool
}

// ZRangeByLex implements ZRANGEBYLEX.
func (c *Context) ZRangeByLex(key string, r LexRange) resp.Frame {
	var items []resp.Frame
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			items = []resp.Frame{}
			return
		}
		if e.Value.Kind != store.KindZSet {
			typeErr = true
			return
		}
		members := e.Value.ZSet.RangeByLex(r.Min, r.Max, r.MinExcl, r.MaxExcl, r.MinInf, r.MaxInf)
		for _, m := range members {
			items = append(items, resp.BulkStr(m.Member))
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.ArrSlice(items)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
