package dispatch

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/corekv/corekv/internal/cmds"
	"github.com/corekv/corekv/internal/geo"
	"github.com/corekv/corekv/internal/resp"
)

func (s *Server) cmdContext(conn *Conn) *cmds.Context {
	return &cmds.Context{
		DBIndex:  conn.DBIndex,
		Store:    s.Databases[conn.DBIndex],
		Notify:   s.Notifier,
		Block:    s.Block,
		Watchers: s.Watchers,
	}
}

// writeVerbs is the set of verbs that mutate the keyspace, used by
// Dispatch to decide whether a verb mutates the keyspace (and
// should therefore be logged/mirrored) without hardcoding that list a
// second time at the call site.
var writeVerbs = map[string]bool{
	"set": true, "setnx": true, "getset": true, "getex": true, "append": true,
	"mset": true, "incr": true, "decr": true, "incrby": true, "decrby": true,
	"incrbyfloat": true, "del": true, "expire": true, "pexpire": true,
	"persist": true, "lpush": true, "rpush": true, "lpop": true, "rpop": true,
	"lset": true, "lrem": true, "ltrim": true, "hset": true, "hdel": true,
	"hincrby": true, "sadd": true, "srem": true, "zadd": true, "zrem": true,
	"setbit": true, "sort": true, "xadd": true, "xdel": true, "xtrim": true,
	"xgroup": true, "xreadgroup": true, "xack": true, "xclaim": true,
	"geoadd": true,
}

// keyedVerbs are the verbs whose first argument is always a key, used
// by Dispatch's ACL key-pattern check (spec.md §4.8: "verify
// command-name then key-pattern match at dispatch time"). Verbs not
// listed here (control, pub/sub, scripting, ACL/AUTH commands) carry
// no single-key argument shape to check.
var keyedVerbs = map[string]bool{
	"set": true, "get": true, "getset": true, "getex": true, "setnx": true,
	"append": true, "strlen": true, "mset": true, "mget": true, "incr": true,
	"decr": true, "incrby": true, "decrby": true, "incrbyfloat": true,
	"del": true, "exists": true, "type": true, "expire": true, "pexpire": true,
	"persist": true, "ttl": true, "pttl": true,
	"lpush": true, "rpush": true, "lpop": true, "rpop": true, "llen": true,
	"lrange": true, "lindex": true, "lset": true, "lrem": true, "ltrim": true,
	"hset": true, "hget": true, "hdel": true, "hgetall": true, "hexists": true,
	"hlen": true, "hmget": true, "hkeys": true, "hvals": true, "hincrby": true,
	"sadd": true, "srem": true, "sismember": true, "smembers": true, "scard": true,
	"sinter": true, "sunion": true, "sdiff": true,
	"zadd": true, "zrem": true, "zscore": true, "zcard": true, "zrank": true,
	"zrevrank": true, "zrange": true, "zrevrange": true, "zrangebyscore": true,
	"zrevrangebyscore": true, "zrangebylex": true,
	"setbit": true, "getbit": true, "bitcount": true, "bitpos": true,
	"sort": true, "sort_ro": true,
	"xadd": true, "xlen": true, "xrange": true, "xrevrange": true, "xdel": true,
	"xtrim": true, "xack": true, "xpending": true, "xclaim": true,
	"geoadd": true, "geopos": true, "geohash": true, "geodist": true, "geosearch": true,
}

func parseInt(b []byte) (int64, bool) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	return n, err == nil
}

func parseIntArg(b []byte) (int, bool) {
	n, err := strconv.Atoi(string(b))
	return n, err == nil
}

func bstrs(argv [][]byte) []string {
	out := make([]string, len(argv))
	for i, b := range argv {
		out[i] = string(b)
	}
	return out
}

// dispatchData handles every typed string/list/hash/set/zset/bitmap/
// generic/sort verb internal/cmds implements. ok=false means verb
// wasn't one of these (caller tries the next dispatch table).
func (s *Server) dispatchData(conn *Conn, verb string, argv [][]byte) (resp.Frame, bool) {
	c := s.cmdContext(conn)
	args := argv[1:]

	switch verb {
	case "set":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		opts, err := cmds.ParseSetOpts(args[2:])
		if err != nil {
			return errSyntax(), true
		}
		return c.Set(string(args[0]), args[1], opts), true
	case "get":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.Get(string(args[0])), true
	case "getset":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		return c.GetSet(string(args[0]), args[1]), true
	case "getex":
		if len(args) < 1 {
			return errWrongArgs(verb), true
		}
		persist := false
		rest := args[1:]
		if len(rest) == 1 && strings.EqualFold(string(rest[0]), "persist") {
			persist = true
			rest = nil
		}
		opts, err := cmds.ParseSetOpts(rest)
		if err != nil {
			return errSyntax(), true
		}
		return c.GetEx(string(args[0]), opts, persist), true
	case "setnx":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		return c.SetNX(string(args[0]), args[1]), true
	case "append":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		return c.Append(string(args[0]), args[1]), true
	case "strlen":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.StrLen(string(args[0])), true
	case "mset":
		return c.MSet(args), true
	case "mget":
		if len(args) < 1 {
			return errWrongArgs(verb), true
		}
		return c.MGet(bstrs(args)), true
	case "incr":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.Incr(string(args[0])), true
	case "decr":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.Decr(string(args[0])), true
	case "incrby", "decrby":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		n, ok := parseInt(args[1])
		if !ok {
			return errNotInt(), true
		}
		if verb == "incrby" {
			return c.IncrBy(string(args[0]), n), true
		}
		return c.DecrBy(string(args[0]), n), true
	case "incrbyfloat":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		f, err := strconv.ParseFloat(string(args[1]), 64)
		if err != nil {
			return resp.Err("ERR value is not a valid float"), true
		}
		return c.IncrByFloat(string(args[0]), f), true

	case "del":
		if len(args) < 1 {
			return errWrongArgs(verb), true
		}
		return c.Del(bstrs(args)), true
	case "exists":
		if len(args) < 1 {
			return errWrongArgs(verb), true
		}
		return c.Exists(bstrs(args)), true
	case "type":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.Type(string(args[0])), true
	case "expire", "pexpire":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		n, ok := parseInt(args[1])
		if !ok {
			return errNotInt(), true
		}
		at := nowMillis()
		if verb == "expire" {
			at += n * 1000
		} else {
			at += n
		}
		return c.Expire(string(args[0]), at), true
	case "persist":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.Persist(string(args[0])), true
	case "ttl", "pttl":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.TTL(string(args[0]), verb == "pttl"), true
	case "keys":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.Keys(string(args[0])), true
	case "scan":
		if len(args) < 1 {
			return errWrongArgs(verb), true
		}
		return s.scanCommand(c, args), true

	case "lpush", "rpush":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		if verb == "lpush" {
			return c.LPush(string(args[0]), args[1:]), true
		}
		return c.RPush(string(args[0]), args[1:]), true
	case "lpop":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.LPop(string(args[0])), true
	case "rpop":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.RPop(string(args[0])), true
	case "llen":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.LLen(string(args[0])), true
	case "lrange":
		if len(args) != 3 {
			return errWrongArgs(verb), true
		}
		start, ok1 := parseIntArg(args[1])
		stop, ok2 := parseIntArg(args[2])
		if !ok1 || !ok2 {
			return errNotInt(), true
		}
		return c.LRange(string(args[0]), start, stop), true
	case "lindex":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		idx, ok := parseIntArg(args[1])
		if !ok {
			return errNotInt(), true
		}
		return c.LIndex(string(args[0]), idx), true
	case "lset":
		if len(args) != 3 {
			return errWrongArgs(verb), true
		}
		idx, ok := parseIntArg(args[1])
		if !ok {
			return errNotInt(), true
		}
		return c.LSet(string(args[0]), idx, args[2]), true
	case "lrem":
		if len(args) != 3 {
			return errWrongArgs(verb), true
		}
		count, ok := parseIntArg(args[1])
		if !ok {
			return errNotInt(), true
		}
		return c.LRem(string(args[0]), count, args[2]), true
	case "ltrim":
		if len(args) != 3 {
			return errWrongArgs(verb), true
		}
		start, ok1 := parseIntArg(args[1])
		stop, ok2 := parseIntArg(args[2])
		if !ok1 || !ok2 {
			return errNotInt(), true
		}
		return c.LTrim(string(args[0]), start, stop), true

	case "hset":
		if len(args) < 3 {
			return errWrongArgs(verb), true
		}
		return c.HSet(string(args[0]), args[1:]), true
	case "hget":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		return c.HGet(string(args[0]), string(args[1])), true
	case "hdel":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		return c.HDel(string(args[0]), bstrs(args[1:])), true
	case "hgetall":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.HGetAll(string(args[0])), true
	case "hexists":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		return c.HExists(string(args[0]), string(args[1])), true
	case "hlen":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.HLen(string(args[0])), true
	case "hmget":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		return c.HMGet(string(args[0]), bstrs(args[1:])), true
	case "hkeys":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.HKeys(string(args[0])), true
	case "hvals":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.HVals(string(args[0])), true
	case "hincrby":
		if len(args) != 3 {
			return errWrongArgs(verb), true
		}
		n, ok := parseInt(args[2])
		if !ok {
			return errNotInt(), true
		}
		return c.HIncrBy(string(args[0]), string(args[1]), n), true

	case "sadd":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		return c.SAdd(string(args[0]), args[1:]), true
	case "srem":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		return c.SRem(string(args[0]), args[1:]), true
	case "sismember":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		return c.SIsMember(string(args[0]), args[1]), true
	case "smembers":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.SMembers(string(args[0])), true
	case "scard":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.SCard(string(args[0])), true
	case "sinter":
		if len(args) < 1 {
			return errWrongArgs(verb), true
		}
		return c.SInter(bstrs(args)), true
	case "sunion":
		if len(args) < 1 {
			return errWrongArgs(verb), true
		}
		return c.SUnion(bstrs(args)), true
	case "sdiff":
		if len(args) < 1 {
			return errWrongArgs(verb), true
		}
		return c.SDiff(bstrs(args)), true

	case "zadd":
		if len(args) < 3 {
			return errWrongArgs(verb), true
		}
		pairs, err := cmds.ParseScoreMembers(args[1:])
		if err != nil {
			return errNotInt(), true
		}
		return c.ZAdd(string(args[0]), pairs), true
	case "zrem":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		return c.ZRem(string(args[0]), bstrs(args[1:])), true
	case "zscore":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		return c.ZScore(string(args[0]), string(args[1])), true
	case "zcard":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.ZCard(string(args[0])), true
	case "zrank", "zrevrank":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		return c.ZRank(string(args[0]), string(args[1]), verb == "zrevrank"), true
	case "zrange", "zrevrange":
		if len(args) < 3 {
			return errWrongArgs(verb), true
		}
		start, ok1 := parseIntArg(args[1])
		stop, ok2 := parseIntArg(args[2])
		if !ok1 || !ok2 {
			return errNotInt(), true
		}
		withScores := len(args) > 3 && strings.EqualFold(string(args[3]), "withscores")
		return c.ZRange(string(args[0]), start, stop, withScores, verb == "zrevrange"), true
	case "zrangebyscore", "zrevrangebyscore":
		if len(args) < 3 {
			return errWrongArgs(verb), true
		}
		r, withScores, err := parseScoreRange(args[1:])
		if err != nil {
			return errSyntax(), true
		}
		return c.ZRangeByScore(string(args[0]), r, withScores, verb == "zrevrangebyscore"), true
	case "zrangebylex":
		if len(args) < 3 {
			return errWrongArgs(verb), true
		}
		r, err := parseLexRange(args[1], args[2])
		if err != nil {
			return errSyntax(), true
		}
		return c.ZRangeByLex(string(args[0]), r), true

	case "geoadd":
		if len(args) < 4 {
			return errWrongArgs(verb), true
		}
		points, err := cmds.ParseGeoPoints(args[1:])
		if err != nil {
			return errNotFloat(), true
		}
		return c.GeoAdd(string(args[0]), points), true
	case "geopos":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		return c.GeoPos(string(args[0]), bstrs(args[1:])), true
	case "geohash":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		return c.GeoHash(string(args[0]), bstrs(args[1:])), true
	case "geodist":
		if len(args) < 3 {
			return errWrongArgs(verb), true
		}
		unitScale := 1.0
		if len(args) > 3 {
			scale, ok := geoUnit(args[3])
			if !ok {
				return errSyntax(), true
			}
			unitScale = scale
		}
		return c.GeoDist(string(args[0]), string(args[1]), string(args[2]), unitScale), true
	case "geosearch":
		return s.geoSearchCommand(c, args)

	case "setbit":
		if len(args) != 3 {
			return errWrongArgs(verb), true
		}
		off, ok1 := parseInt(args[1])
		bit, ok2 := parseInt(args[2])
		if !ok1 || !ok2 {
			return errNotInt(), true
		}
		return c.SetBit(string(args[0]), uint64(off), byte(bit)), true
	case "getbit":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		off, ok := parseInt(args[1])
		if !ok {
			return errNotInt(), true
		}
		return c.GetBit(string(args[0]), uint64(off)), true
	case "bitcount":
		if len(args) < 1 {
			return errWrongArgs(verb), true
		}
		return s.bitRangeCommand(c, args, false), true
	case "bitpos":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		return s.bitRangeCommand(c, args, true), true

	case "sort", "sort_ro":
		if len(args) < 1 {
			return errWrongArgs(verb), true
		}
		opts, err := cmds.ParseSortOpts(args[1:])
		if err != nil {
			return errSyntax(), true
		}
		if verb == "sort_ro" {
			opts.HasStore = false
		}
		return c.Sort(string(args[0]), opts), true

	default:
		return resp.Frame{}, false
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (s *Server) scanCommand(c *cmds.Context, args [][]byte) resp.Frame {
	cursor, err := strconv.ParseUint(string(args[0]), 10, 64)
	if err != nil {
		return errNotInt()
	}
	pattern := ""
	count := 10
	for i := 1; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "MATCH":
			i++
			if i >= len(args) {
				return errSyntax()
			}
			pattern = string(args[i])
		case "COUNT":
			i++
			if i >= len(args) {
				return errSyntax()
			}
			n, ok := parseIntArg(args[i])
			if !ok {
				return errNotInt()
			}
			count = n
		}
	}
	return c.Scan(cursor, pattern, count)
}

// parseScoreRange consumes ZRANGEBYSCORE/ZREVRANGEBYSCORE's min/max
// tokens (`-inf`/`+inf` sentinels, `(` exclusive prefix) plus the
// trailing WITHSCORES/LIMIT modifiers.
func parseScoreRange(args [][]byte) (cmds.ScoreRange, bool, error) {
	var r cmds.ScoreRange
	min, minExcl, err := parseScoreBound(args[0])
	if err != nil {
		return r, false, err
	}
	max, maxExcl, err := parseScoreBound(args[1])
	if err != nil {
		return r, false, err
	}
	r.Min, r.MinExcl = min, minExcl
	r.Max, r.MaxExcl = max, maxExcl
	withScores := false
	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			if i+2 >= len(args) {
				return r, false, errParseSyntax
			}
			off, ok1 := parseIntArg(args[i+1])
			cnt, ok2 := parseIntArg(args[i+2])
			if !ok1 || !ok2 {
				return r, false, errParseSyntax
			}
			r.Offset, r.Count, r.HasLimit = off, cnt, true
			i += 2
		default:
			return r, false, errParseSyntax
		}
	}
	return r, withScores, nil
}

func parseScoreBound(b []byte) (float64, bool, error) {
	s := string(b)
	excl := strings.HasPrefix(s, "(")
	if excl {
		s = s[1:]
	}
	switch strings.ToLower(s) {
	case "-inf":
		return math.Inf(-1), excl, nil
	case "+inf", "inf":
		return math.Inf(1), excl, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, errParseSyntax
	}
	return f, excl, nil
}

// parseLexRange consumes ZRANGEBYLEX's min/max tokens: `-`/`+` are the
// unbounded sentinels, `[` is an inclusive prefix, `(` exclusive.
func parseLexRange(minB, maxB []byte) (cmds.LexRange, error) {
	var r cmds.LexRange
	lo, loExcl, loInf, err := parseLexBound(minB, true)
	if err != nil {
		return r, err
	}
	hi, hiExcl, hiInf, err := parseLexBound(maxB, false)
	if err != nil {
		return r, err
	}
	r.Min, r.MinExcl, r.MinInf = lo, loExcl, loInf
	r.Max, r.MaxExcl, r.MaxInf = hi, hiExcl, hiInf
	return r, nil
}

func parseLexBound(b []byte, isMin bool) ([]byte, bool, bool, error) {
	s := string(b)
	switch s {
	case "-":
		return nil, false, isMin, nil
	case "+":
		return nil, false, !isMin, nil
	}
	if len(s) == 0 {
		return nil, false, false, errParseSyntax
	}
	switch s[0] {
	case '[':
		return []byte(s[1:]), false, false, nil
	case '(':
		return []byte(s[1:]), true, false, nil
	default:
		return nil, false, false, errParseSyntax
	}
}

var errParseSyntax = errors.New("syntax error")

func (s *Server) bitRangeCommand(c *cmds.Context, args [][]byte, isPos bool) resp.Frame {
	key := string(args[0])
	rest := args[1:]
	var bit byte
	if isPos {
		b, ok := parseInt(rest[0])
		if !ok {
			return errNotInt()
		}
		bit = byte(b)
		rest = rest[1:]
	}
	hasRange := len(rest) >= 2
	start, end := 0, -1
	bitMode := false
	if hasRange {
		s1, ok1 := parseIntArg(rest[0])
		s2, ok2 := parseIntArg(rest[1])
		if !ok1 || !ok2 {
			return errNotInt()
		}
		start, end = s1, s2
		if len(rest) >= 3 && strings.EqualFold(string(rest[2]), "bit") {
			bitMode = true
		}
	}
	if isPos {
		return c.BitPos(key, bit, hasRange, start, end, bitMode)
	}
	return c.BitCount(key, hasRange, start, end, bitMode)
}

func geoUnit(b []byte) (float64, bool) {
	return geo.Unit(strings.ToLower(string(b)))
}

// geoSearchCommand parses GEOSEARCH's FROMLONLAT/BYRADIUS/ASC|DESC/
// COUNT/WITHCOORD/WITHDIST/WITHHASH option grammar, grounded on
// original_source/rust-redis/src/cmd/geo.rs's parse_georadius_options.
func (s *Server) geoSearchCommand(c *cmds.Context, args [][]byte) (resp.Frame, bool) {
	if len(args) < 6 {
		return errWrongArgs("geosearch"), true
	}
	key := string(args[0])
	var lon, lat, radiusM float64
	var haveFrom, haveBy bool
	var withCoord, withDist, withHash bool
	count := 0
	unitScale := 1.0

	i := 1
	for i < len(args) {
		tok := strings.ToLower(string(args[i]))
		switch tok {
		case "fromlonlat":
			if i+2 >= len(args) {
				return errSyntax(), true
			}
			lo, ok1 := parseFloatArg(args[i+1])
			la, ok2 := parseFloatArg(args[i+2])
			if !ok1 || !ok2 {
				return errNotFloat(), true
			}
			lon, lat, haveFrom = lo, la, true
			i += 3
		case "byradius":
			if i+2 >= len(args) {
				return errSyntax(), true
			}
			r, ok := parseFloatArg(args[i+1])
			if !ok {
				return errNotFloat(), true
			}
			scale, ok := geoUnit(args[i+2])
			if !ok {
				return errSyntax(), true
			}
			radiusM, unitScale, haveBy = r*scale, scale, true
			i += 3
		case "withcoord":
			withCoord = true
			i++
		case "withdist":
			withDist = true
			i++
		case "withhash":
			withHash = true
			i++
		case "count":
			if i+1 >= len(args) {
				return errSyntax(), true
			}
			n, ok := parseIntArg(args[i+1])
			if !ok {
				return errNotInt(), true
			}
			count = n
			i += 2
		case "asc", "desc":
			i++
		default:
			return errSyntax(), true
		}
	}
	if !haveFrom || !haveBy {
		return errSyntax(), true
	}
	return c.GeoSearch(key, lon, lat, radiusM, unitScale, withCoord, withDist, withHash, count), true
}

func parseFloatArg(b []byte) (float64, bool) {
	f, err := strconv.ParseFloat(string(b), 64)
	return f, err == nil
}
