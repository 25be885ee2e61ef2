package cmds

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/blocking"
	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/pubsub"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
	"github.com/corekv/corekv/internal/stream"
	"github.com/corekv/corekv/internal/txn"
)

func newTestContext() *Context {
	return &Context{
		DBIndex:  0,
		Store:    store.NewKeyspace(0, nil),
		Notify:   notify.NewNotifier(pubsub.NewRegistry()),
		Block:    blocking.New(),
		Watchers: txn.NewWatchRegistry(),
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestContext()
	f := c.Set("k", []byte("v"), SetOpts{})
	require.Equal(t, resp.SimpleString, f.Kind)
	require.Equal(t, "OK", f.Str)

	g := c.Get("k")
	require.Equal(t, resp.BulkString, g.Kind)
	require.Equal(t, []byte("v"), g.Bulk)
}

func TestSetNXDoesNotOverwriteExisting(t *testing.T) {
	c := newTestContext()
	c.Set("k", []byte("v1"), SetOpts{})
	f := c.Set("k", []byte("v2"), SetOpts{NX: true})
	require.True(t, f.Null)

	g := c.Get("k")
	require.Equal(t, []byte("v1"), g.Bulk)
}

func TestSetXXFailsOnMissingKey(t *testing.T) {
	c := newTestContext()
	f := c.Set("missing", []byte("v"), SetOpts{XX: true})
	require.True(t, f.Null)
}

func TestSetGetOptionReturnsOldValue(t *testing.T) {
	c := newTestContext()
	c.Set("k", []byte("old"), SetOpts{})
	f := c.Set("k", []byte("new"), SetOpts{Get: true})
	require.Equal(t, []byte("old"), f.Bulk)

	g := c.Get("k")
	require.Equal(t, []byte("new"), g.Bulk)
}

func TestAppendAndStrLen(t *testing.T) {
	c := newTestContext()
	f := c.Append("k", []byte("foo"))
	require.Equal(t, int64(3), f.Int)
	f = c.Append("k", []byte("bar"))
	require.Equal(t, int64(6), f.Int)

	l := c.StrLen("k")
	require.Equal(t, int64(6), l.Int)
}

func TestMSetMGet(t *testing.T) {
	c := newTestContext()
	f := c.MSet([][]byte{[]byte("a"), []byte("1"), []byte("b"), []byte("2")})
	require.Equal(t, "OK", f.Str)

	g := c.MGet([]string{"a", "b", "missing"})
	require.Len(t, g.Items, 3)
	require.Equal(t, []byte("1"), g.Items[0].Bulk)
	require.Equal(t, []byte("2"), g.Items[1].Bulk)
	require.True(t, g.Items[2].Null)
}

func TestIncrDecrIncrByFloat(t *testing.T) {
	c := newTestContext()
	f := c.Incr("counter")
	require.Equal(t, int64(1), f.Int)
	f = c.IncrBy("counter", 9)
	require.Equal(t, int64(10), f.Int)
	f = c.Decr("counter")
	require.Equal(t, int64(9), f.Int)

	g := c.IncrByFloat("floatcounter", 2.5)
	require.Equal(t, []byte("2.5"), g.Bulk)
}

func TestLPushRPushLRange(t *testing.T) {
	c := newTestContext()
	c.RPush("list", [][]byte{[]byte("a"), []byte("b")})
	c.LPush("list", [][]byte{[]byte("z")})

	f := c.LRange("list", 0, -1)
	require.Len(t, f.Items, 3)
	require.Equal(t, []byte("z"), f.Items[0].Bulk)
	require.Equal(t, []byte("a"), f.Items[1].Bulk)
	require.Equal(t, []byte("b"), f.Items[2].Bulk)
}

func TestLPopRPop(t *testing.T) {
	c := newTestContext()
	c.RPush("list", [][]byte{[]byte("a"), []byte("b"), []byte("c")})

	f := c.LPop("list")
	require.Equal(t, []byte("a"), f.Bulk)
	g := c.RPop("list")
	require.Equal(t, []byte("c"), g.Bulk)
}

func TestLSetLRemLTrim(t *testing.T) {
	c := newTestContext()
	c.RPush("list", [][]byte{[]byte("a"), []byte("b"), []byte("a"), []byte("c")})

	f := c.LSet("list", 1, []byte("B"))
	require.Equal(t, "OK", f.Str)

	rem := c.LRem("list", 1, []byte("a"))
	require.Equal(t, int64(1), rem.Int)

	c.LTrim("list", 0, 1)
	after := c.LRange("list", 0, -1)
	require.Len(t, after.Items, 2)
}

func TestHSetHGetHGetAllHDel(t *testing.T) {
	c := newTestContext()
	f := c.HSet("h", [][]byte{[]byte("f1"), []byte("v1"), []byte("f2"), []byte("v2")})
	require.Equal(t, int64(2), f.Int)

	g := c.HGet("h", "f1")
	require.Equal(t, []byte("v1"), g.Bulk)

	all := c.HGetAll("h")
	require.Len(t, all.Items, 4)

	d := c.HDel("h", []string{"f1"})
	require.Equal(t, int64(1), d.Int)
}

func TestHIncrBy(t *testing.T) {
	c := newTestContext()
	f := c.HIncrBy("h", "counter", 5)
	require.Equal(t, int64(5), f.Int)
	f = c.HIncrBy("h", "counter", -2)
	require.Equal(t, int64(3), f.Int)
}

func TestSAddSMembersSInterSUnionSDiff(t *testing.T) {
	c := newTestContext()
	c.SAdd("s1", [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	c.SAdd("s2", [][]byte{[]byte("b"), []byte("c"), []byte("d")})

	card := c.SCard("s1")
	require.Equal(t, int64(3), card.Int)

	inter := c.SInter([]string{"s1", "s2"})
	require.Len(t, inter.Items, 2)

	union := c.SUnion([]string{"s1", "s2"})
	require.Len(t, union.Items, 4)

	diff := c.SDiff([]string{"s1", "s2"})
	require.Len(t, diff.Items, 1)
}

func TestZAddZRangeZRankZScore(t *testing.T) {
	c := newTestContext()
	c.ZAdd("z", []ScoreMember{{Score: 1, Member: "a"}, {Score: 2, Member: "b"}, {Score: 3, Member: "c"}})

	r := c.ZRange("z", 0, -1, false, false)
	require.Len(t, r.Items, 3)
	require.Equal(t, []byte("a"), r.Items[0].Bulk)

	rank := c.ZRank("z", "b", false)
	require.Equal(t, int64(1), rank.Int)

	score := c.ZScore("z", "c")
	require.Equal(t, []byte("3"), score.Bulk)
}

func TestZRangeByScoreAndByLex(t *testing.T) {
	c := newTestContext()
	c.ZAdd("z", []ScoreMember{{Score: 1, Member: "a"}, {Score: 2, Member: "b"}, {Score: 3, Member: "c"}})

	byScore := c.ZRangeByScore("z", ScoreRange{Min: 2, Max: 3}, false, false)
	require.Len(t, byScore.Items, 2)

	c.ZAdd("lex", []ScoreMember{{Score: 0, Member: "a"}, {Score: 0, Member: "b"}, {Score: 0, Member: "c"}})
	byLex := c.ZRangeByLex("lex", LexRange{MinInf: true, MaxInf: true})
	require.Len(t, byLex.Items, 3)
}

func TestSetBitGetBitBitCount(t *testing.T) {
	c := newTestContext()
	f := c.SetBit("bits", 7, 1)
	require.Equal(t, int64(0), f.Int)

	g := c.GetBit("bits", 7)
	require.Equal(t, int64(1), g.Int)

	count := c.BitCount("bits", false, 0, -1, false)
	require.Equal(t, int64(1), count.Int)
}

func TestBitPos(t *testing.T) {
	c := newTestContext()
	c.SetBit("bits", 15, 1)
	f := c.BitPos("bits", 1, false, 0, -1, false)
	require.Equal(t, int64(15), f.Int)
}

func TestDelExistsTypeExpirePersistTTL(t *testing.T) {
	c := newTestContext()
	c.Set("k", []byte("v"), SetOpts{})

	e := c.Exists([]string{"k", "missing"})
	require.Equal(t, int64(1), e.Int)

	typ := c.Type("k")
	require.Equal(t, "string", typ.Str)

	ttl := c.TTL("k", false)
	require.Equal(t, int64(-1), ttl.Int)

	del := c.Del([]string{"k"})
	require.Equal(t, int64(1), del.Int)

	missing := c.Exists([]string{"k"})
	require.Equal(t, int64(0), missing.Int)
}

func TestKeysAndScan(t *testing.T) {
	c := newTestContext()
	c.Set("foo1", []byte("v"), SetOpts{})
	c.Set("foo2", []byte("v"), SetOpts{})
	c.Set("bar", []byte("v"), SetOpts{})

	k := c.Keys("foo*")
	require.Len(t, k.Items, 2)

	var seen []string
	cursor := uint64(0)
	for {
		f := c.Scan(cursor, "", 10)
		next, err := strconv.ParseUint(string(f.Items[0].Bulk), 10, 64)
		require.NoError(t, err)
		for _, it := range f.Items[1].Items {
			seen = append(seen, string(it.Bulk))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	require.Len(t, seen, 3)
}

func TestSortByAndGetAndStore(t *testing.T) {
	c := newTestContext()
	c.RPush("mylist", [][]byte{[]byte("3"), []byte("1"), []byte("2")})

	f := c.Sort("mylist", SortOpts{Ascending: true, LimitCount: -1})
	require.Len(t, f.Items, 3)
	require.Equal(t, []byte("1"), f.Items[0].Bulk)
	require.Equal(t, []byte("2"), f.Items[1].Bulk)
	require.Equal(t, []byte("3"), f.Items[2].Bulk)

	c.Set("weight_1", []byte("30"), SetOpts{})
	c.Set("weight_2", []byte("10"), SetOpts{})
	c.Set("weight_3", []byte("20"), SetOpts{})

	byRes := c.Sort("mylist", SortOpts{Ascending: true, LimitCount: -1, HasBy: true, ByPattern: "weight_*"})
	require.Len(t, byRes.Items, 3)
	require.Equal(t, []byte("2"), byRes.Items[0].Bulk)
	require.Equal(t, []byte("3"), byRes.Items[1].Bulk)
	require.Equal(t, []byte("1"), byRes.Items[2].Bulk)

	stored := c.Sort("mylist", SortOpts{Ascending: true, LimitCount: -1, HasStore: true, StoreKey: "sorted"})
	require.Equal(t, int64(3), stored.Int)

	after := c.LRange("sorted", 0, -1)
	require.Len(t, after.Items, 3)
	require.Equal(t, []byte("1"), after.Items[0].Bulk)
}

func TestXAddXLenXRange(t *testing.T) {
	c := newTestContext()
	id1 := stream.ID{Ms: 100, Seq: 1}
	id2 := stream.ID{Ms: 100, Seq: 2}

	f := c.XAdd("s", &id1, [][]byte{[]byte("k"), []byte("v1")})
	require.Equal(t, []byte("100-1"), f.Bulk)
	c.XAdd("s", &id2, [][]byte{[]byte("k"), []byte("v2")})

	l := c.XLen("s")
	require.Equal(t, int64(2), l.Int)

	r := c.XRange("s", stream.MinID, stream.MaxID, 0, false)
	require.Len(t, r.Items, 2)
}

func TestXGroupCreateReadGroupAckPending(t *testing.T) {
	c := newTestContext()
	id1 := stream.ID{Ms: 100, Seq: 1}
	id2 := stream.ID{Ms: 100, Seq: 2}
	c.XAdd("s", &id1, [][]byte{[]byte("k"), []byte("v1")})
	c.XAdd("s", &id2, [][]byte{[]byte("k"), []byte("v2")})

	g := c.XGroupCreate("s", "grp", stream.ID{}, false)
	require.Equal(t, "OK", g.Str)

	first := c.XReadGroup("s", "grp", "alice", 1, true, stream.ID{})
	require.Len(t, first.Items, 1)

	second := c.XReadGroup("s", "grp", "alice", 1, true, stream.ID{})
	require.Len(t, second.Items, 1)

	pending := c.XPending("s", "grp")
	require.Equal(t, int64(2), pending.Items[0].Int)

	acked := c.XAck("s", "grp", []stream.ID{id1})
	require.Equal(t, int64(1), acked.Int)
}
