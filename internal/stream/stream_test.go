package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func f(name, value string) Field {
	return Field{Name: []byte(name), Value: []byte(value)}
}

func TestAppendAutoIDIncreasesMonotonically(t *testing.T) {
	s := New()
	id1, err := s.Append(1000, nil, []Field{f("a", "1")})
	require.NoError(t, err)
	require.Equal(t, ID{Ms: 1000, Seq: 0}, id1)

	id2, err := s.Append(1000, nil, []Field{f("a", "2")})
	require.NoError(t, err)
	require.Equal(t, ID{Ms: 1000, Seq: 1}, id2)

	id3, err := s.Append(1001, nil, []Field{f("a", "3")})
	require.NoError(t, err)
	require.Equal(t, ID{Ms: 1001, Seq: 0}, id3)

	require.Equal(t, 3, s.Len())
}

func TestAppendExplicitIDMustAdvance(t *testing.T) {
	s := New()
	explicit := ID{Ms: 5, Seq: 0}
	_, err := s.Append(0, &explicit, []Field{f("a", "1")})
	require.NoError(t, err)

	smaller := ID{Ms: 4, Seq: 0}
	_, err = s.Append(0, &smaller, []Field{f("a", "1")})
	require.ErrorIs(t, err, ErrNotGreater)

	same := ID{Ms: 5, Seq: 0}
	_, err = s.Append(0, &same, []Field{f("a", "1")})
	require.ErrorIs(t, err, ErrNotGreater)
}

func TestRangeAndRevRange(t *testing.T) {
	s := New()
	var ids []ID
	for i := 0; i < 5; i++ {
		id, err := s.Append(uint64(100+i), nil, []Field{f("n", "v")})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	got := s.Range(MinID, MaxID, 0)
	require.Len(t, got, 5)
	require.Equal(t, ids[0], got[0].ID)
	require.Equal(t, ids[4], got[4].ID)

	rev := s.RevRange(MinID, MaxID, 0)
	require.Equal(t, ids[4], rev[0].ID)
	require.Equal(t, ids[0], rev[4].ID)

	limited := s.Range(MinID, MaxID, 2)
	require.Len(t, limited, 2)
}

func TestDeleteAndTrim(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		_, err := s.Append(uint64(100+i), nil, nil)
		require.NoError(t, err)
	}
	first := s.Range(MinID, MaxID, 1)[0]
	require.True(t, s.Delete(first.ID))
	require.Equal(t, 4, s.Len())
	require.False(t, s.Delete(first.ID))

	removed := s.Trim(func(remaining int, oldest ID) bool { return remaining <= 2 })
	require.Equal(t, 2, removed)
	require.Equal(t, 2, s.Len())
}

func TestConsumerGroupDeliverAckAndPending(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		_, err := s.Append(uint64(100+i), nil, []Field{f("n", "v")})
		require.NoError(t, err)
	}

	g, err := s.CreateGroup("grp", MinID)
	require.NoError(t, err)

	_, err = s.CreateGroup("grp", MinID)
	require.ErrorIs(t, err, ErrGroupExists)

	delivered := s.ReadGroupNew(g, "c1", 10, 1000)
	require.Len(t, delivered, 3)

	sum := g.Summary()
	require.Equal(t, 3, sum.Count)
	require.Equal(t, 3, sum.ByConsumer["c1"])

	acked := g.Ack([]ID{delivered[0].ID})
	require.Equal(t, 1, acked)
	require.Equal(t, 2, g.Summary().Count)
}

func TestConsumerGroupClaimRequiresIdle(t *testing.T) {
	s := New()
	_, _ = s.Append(100, nil, []Field{f("n", "v")})
	g, _ := s.CreateGroup("grp", MinID)
	delivered := s.ReadGroupNew(g, "c1", 10, 1000)
	require.Len(t, delivered, 1)

	// Not idle long enough yet.
	claimed := g.Claim([]ID{delivered[0].ID}, "c2", 5000, 1500, false)
	require.Empty(t, claimed)

	claimed = g.Claim([]ID{delivered[0].ID}, "c2", 100, 1500, false)
	require.Len(t, claimed, 1)
	require.Equal(t, "c2", claimed[0].Consumer)
	require.EqualValues(t, 2, claimed[0].DeliveryCount)
}

func TestReadGroupHistoryReplaysOwnPending(t *testing.T) {
	s := New()
	id1, _ := s.Append(100, nil, []Field{f("n", "1")})
	id2, _ := s.Append(101, nil, []Field{f("n", "2")})
	g, _ := s.CreateGroup("grp", MinID)

	s.ReadGroupNew(g, "c1", 10, 1000)
	history := s.ReadGroupHistory(g, "c1", MinID, 10)
	require.Len(t, history, 2)
	require.Equal(t, id1, history[0].ID)
	require.Equal(t, id2, history[1].ID)
}

func TestDelConsumerDropsItsPending(t *testing.T) {
	s := New()
	_, _ = s.Append(100, nil, []Field{f("n", "v")})
	g, _ := s.CreateGroup("grp", MinID)
	s.ReadGroupNew(g, "c1", 10, 1000)

	dropped := g.DelConsumer("c1")
	require.Equal(t, 1, dropped)
	require.Equal(t, 0, g.Summary().Count)
}
