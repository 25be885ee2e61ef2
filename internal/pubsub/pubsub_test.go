package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	id       uint64
	received []Message
}

func (f *fakeSub) ID() uint64 { return f.id }
func (f *fakeSub) Deliver(m Message) { f.received = append(f.received, m) }

func TestExactChannelDelivery(t *testing.T) {
	r := NewRegistry()
	s1 := &fakeSub{id: 1}
	s2 := &fakeSub{id: 2}
	r.Subscribe("news", s1)
	r.Subscribe("news", s2)

	n := r.Publish("news", []byte("hello"))
	require.Equal(t, 2, n)
	require.Len(t, s1.received, 1)
	require.Equal(t, "news", s1.received[0].Channel)
	require.Equal(t, "hello", string(s1.received[0].Payload))
}

func TestPatternDelivery(t *testing.T) {
	r := NewRegistry()
	s := &fakeSub{id: 1}
	r.PSubscribe("news.*", s)

	n := r.Publish("news.sports", []byte("goal"))
	require.Equal(t, 1, n)
	require.Equal(t, "news.*", s.received[0].Pattern)
	require.Equal(t, "news.sports", s.received[0].Channel)

	n = r.Publish("weather.rain", []byte("drip"))
	require.Equal(t, 0, n)
}

func TestUnsubscribeAllRemovesEverywhere(t *testing.T) {
	r := NewRegistry()
	s := &fakeSub{id: 1}
	r.Subscribe("a", s)
	r.Subscribe("b", s)
	r.PSubscribe("c.*", s)

	r.UnsubscribeAll(1)
	require.Equal(t, 0, r.Publish("a", []byte("x")))
	require.Equal(t, 0, r.Publish("c.1", []byte("x")))
	require.Empty(t, r.ChannelNames(""))
	require.Equal(t, 0, r.NumPatterns())
}

func TestChannelNamesFilteredByPattern(t *testing.T) {
	r := NewRegistry()
	s := &fakeSub{id: 1}
	r.Subscribe("news.sports", s)
	r.Subscribe("weather", s)

	names := r.ChannelNames("news.*")
	require.Equal(t, []string{"news.sports"}, names)
}

func TestPublishCallsMirror(t *testing.T) {
	r := NewRegistry()
	var gotChannel string
	var gotPayload []byte
	r.Mirror = func(channel string, payload []byte) {
		gotChannel, gotPayload = channel, payload
	}

	r.Publish("news.sports", []byte("goal"))
	require.Equal(t, "news.sports", gotChannel)
	require.Equal(t, "goal", string(gotPayload))
}
