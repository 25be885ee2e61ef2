package notify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/pubsub"
)

func TestParseFlagsAndString(t *testing.T) {
	flags := ParseFlags("KEg$lshzxet m")
	require.NotZero(t, flags & ClassKeyspace)
	require.NotZero(t, flags & ClassKeyevent)
	require.NotZero(t, flags & ClassKeyMiss)
	require.Contains(t, flags.String(), "K")
	require.Contains(t, flags.String(), "m")
}

func TestClassAllShorthand(t *testing.T) {
	flags := ParseFlags("A")
	require.Equal(t, ClassAll, flags)
	require.Zero(t, flags&ClassKeyspace)
}

type capture struct {
	id  uint64
	got []pubsub.Message
}

func (c *capture) ID() uint64                { return c.id }
func (c *capture) Deliver(m pubsub.Message) { c.got = append(c.got, m) }

func TestNotifyPublishesBothChannels(t *testing.T) {
	reg := pubsub.NewRegistry()
	n := NewNotifier(reg)
	n.SetFlags(ParseFlags("KE$"))

	ksSub := &capture{id: 1}
	keSub := &capture{id: 2}
	reg.Subscribe("__keyspace@0__:mykey", ksSub)
	reg.Subscribe("__keyevent@0__:set", keSub)

	n.Notify(ClassString, 0, "set", []byte("mykey"))

	require.Len(t, ksSub.got, 1)
	require.Equal(t, "set", string(ksSub.got[0].Payload))
	require.Len(t, keSub.got, 1)
	require.Equal(t, "mykey", string(keSub.got[0].Payload))
}

func TestNotifySkippedWhenClassDisabled(t *testing.T) {
	reg := pubsub.NewRegistry()
	n := NewNotifier(reg)
	n.SetFlags(ParseFlags("KE$")) // string only, not list

	sub := &capture{id: 1}
	reg.Subscribe("__keyevent@0__:lpush", sub)

	n.Notify(ClassList, 0, "lpush", []byte("mylist"))
	require.Empty(t, sub.got)
}

func TestNotifySkippedWhenNoMetaClassEnabled(t *testing.T) {
	reg := pubsub.NewRegistry()
	n := NewNotifier(reg)
	n.SetFlags(ParseFlags("$")) // string class but neither K nor E

	sub := &capture{id: 1}
	reg.Subscribe("__keyevent@0__:set", sub)

	n.Notify(ClassString, 0, "set", []byte("k"))
	require.Empty(t, sub.got)
}
