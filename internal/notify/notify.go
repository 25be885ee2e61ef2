// Package notify implements keyspace notifications (spec.md §4.9): the
// per-class bit flags parsed from `notify-keyspace-events`, and the
// __keyspace@<db>__/__keyevent@<db>__ channel publication that mirrors
// every qualifying write onto pub/sub. Grounded directly on
// original_source/src/cmd/notify.rs's flag layout and publish_event.
package notify

import (
	"strconv"

	"github.com/corekv/corekv/internal/pubsub"
)

type Class uint32

const (
	ClassKeyspace Class = 1 << iota // K
	ClassKeyevent                   // E
	ClassGeneric                    // g
	ClassString                     // $
	ClassList                       // l
	ClassSet                        // s
	ClassHash                       // h
	ClassZSet                       // z
	ClassExpired                    // x
	ClassEvicted                    // e
	ClassStream                     // t
	ClassKeyMiss                    // m
)

// ClassAll is the 'A' shorthand: every type class except the meta
// classes K/E/m, matching the original's NOTIFY_ALL.
const ClassAll = ClassGeneric | ClassString | ClassList | ClassSet |
	ClassHash | ClassZSet | ClassExpired | ClassEvicted | ClassStream

// ParseFlags decodes the notify-keyspace-events config string into a
// bit set.
func ParseFlags(s string) Class {
	var flags Class
	for _, c := range s {
		switch c {
		case 'K':
			flags |= ClassKeyspace
		case 'E':
			flags |= ClassKeyevent
		case 'g':
			flags |= ClassGeneric
		case '$':
			flags |= ClassString
		case 'l':
			flags |= ClassList
		case 's':
			flags |= ClassSet
		case 'h':
			flags |= ClassHash
		case 'z':
			flags |= ClassZSet
		case 't':
			flags |= ClassStream
		case 'x':
			flags |= ClassExpired
		case 'e':
			flags |= ClassEvicted
		case 'm':
			flags |= ClassKeyMiss
		case 'A':
			flags |= ClassAll
		}
	}
	return flags
}

// String renders flags back to the class-letter form (used by CONFIG GET
// notify-keyspace-events).
func (c Class) String() string {
	var out []byte
	add := func(present Class, letter byte) {
		if c&present != 0 {
			out = append(out, letter)
		}
	}
	add(ClassKeyspace, 'K')
	add(ClassKeyevent, 'E')
	add(ClassGeneric, 'g')
	add(ClassString, '$')
	add(ClassList, 'l')
	add(ClassSet, 's')
	add(ClassHash, 'h')
	add(ClassZSet, 'z')
	add(ClassStream, 't')
	add(ClassExpired, 'x')
	add(ClassEvicted, 'e')
	add(ClassKeyMiss, 'm')
	return string(out)
}

// Notifier publishes keyspace/keyevent notifications for commands that
// mutate the keyspace, per the server's currently configured class set.
type Notifier struct {
	pubsub *pubsub.Registry
	flags  Class
}

func NewNotifier(reg *pubsub.Registry) *Notifier {
	return &Notifier{pubsub: reg}
}

func (n *Notifier) SetFlags(flags Class) { n.flags = flags }
func (n *Notifier) Flags() Class         { return n.flags }

// Notify publishes event (e.g. "set", "expired", "lpush") for key in
// database dbIndex under classFlags, honoring both whether that event's
// class is enabled and whether K and/or E channels are enabled.
func (n *Notifier) Notify(classFlags Class, dbIndex int, event string, key []byte) {
	if n.flags&(ClassKeyspace|ClassKeyevent) == 0 {
		return
	}
	if n.flags&classFlags == 0 {
		return
	}

	if n.flags&ClassKeyspace != 0 {
		channel := keyspaceChannel(dbIndex, key)
		n.pubsub.Publish(channel, []byte(event))
	}
	if n.flags&ClassKeyevent != 0 {
		channel := keyeventChannel(dbIndex, event)
		n.pubsub.Publish(channel, key)
	}
}

func keyspaceChannel(dbIndex int, key []byte) string {
	return "__keyspace@" + strconv.Itoa(dbIndex) + "__:" + string(key)
}

func keyeventChannel(dbIndex int, event string) string {
	return "__keyevent@" + strconv.Itoa(dbIndex) + "__:" + event
}
