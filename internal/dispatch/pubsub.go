package dispatch

import (
	"strings"

	"github.com/corekv/corekv/internal/resp"
)

// dispatchPubSub handles SUBSCRIBE/UNSUBSCRIBE/PSUBSCRIBE/
// PUNSUBSCRIBE/PUBLISH/PUBSUB (spec.md §4.9). Each call returns a single
// reply frame; subscribe describes the shape a SUBSCRIBE with several
// channel arguments gets.
func (s *Server) dispatchPubSub(conn *Conn, verb string, argv [][]byte) (resp.Frame, bool) {
	switch verb {
	case "subscribe":
		if len(argv) < 2 {
			return errWrongArgs(verb), true
		}
		return s.subscribe(conn, argv[1:], false), true
	case "psubscribe":
		if len(argv) < 2 {
			return errWrongArgs(verb), true
		}
		return s.subscribe(conn, argv[1:], true), true
	case "unsubscribe":
		return s.unsubscribe(conn, argv[1:], false), true
	case "punsubscribe":
		return s.unsubscribe(conn, argv[1:], true), true
	case "publish":
		if len(argv) != 3 {
			return errWrongArgs(verb), true
		}
		n := s.PubSub.Publish(string(argv[1]), argv[2])
		return resp.Int(int64(n)), true
	case "pubsub":
		return s.pubsubIntrospect(argv), true
	default:
		return resp.Frame{}, false
	}
}

// subscribe registers conn against each channel/pattern. With one name
// it returns that name's confirmation array; with several it returns one
// array holding a confirmation array per name, each carrying the
// subscription count as of that name, since Dispatch returns a single
// reply per call.
func (s *Server) subscribe(conn *Conn, names [][]byte, pattern bool) resp.Frame {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	replies := make([]resp.Frame, 0, len(names))
	for _, nameB := range names {
		name := string(nameB)
		kind := "subscribe"
		if pattern {
			kind = "psubscribe"
			conn.patterns[name] = struct{}{}
			s.PubSub.PSubscribe(name, conn)
		} else {
			conn.channels[name] = struct{}{}
			s.PubSub.Subscribe(name, conn)
		}
		replies = append(replies, resp.Arr(
			resp.BulkStr(kind), resp.BulkStr(name), resp.Int(int64(len(conn.channels)+len(conn.patterns))),
		))
	}
	if len(replies) == 1 {
		return replies[0]
	}
	return resp.ArrSlice(replies)
}

func (s *Server) unsubscribe(conn *Conn, names [][]byte, pattern bool) resp.Frame {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(names) == 0 {
		if pattern {
			for name := range conn.patterns {
				names = append(names, []byte(name))
			}
		} else {
			for name := range conn.channels {
				names = append(names, []byte(name))
			}
		}
	}
	kind := "unsubscribe"
	if pattern {
		kind = "punsubscribe"
	}
	replies := make([]resp.Frame, 0, len(names))
	for _, nameB := range names {
		name := string(nameB)
		if pattern {
			delete(conn.patterns, name)
			s.PubSub.PUnsubscribe(name, conn.ConnID)
		} else {
			delete(conn.channels, name)
			s.PubSub.Unsubscribe(name, conn.ConnID)
		}
		replies = append(replies, resp.Arr(
			resp.BulkStr(kind), resp.BulkStr(name), resp.Int(int64(len(conn.channels)+len(conn.patterns))),
		))
	}
	if len(replies) == 0 {
		return resp.Arr(resp.BulkStr(kind), resp.Null(), resp.Int(0))
	}
	if len(replies) == 1 {
		return replies[0]
	}
	return resp.ArrSlice(replies)
}

func (s *Server) pubsubIntrospect(argv [][]byte) resp.Frame {
	if len(argv) < 2 {
		return errWrongArgs("pubsub")
	}
	switch strings.ToUpper(string(argv[1])) {
	case "CHANNELS":
		pattern := ""
		if len(argv) >= 3 {
			pattern = string(argv[2])
		}
		names := s.PubSub.ChannelNames(pattern)
		items := make([]resp.Frame, len(names))
		for i, n := range names {
			items[i] = resp.BulkStr(n)
		}
		return resp.ArrSlice(items)
	case "NUMSUB":
		items := make([]resp.Frame, 0, 2*len(argv[2:]))
		for _, chB := range argv[2:] {
			ch := string(chB)
			items = append(items, resp.BulkStr(ch), resp.Int(int64(s.PubSub.NumSubscribers(ch))))
		}
		return resp.ArrSlice(items)
	case "NUMPAT":
		return resp.Int(int64(s.PubSub.NumPatterns()))
	default:
		return resp.Err("ERR unknown PUBSUB subcommand")
	}
}
