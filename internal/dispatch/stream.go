package dispatch

import (
	"strings"

	"github.com/corekv/corekv/internal/cmds"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/stream"
)

// dispatchStream handles XADD/XLEN/XRANGE/XREVRANGE/XDEL/XTRIM/XGROUP/
// XREADGROUP/XACK/XPENDING/XCLAIM, argv-parsing into internal/cmds'
// stream.go handlers.
func (s *Server) dispatchStream(conn *Conn, verb string, argv [][]byte) (resp.Frame, bool) {
	c := s.cmdContext(conn)
	args := argv[1:]

	switch verb {
	case "xadd":
		if len(args) < 4 {
			return errWrongArgs(verb), true
		}
		key := string(args[0])
		idTok := string(args[1])
		fv := args[2:]
		if len(fv)%2 != 0 {
			return errSyntax(), true
		}
		if idTok == "*" {
			return c.XAdd(key, nil, fv), true
		}
		id, err := stream.ParseID(idTok, 0)
		if err != nil {
			return errSyntax(), true
		}
		return c.XAdd(key, &id, fv), true

	case "xlen":
		if len(args) != 1 {
			return errWrongArgs(verb), true
		}
		return c.XLen(string(args[0])), true

	case "xrange", "xrevrange":
		if len(args) < 3 {
			return errWrongArgs(verb), true
		}
		reverse := verb == "xrevrange"
		startTok, endTok := string(args[1]), string(args[2])
		if reverse {
			startTok, endTok = endTok, startTok
		}
		start, err := stream.ParseID(startTok, 0)
		if err != nil {
			return errSyntax(), true
		}
		end, err := stream.ParseID(endTok, ^uint64(0))
		if err != nil {
			return errSyntax(), true
		}
		count := -1
		if len(args) >= 5 && strings.EqualFold(string(args[3]), "count") {
			n, ok := parseIntArg(args[4])
			if !ok {
				return errNotInt(), true
			}
			count = n
		}
		return c.XRange(string(args[0]), start, end, count, reverse), true

	case "xdel":
		if len(args) < 2 {
			return errWrongArgs(verb), true
		}
		ids, err := parseIDList(args[1:])
		if err != nil {
			return errSyntax(), true
		}
		return c.XDel(string(args[0]), ids), true

	case "xtrim":
		if len(args) < 3 {
			return errWrongArgs(verb), true
		}
		if !strings.EqualFold(string(args[1]), "maxlen") {
			return errSyntax(), true
		}
		lenTok := args[2]
		if string(lenTok) == "~" && len(args) >= 4 {
			lenTok = args[3]
		}
		n, ok := parseIntArg(lenTok)
		if !ok {
			return errNotInt(), true
		}
		return c.XTrim(string(args[0]), n), true

	case "xgroup":
		return s.dispatchXGroup(c, args)

	case "xreadgroup":
		return s.dispatchXReadGroup(c, args)

	case "xack":
		if len(args) < 3 {
			return errWrongArgs(verb), true
		}
		ids, err := parseIDList(args[2:])
		if err != nil {
			return errSyntax(), true
		}
		return c.XAck(string(args[0]), string(args[1]), ids), true

	case "xpending":
		if len(args) != 2 {
			return errWrongArgs(verb), true
		}
		return c.XPending(string(args[0]), string(args[1])), true

	case "xclaim":
		if len(args) < 5 {
			return errWrongArgs(verb), true
		}
		minIdle, ok := parseInt(args[2])
		if !ok {
			return errNotInt(), true
		}
		var ids []stream.ID
		justID := false
		for _, a := range args[3:] {
			if strings.EqualFold(string(a), "justid") {
				justID = true
				continue
			}
			id, err := stream.ParseID(string(a), 0)
			if err != nil {
				break
			}
			ids = append(ids, id)
		}
		return c.XClaim(string(args[0]), string(args[1]), string(args[2]), ids, minIdle, justID), true

	default:
		return resp.Frame{}, false
	}
}

func parseIDList(args [][]byte) ([]stream.ID, error) {
	ids := make([]stream.ID, 0, len(args))
	for _, a := range args {
		id, err := stream.ParseID(string(a), 0)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Server) dispatchXGroup(c *cmds.Context, args [][]byte) (resp.Frame, bool) {
	if len(args) < 1 {
		return errWrongArgs("xgroup"), true
	}
	switch strings.ToUpper(string(args[0])) {
	case "CREATE":
		if len(args) < 4 {
			return errWrongArgs("xgroup"), true
		}
		mkstream := len(args) >= 5 && strings.EqualFold(string(args[4]), "mkstream")
		var start stream.ID
		if string(args[3]) == "$" {
			start = stream.MaxID
		} else {
			id, err := stream.ParseID(string(args[3]), 0)
			if err != nil {
				return errSyntax(), true
			}
			start = id
		}
		return c.XGroupCreate(string(args[1]), string(args[2]), start, mkstream), true
	case "DESTROY":
		if len(args) != 3 {
			return errWrongArgs("xgroup"), true
		}
		return c.XGroupDestroy(string(args[1]), string(args[2])), true
	default:
		return errSyntax(), true
	}
}

func (s *Server) dispatchXReadGroup(c *cmds.Context, args [][]byte) (resp.Frame, bool) {
	// XREADGROUP GROUP <group> <consumer> [COUNT n] STREAMS <key> <id>
	if len(args) < 5 || !strings.EqualFold(string(args[0]), "group") {
		return errSyntax(), true
	}
	group, consumer := string(args[1]), string(args[2])
	rest := args[3:]
	count := -1
	if len(rest) >= 2 && strings.EqualFold(string(rest[0]), "count") {
		n, ok := parseIntArg(rest[1])
		if !ok {
			return errNotInt(), true
		}
		count = n
		rest = rest[2:]
	}
	if len(rest) < 3 || !strings.EqualFold(string(rest[0]), "streams") {
		return errSyntax(), true
	}
	rest = rest[1:]
	if len(rest)%2 != 0 {
		return errSyntax(), true
	}
	half := len(rest) / 2
	key := string(rest[0])
	idTok := string(rest[half])
	newOnly := idTok == ">"
	var from stream.ID
	if !newOnly {
		id, err := stream.ParseID(idTok, 0)
		if err != nil {
			return errSyntax(), true
		}
		from = id
	}
	return c.XReadGroup(key, group, consumer, count, newOnly, from), true
}
