package dispatch

import (
	"strings"

	"github.com/corekv/corekv/internal/acl"
	"github.com/corekv/corekv/internal/resp"
)

// dispatchACL handles the ACL subcommand family (spec.md §4.8): WHOAMI,
// LIST, USERS, GETUSER, SETUSER, DELUSER. AUTH itself is a top-level
// verb handled directly by Dispatch since it isn't namespaced under
// ACL.
func (s *Server) dispatchACL(conn *Conn, verb string, argv [][]byte) (resp.Frame, bool) {
	if verb != "acl" {
		return resp.Frame{}, false
	}
	if len(argv) < 2 {
		return errWrongArgs("acl"), true
	}
	sub := strings.ToUpper(string(argv[1]))
	switch sub {
	case "WHOAMI":
		return resp.BulkStr(conn.User.Name), true

	case "USERS", "LIST":
		names := s.ACL.Names()
		items := make([]resp.Frame, len(names))
		for i, name := range names {
			if sub == "USERS" {
				items[i] = resp.BulkStr(name)
				continue
			}
			u, _ := s.ACL.GetUser(name)
			items[i] = resp.BulkStr(u.String())
		}
		return resp.ArrSlice(items), true

	case "GETUSER":
		if len(argv) != 3 {
			return errWrongArgs("acl|getuser"), true
		}
		u, ok := s.ACL.GetUser(string(argv[2]))
		if !ok {
			return resp.Null(), true
		}
		return resp.BulkStr(u.String()), true

	case "SETUSER":
		if len(argv) < 3 {
			return errWrongArgs("acl|setuser"), true
		}
		name := string(argv[2])
		u, ok := s.ACL.GetUser(name)
		if ok {
			u = u.Clone()
		} else {
			u = acl.NewUser(name)
		}
		rules := make([]string, 0, len(argv)-3)
		for _, r := range argv[3:] {
			rules = append(rules, string(r))
		}
		u.ParseRules(rules)
		s.ACL.SetUser(u)
		return resp.Simple("OK"), true

	case "DELUSER":
		if len(argv) < 3 {
			return errWrongArgs("acl|deluser"), true
		}
		var n int64
		for _, nameB := range argv[2:] {
			if s.ACL.DelUser(string(nameB)) {
				n++
			}
		}
		return resp.Int(n), true

	default:
		return resp.Err("ERR unknown ACL subcommand"), true
	}
}
