package dispatch

import "github.com/corekv/corekv/internal/resp"

// Error-taxonomy helpers (spec.md §7): every user-visible error is the
// wire "error" shape with an uppercase classifier token prefix.

func errUnknownCommand(verb string) resp.Frame {
	return resp.Errf("ERR unknown command '%s'", verb)
}

func errWrongArgs(verb string) resp.Frame {
	return resp.Errf("ERR wrong number of arguments for '%s' command", verb)
}

func errNotInt() resp.Frame {
	return resp.Err("ERR value is not an integer or out of range")
}

func errNotFloat() resp.Frame {
	return resp.Err("ERR value is not a valid float")
}

func errSyntax() resp.Frame {
	return resp.Err("ERR syntax error")
}

func errNoAuth() resp.Frame {
	return resp.Err("NOAUTH Authentication required")
}

func errWrongPass() resp.Frame {
	return resp.Err("WRONGPASS invalid username-password pair or user is disabled")
}

func errNoPerm(what string) resp.Frame {
	return resp.Errf("NOPERM this user has no permissions to %s", what)
}

func errNotInMulti() resp.Frame {
	return resp.Err("ERR EXEC without MULTI")
}

func errScriptBusy() resp.Frame {
	return resp.Err("BUSY script exceeded its time limit")
}
