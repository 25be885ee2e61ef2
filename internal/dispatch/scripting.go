package dispatch

import (
	"strings"
	"time"

	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/script"
)

// dispatchScript handles EVAL/EVALSHA/SCRIPT LOAD|EXISTS|FLUSH (spec.md
// §4.12). A script's redis.call/pcall re-enters Dispatch with
// nested=true so the nested command does not queue under an open
// MULTI, re-check auth, or get logged a second time by the caller.
func (s *Server) dispatchScript(conn *Conn, verb string, argv [][]byte, nested bool) (resp.Frame, bool) {
	switch verb {
	case "eval", "evalsha":
		if len(argv) < 3 {
			return errWrongArgs(verb), true
		}
		numKeys, ok := parseIntArg(argv[2])
		if !ok || numKeys < 0 {
			return errNotInt(), true
		}
		rest := argv[3:]
		if numKeys > len(rest) {
			return resp.Err("ERR Number of keys can't be greater than number of args"), true
		}
		keys := bstrs(rest[:numKeys])
		scriptArgv := bstrs(rest[numKeys:])
		call := s.scriptDispatcher(conn)

		v, err, timedOut := s.runScript(func() (script.Value, error) {
			if verb == "eval" {
				_, value, evalErr := s.Scripts.EvalBody(string(argv[1]), keys, scriptArgv, call)
				return value, evalErr
			}
			return s.Scripts.EvalSHA(strings.ToLower(string(argv[1])), keys, scriptArgv, call)
		})
		if timedOut {
			return errScriptBusy(), true
		}
		if err == script.ErrNoScript {
			return resp.Err(err.Error()), true
		}
		if err != nil {
			return resp.Errf("ERR %s", err.Error()), true
		}
		return scriptValueToFrame(v), true

	case "script":
		return s.dispatchScriptSub(argv), true

	default:
		return resp.Frame{}, false
	}
}

// runScript bounds an EVAL/EVALSHA call by s.ScriptTimeout (config's
// scripting-timeout-ms). A zero timeout runs unbounded. On timeout the
// evaluation goroutine is left to finish in the background since
// internal/script has no cancellation hook; this only bounds how long
// the calling connection waits.
func (s *Server) runScript(run func() (script.Value, error)) (script.Value, error, bool) {
	if s.ScriptTimeout <= 0 {
		v, err := run()
		return v, err, false
	}
	type result struct {
		v   script.Value
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := run()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err, false
	case <-time.After(s.ScriptTimeout):
		return script.Value{}, nil, true
	}
}

func (s *Server) dispatchScriptSub(argv [][]byte) resp.Frame {
	if len(argv) < 2 {
		return errWrongArgs("script")
	}
	switch strings.ToUpper(string(argv[1])) {
	case "LOAD":
		if len(argv) != 3 {
			return errWrongArgs("script|load")
		}
		digest, err := s.Scripts.Load(string(argv[2]))
		if err != nil {
			return resp.Errf("ERR Error compiling script: %s", err.Error())
		}
		return resp.BulkStr(digest)
	case "EXISTS":
		items := make([]resp.Frame, len(argv)-2)
		for i, sha := range argv[2:] {
			if s.Scripts.Exists(strings.ToLower(string(sha))) {
				items[i] = resp.Int(1)
			} else {
				items[i] = resp.Int(0)
			}
		}
		return resp.ArrSlice(items)
	case "FLUSH":
		s.Scripts.Flush()
		return resp.Simple("OK")
	default:
		return resp.Err("ERR unknown SCRIPT subcommand")
	}
}

// scriptDispatcher builds the redis.call/pcall hook bound to conn: the
// nested command runs through the ordinary dispatch path with
// nested=true so it is not re-queued, re-authenticated, or re-logged.
func (s *Server) scriptDispatcher(conn *Conn) script.Dispatcher {
	return func(argv []string) script.Value {
		frameArgv := make([][]byte, len(argv))
		for i, a := range argv {
			frameArgv[i] = []byte(a)
		}
		reply, _ := Dispatch(s, conn, frameArgv, true)
		return frameToScriptValue(reply)
	}
}

func frameToScriptValue(f resp.Frame) script.Value {
	switch f.Kind {
	case resp.SimpleString:
		return script.StatusValue(f.Str)
	case resp.Error:
		return script.ErrValue(f.Str)
	case resp.Integer:
		return script.IntValue(f.Int)
	case resp.BulkString:
		if f.Null {
			return script.NullValue()
		}
		return script.BulkValue(string(f.Bulk))
	case resp.Array:
		if f.Null {
			return script.NullValue()
		}
		items := make([]script.Value, len(f.Items))
		for i, it := range f.Items {
			items[i] = frameToScriptValue(it)
		}
		return script.ArrayValue(items)
	default:
		return script.NullValue()
	}
}

func scriptValueToFrame(v script.Value) resp.Frame {
	switch {
	case v.Status != nil:
		return resp.Simple(*v.Status)
	case v.Err != nil:
		return resp.Err(*v.Err)
	case v.Int != nil:
		return resp.Int(*v.Int)
	case v.Bulk != nil:
		return resp.BulkStr(*v.Bulk)
	case v.Array != nil:
		items := make([]resp.Frame, len(v.Array))
		for i, e := range v.Array {
			items[i] = scriptValueToFrame(e)
		}
		return resp.ArrSlice(items)
	default:
		return resp.Null()
	}
}
