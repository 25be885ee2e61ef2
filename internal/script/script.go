// Package script implements the embedded scripting runtime boundary
// described in spec.md §4.12: scripts are identified by content SHA-1
// for EVALSHA-style reuse, run serialized against a single runtime, and
// exchange values with the wire value universe under a fixed marshaling
// rule. As a boundary concern (spec.md line 5), only the contract is
// specified here, not a full language implementation — this runtime
// compiles and evaluates scripts with github.com/expr-lang/expr rather
// than embedding a complete Lua interpreter.
package script

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var (
	ErrNoScript = errors.New("NOSCRIPT No matching script")
)

// Value is the runtime's value universe, mirroring spec.md §4.12's
// marshaling table: simple string -> Status, error -> Err, integer ->
// Int, bulk string -> native Go string, null -> nil, array -> []Value.
type Value struct {
	Status *string
	Err    *string
	Int    *int64
	Bulk   *string
	Array  []Value
}

func StatusValue(s string) Value { return Value{Status: &s} }
func ErrValue(s string) Value    { return Value{Err: &s} }
func IntValue(i int64) Value     { return Value{Int: &i} }
func BulkValue(s string) Value   { return Value{Bulk: &s} }
func NullValue() Value           { return Value{} }
func ArrayValue(items []Value) Value { return Value{Array: items} }

func (v Value) IsNull() bool {
	return v.Status == nil && v.Err == nil && v.Int == nil && v.Bulk == nil && v.Array == nil
}

// toScriptEnv converts a Value into the plain-Go representation the expr
// environment deals with: {"ok": s} map for Status, {"err": s} map for
// Err, int64 as-is, string as-is, false for null, []any for arrays.
func toScriptEnv(v Value) any {
	switch {
	case v.Status != nil:
		return map[string]any{"ok": *v.Status}
	case v.Err != nil:
		return map[string]any{"err": *v.Err}
	case v.Int != nil:
		return *v.Int
	case v.Bulk != nil:
		return *v.Bulk
	case v.Array != nil:
		out := make([]any, len(v.Array))
		for i, item := range v.Array {
			out[i] = toScriptEnv(item)
		}
		return out
	default:
		return false
	}
}

// fromScriptEnv converts a script result back into the wire Value
// universe, per spec.md §4.12's table.
func fromScriptEnv(res any) Value {
	switch t := res.(type) {
	case nil:
		return NullValue()
	case bool:
		if t {
			return IntValue(1)
		}
		return NullValue()
	case string:
		return BulkValue(t)
	case int:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case float64:
		return IntValue(int64(t))
	case map[string]any:
		if errMsg, ok := t["err"]; ok {
			s, _ := errMsg.(string)
			return ErrValue(s)
		}
		if ok, ok2 := t["ok"]; ok2 {
			s, _ := ok.(string)
			return StatusValue(s)
		}
		return NullValue()
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = fromScriptEnv(e)
		}
		return ArrayValue(items)
	case Value:
		return t
	default:
		return NullValue()
	}
}

// Dispatcher is the call-into-engine hook a script invokes as redis.call
// / redis.pcall. It must execute argv through the same command pipeline
// a normal client request would use, with the "nested" flag set so the
// call does not re-log, re-mirror, or open a transaction of its own
// (spec.md line 133, line 174).
type Dispatcher func(argv []string) Value

// sha1Hex computes the hex SHA-1 digest Load caches a script under and
// EVALSHA looks it up by.
func sha1Hex(body string) string {
	sum := sha1.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Script is a compiled, cacheable script body.
type Script struct {
	SHA1    string
	Source  string
	program *vm.Program
}

// Runtime holds the compiled-script cache and serializes execution, per
// spec.md §4.12's "scripts run non-concurrently (serialized)" and
// §9's "the scripting runtime [is] guarded by [a] single mutex."
type Runtime struct {
	mu      sync.Mutex
	scripts map[string]*Script
}

func NewRuntime() *Runtime {
	return &Runtime{scripts: map[string]*Script{}}
}

// Load compiles body (if not already cached under its SHA-1) and
// returns the digest EVALSHA callers should use to re-invoke it.
func (r *Runtime) Load(body string) (string, error) {
	digest := sha1Hex(body)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scripts[digest]; ok {
		return digest, nil
	}

	program, err := expr.Compile(body, expr.AllowUndefinedVariables())
	if err != nil {
		return "", err
	}
	r.scripts[digest] = &Script{SHA1: digest, Source: body, program: program}
	return digest, nil
}

// Exists reports whether digest is already loaded.
func (r *Runtime) Exists(digest string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.scripts[digest]
	return ok
}

// Flush clears the whole script cache (SCRIPT FLUSH).
func (r *Runtime) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts = map[string]*Script{}
}

// EvalBody compiles body on the fly (EVAL) and runs it, returning the
// digest it was cached under alongside the result.
func (r *Runtime) EvalBody(body string, keys, argv []string, call Dispatcher) (string, Value, error) {
	digest, err := r.Load(body)
	if err != nil {
		return "", Value{}, err
	}
	v, err := r.EvalSHA(digest, keys, argv, call)
	return digest, v, err
}

// EvalSHA runs a previously-loaded script by digest (EVALSHA).
func (r *Runtime) EvalSHA(digest string, keys, argv []string, call Dispatcher) (Value, error) {
	r.mu.Lock()
	sc, ok := r.scripts[digest]
	r.mu.Unlock()
	if !ok {
		return Value{}, ErrNoScript
	}

	// Scripts run one at a time against this runtime (spec.md §4.12),
	// and each nested call() invocation raises by default, matching the
	// "two injected functions — one that ... raises on error" variant;
	// pcall is the data-returning counterpart.
	r.mu.Lock()
	defer r.mu.Unlock()

	var raised error
	callFn := func(args ...any) (any, error) {
		result := call(argsToStrings(args))
		if result.Err != nil {
			return nil, errors.New(*result.Err)
		}
		return toScriptEnv(result), nil
	}
	pcallFn := func(args ...any) any {
		result := call(argsToStrings(args))
		return toScriptEnv(result)
	}

	env := map[string]any{
		"KEYS":  toAnySlice(keys),
		"ARGV":  toAnySlice(argv),
		"call":  callFn,
		"pcall": pcallFn,
	}

	out, err := expr.Run(sc.program, env)
	if err != nil {
		raised = err
		return Value{}, raised
	}
	return fromScriptEnv(out), nil
}

// toAnySlice builds the KEYS/ARGV table exposed to scripts. spec.md
// §4.12 fixes 1-indexed access (KEYS[1], ARGV[1]) while expr indexes
// slices 0-based, so index 0 is a dummy placeholder that makes
// KEYS[1]/ARGV[1] land on the first real element.
func toAnySlice(ss []string) []any {
	out := make([]any, len(ss)+1)
	out[0] = nil
	for i, s := range ss {
		out[i+1] = s
	}
	return out
}

func argsToStrings(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch t := a.(type) {
		case string:
			out[i] = t
		case int64:
			out[i] = strconv.FormatInt(t, 10)
		case int:
			out[i] = strconv.Itoa(t)
		case float64:
			out[i] = strconv.FormatInt(int64(t), 10)
		default:
			out[i] = ""
		}
	}
	return out
}
