// Package store implements the keyed data engine: the tagged-union Value
// variants, per-key Entry metadata (expiration, LRU/LFU), and the
// thread-safe per-database keyspaces that hold them.
//
// Values are modeled as a closed tagged union rather than an interface
// hierarchy (spec §9 "Dynamic dispatch on the Value variant") — every
// command handler exhaustively switches on Kind, and adding a new variant
// means auditing every switch, the snapshot codec, and command-log replay.
package store

import "container/list"

// Kind tags which field of Value is populated.
type Kind uint8

const (
	KindString Kind = iota
	KindList
	KindHash
	KindSet
	KindZSet
	KindStream
	KindSketch
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindHash:
		return "hash"
	case KindSet:
		return "set"
	case KindZSet:
		return "zset"
	case KindStream:
		return "stream"
	case KindSketch:
		return "string" // HLL sketches ride on the string encoding, as upstream does
	default:
		return "none"
	}
}

// Value is the tagged union described in spec.md §3. Exactly the field
// matching Kind is meaningful; StreamVal is an interface{} to avoid an
// import cycle with the stream package (asserted back by callers that know
// the kind).
type Value struct {
	Kind Kind

	Str []byte

	List *list.List // element type: []byte

	Hash map[string][]byte

	Set map[string]struct{}

	ZSet *ZSet

	Stream any // *stream.Stream; kept untyped here to avoid a cycle.

	Sketch []byte // fixed-size HyperLogLog-style register blob
}

func NewString(b []byte) Value { return Value{Kind: KindString, Str: b} }
func NewList() Value           { return Value{Kind: KindList, List: list.New()} }
func NewHash() Value           { return Value{Kind: KindHash, Hash: map[string][]byte{}} }
func NewSet() Value            { return Value{Kind: KindSet, Set: map[string]struct{}{}} }
func NewZSet() Value           { return Value{Kind: KindZSet, ZSet: NewZSetStruct()} }
func NewStream(s any) Value    { return Value{Kind: KindStream, Stream: s} }
func NewSketch(b []byte) Value { return Value{Kind: KindSketch, Sketch: b} }

// WrongTypeError is returned whenever a command's expected Kind does not
// match the key's stored Kind (spec §3 invariants, §7 WRONGTYPE).
type WrongTypeError struct{}

func (WrongTypeError) Error() string {
	return "WRONGTYPE Operation against a key holding the wrong kind of value"
}

var ErrWrongType = WrongTypeError{}

// ApproxSize estimates a value's resident byte footprint for maxmemory
// accounting (spec.md §4.14). It is a rough per-variant sum, not an
// exact allocator accounting — good enough to rank keys and detect the
// cap being crossed, not to budget bytes precisely.
func (v Value) ApproxSize() int {
	const overhead = 48 // struct/map/list bookkeeping, approximated flat
	switch v.Kind {
	case KindString, KindSketch:
		return overhead + len(v.Str) + len(v.Sketch)
	case KindList:
		n := 0
		if v.List != nil {
			for e := v.List.Front(); e != nil; e = e.Next() {
				if b, ok := e.Value.([]byte); ok {
					n += overhead + len(b)
				}
			}
		}
		return n
	case KindHash:
		n := 0
		for k, val := range v.Hash {
			n += overhead + len(k) + len(val)
		}
		return n
	case KindSet:
		n := 0
		for k := range v.Set {
			n += overhead + len(k)
		}
		return n
	case KindZSet:
		if v.ZSet != nil {
			return overhead + v.ZSet.Len()*(overhead+16)
		}
		return overhead
	default:
		return overhead
	}
}
