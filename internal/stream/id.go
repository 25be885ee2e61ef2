// Package stream implements the append-ordered event log described in
// spec.md §4.4: StreamID ordering, the radix-tree-backed entry store,
// range queries, and consumer groups with pending-entry lists.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ID is a (ms, seq) pair with lexicographic total order, matching spec.md
// §4.4.
type ID struct {
	Ms  uint64
	Seq uint64
}

var (
	MinID = ID{0, 0}
	MaxID = ID{^uint64(0), ^uint64(0)}

	ErrExhausted  = errors.New("ERR the stream has exhausted the last possible ID")
	ErrInvalidID  = errors.New("ERR Invalid stream ID specified as stream command argument")
	ErrNotGreater = errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")
)

// Less reports whether id < other.
func (id ID) Less(other ID) bool {
	if id.Ms != other.Ms {
		return id.Ms < other.Ms
	}
	return id.Seq < other.Seq
}

func (id ID) LessEq(other ID) bool { return id == other || id.Less(other) }
func (id ID) Equal(other ID) bool  { return id == other }

func (id ID) String() string {
	return fmt.Sprintf("%d-%d", id.Ms, id.Seq)
}

// Bytes encodes id as the 16-byte big-endian key used by the radix tree:
// 8 bytes ms, 8 bytes seq, both big-endian (spec.md §4.3).
func (id ID) Bytes() []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], id.Ms)
	binary.BigEndian.PutUint64(b[8:16], id.Seq)
	return b
}

func IDFromBytes(b []byte) ID {
	return ID{
		Ms:  binary.BigEndian.Uint64(b[0:8]),
		Seq: binary.BigEndian.Uint64(b[8:16]),
	}
}

// ParseID parses the "ms-seq" string form. A bare "ms" means seq=0 unless
// seqDefault is supplied (used so that range bounds can default the
// sequence to 0 for a lower bound and MaxUint64 for an upper bound).
func ParseID(s string, seqDefault uint64) (ID, error) {
	switch s {
	case "-":
		return MinID, nil
	case "+":
		return MaxID, nil
	}
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return ID{}, ErrInvalidID
	}
	if len(parts) == 1 {
		return ID{Ms: ms, Seq: seqDefault}, nil
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return ID{}, ErrInvalidID
	}
	return ID{Ms: ms, Seq: seq}, nil
}

// NextAuto computes the ID to assign for a "*" placeholder given the
// current time in ms and the stream's last assigned ID (spec.md §4.4).
func NextAuto(nowMs uint64, last ID) (ID, error) {
	if last == MaxID {
		return ID{}, ErrExhausted
	}
	if nowMs > last.Ms {
		return ID{Ms: nowMs, Seq: 0}, nil
	}
	if last.Seq == ^uint64(0) {
		return ID{}, ErrExhausted
	}
	return ID{Ms: last.Ms, Seq: last.Seq + 1}, nil
}
