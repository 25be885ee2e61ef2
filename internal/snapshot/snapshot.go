// Package snapshot implements the point-in-time dump format described in
// spec.md §5: a magic header, a stream of typed opcodes describing
// databases/keys/expirations, and a trailing CRC-64 checksum. The layout
// is grounded directly on the original implementation's RDB-style encoder
// (length-prefixed strings, 0xFA/0xFB/0xFC/0xFD/0xFE/0xFF opcodes).
package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc64"
	"io"

	"github.com/golang/snappy"

	"github.com/corekv/corekv/internal/store"
	"github.com/corekv/corekv/internal/stream"
)

const (
	magic      = "COREKV09"
	formatAux1 = "corekv-ver"
	formatAux2 = "ctime"
)

// Opcodes, named the way the original format names them even though this
// is a from-scratch wire layout rather than a byte-compatible RDB file.
const (
	opAux          = 0xFA
	opResizeDB     = 0xFB
	opExpireMs     = 0xFC
	opSelectDB     = 0xFE
	opEOF          = 0xFF
)

// Value type tags, one per store.Kind.
const (
	typeString Kind = 0
	typeList   Kind = 1
	typeSet    Kind = 2
	typeZSet   Kind = 3
	typeHash   Kind = 4
	typeStream Kind = 5
	typeSketch Kind = 6
)

type Kind = byte

var crcTable = crc64.MakeTable(crc64.ISO)

var (
	ErrBadMagic    = errors.New("snapshot: bad magic header")
	ErrTruncated   = errors.New("snapshot: truncated input")
	ErrChecksum    = errors.New("snapshot: checksum mismatch")
	ErrUnknownType = errors.New("snapshot: unknown value type byte")
)

// KeyRecord is one decoded key for the Load callback: its database index,
// key, value, and millisecond absolute expiration (0 means none).
type KeyRecord struct {
	DBIndex   int
	Key       string
	Value     store.Value
	ExpiresAt int64
}

// Encoder streams a full snapshot to w, computing a running CRC-64 over
// every byte written (including the magic header) and appending it after
// the EOF opcode.
type Encoder struct {
	w       io.Writer
	crcSum  uint64
	nowUnix int64 // seconds, for the ctime aux field
}

func NewEncoder(w io.Writer, nowUnixSeconds int64) *Encoder {
	return &Encoder{w: w, nowUnix: nowUnixSeconds}
}

func (e *Encoder) write(b []byte) error {
	if _, err := e.w.Write(b); err != nil {
		return err
	}
	e.crcSum = crc64.Update(e.crcSum, crcTable, b)
	return nil
}

func (e *Encoder) writeByte(b byte) error { return e.write([]byte{b}) }

func (e *Encoder) writeU64(v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return e.write(b[:])
}

// writeLen encodes a length using a three-tier varint-ish scheme: 6 bits
// inline, 14 bits in two bytes (0x40 marker), or a full 4-byte form
// (0x80 marker) for anything larger — matching the original encoder's
// write_len.
func (e *Encoder) writeLen(n uint64) error {
	switch {
	case n < 1<<6:
		return e.writeByte(byte(n) & 0x3F)
	case n < 1<<14:
		if err := e.writeByte(byte(n>>8)&0x3F | 0x40); err != nil {
			return err
		}
		return e.writeByte(byte(n))
	default:
		if err := e.writeByte(0x80); err != nil {
			return err
		}
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		return e.write(b[:])
	}
}

// writeString writes a flag byte and length-prefixed bytes, snappy-
// compressing the payload whenever doing so shrinks it: flag 1 marks the
// compressed form (raw length, compressed length, data), flag 0 the raw
// form (length, data). Compression cannot be switched off here.
func (e *Encoder) writeString(b []byte) error {
	compressed := snappy.Encode(nil, b)
	if len(compressed) < len(b) {
		if err := e.writeByte(1); err != nil {
			return err
		}
		if err := e.writeLen(uint64(len(b))); err != nil {
			return err
		}
		if err := e.writeLen(uint64(len(compressed))); err != nil {
			return err
		}
		return e.write(compressed)
	}
	if err := e.writeByte(0); err != nil {
		return err
	}
	if err := e.writeLen(uint64(len(b))); err != nil {
		return err
	}
	return e.write(b)
}

func (e *Encoder) writeAux(key, val string) error {
	if err := e.writeByte(opAux); err != nil {
		return err
	}
	if err := e.writeString([]byte(key)); err != nil {
		return err
	}
	return e.writeString([]byte(val))
}

// WriteHeader emits the magic string and the aux metadata fields. Callers
// invoke this once before streaming databases.
func (e *Encoder) WriteHeader(serverVersion string) error {
	if err := e.write([]byte(magic)); err != nil {
		return err
	}
	if err := e.writeAux(formatAux1, serverVersion); err != nil {
		return err
	}
	return e.writeAux(formatAux2, fmt.Sprintf("%d", e.nowUnix))
}

// WriteDatabase emits a SELECTDB/RESIZEDB pair and then one record per
// live key produced by iterate. iterate must call record(key, value,
// expiresAtMs) for every entry in ascending key order; expiresAtMs of 0
// means "no TTL".
func (e *Encoder) WriteDatabase(index int, keyCount, expireCount int, iterate func(record func(key string, v store.Value, expiresAtMs int64) error) error) error {
	if err := e.writeByte(opSelectDB); err != nil {
		return err
	}
	if err := e.writeLen(uint64(index)); err != nil {
		return err
	}
	if err := e.writeByte(opResizeDB); err != nil {
		return err
	}
	if err := e.writeLen(uint64(keyCount)); err != nil {
		return err
	}
	if err := e.writeLen(uint64(expireCount)); err != nil {
		return err
	}
	return iterate(func(key string, v store.Value, expiresAtMs int64) error {
		return e.writeRecord(key, v, expiresAtMs)
	})
}

func (e *Encoder) writeRecord(key string, v store.Value, expiresAtMs int64) error {
	if expiresAtMs != 0 {
		if err := e.writeByte(opExpireMs); err != nil {
			return err
		}
		if err := e.writeU64(uint64(expiresAtMs)); err != nil {
			return err
		}
	}

	switch v.Kind {
	case store.KindString:
		if err := e.writeByte(typeString); err != nil {
			return err
		}
		if err := e.writeString([]byte(key)); err != nil {
			return err
		}
		return e.writeString(v.Str)

	case store.KindList:
		if err := e.writeByte(typeList); err != nil {
			return err
		}
		if err := e.writeString([]byte(key)); err != nil {
			return err
		}
		if err := e.writeLen(uint64(v.List.Len())); err != nil {
			return err
		}
		for el := v.List.Front(); el != nil; el = el.Next() {
			if err := e.writeString(el.Value.([]byte)); err != nil {
				return err
			}
		}
		return nil

	case store.KindSet:
		if err := e.writeByte(typeSet); err != nil {
			return err
		}
		if err := e.writeString([]byte(key)); err != nil {
			return err
		}
		if err := e.writeLen(uint64(len(v.Set))); err != nil {
			return err
		}
		for member := range v.Set {
			if err := e.writeString([]byte(member)); err != nil {
				return err
			}
		}
		return nil

	case store.KindHash:
		if err := e.writeByte(typeHash); err != nil {
			return err
		}
		if err := e.writeString([]byte(key)); err != nil {
			return err
		}
		if err := e.writeLen(uint64(len(v.Hash))); err != nil {
			return err
		}
		for field, val := range v.Hash {
			if err := e.writeString([]byte(field)); err != nil {
				return err
			}
			if err := e.writeString(val); err != nil {
				return err
			}
		}
		return nil

	case store.KindZSet:
		if err := e.writeByte(typeZSet); err != nil {
			return err
		}
		if err := e.writeString([]byte(key)); err != nil {
			return err
		}
		members := v.ZSet.RangeByIndex(0, v.ZSet.Len()-1)
		if err := e.writeLen(uint64(len(members))); err != nil {
			return err
		}
		for _, m := range members {
			if err := e.writeString([]byte(m.Member)); err != nil {
				return err
			}
			if err := e.writeString([]byte(fmt.Sprintf("%g", m.Score))); err != nil {
				return err
			}
		}
		return nil

	case store.KindSketch:
		if err := e.writeByte(typeSketch); err != nil {
			return err
		}
		if err := e.writeString([]byte(key)); err != nil {
			return err
		}
		return e.writeString(v.Sketch)

	case store.KindStream:
		if err := e.writeByte(typeStream); err != nil {
			return err
		}
		if err := e.writeString([]byte(key)); err != nil {
			return err
		}
		return e.writeStream(v.Stream.(*stream.Stream))

	default:
		return fmt.Errorf("snapshot: unencodable value kind %v", v.Kind)
	}
}

func (e *Encoder) writeStream(s *stream.Stream) error {
	entries := s.Range(stream.MinID, stream.MaxID, 0)
	if err := e.writeLen(uint64(len(entries))); err != nil {
		return err
	}
	for _, ent := range entries {
		if err := e.writeU64(ent.ID.Ms); err != nil {
			return err
		}
		if err := e.writeU64(ent.ID.Seq); err != nil {
			return err
		}
		if err := e.writeLen(uint64(len(ent.Fields))); err != nil {
			return err
		}
		for _, fl := range ent.Fields {
			if err := e.writeString(fl.Name); err != nil {
				return err
			}
			if err := e.writeString(fl.Value); err != nil {
				return err
			}
		}
	}

	last := s.LastID()
	if err := e.writeU64(last.Ms); err != nil {
		return err
	}
	if err := e.writeU64(last.Seq); err != nil {
		return err
	}

	names := s.GroupNames()
	if err := e.writeLen(uint64(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		g, _ := s.Group(name)
		if err := e.writeString([]byte(name)); err != nil {
			return err
		}
		if err := e.writeU64(g.LastDelivered.Ms); err != nil {
			return err
		}
		if err := e.writeU64(g.LastDelivered.Seq); err != nil {
			return err
		}
		pending := g.Range(stream.MinID, stream.MaxID, 0, "")
		if err := e.writeLen(uint64(len(pending))); err != nil {
			return err
		}
		for _, pe := range pending {
			if err := e.writeU64(pe.ID.Ms); err != nil {
				return err
			}
			if err := e.writeU64(pe.ID.Seq); err != nil {
				return err
			}
			if err := e.writeString([]byte(pe.Consumer)); err != nil {
				return err
			}
			if err := e.writeU64(uint64(pe.DeliveryTime)); err != nil {
				return err
			}
			if err := e.writeLen(pe.DeliveryCount); err != nil {
				return err
			}
		}
		consumers := g.Consumers()
		if err := e.writeLen(uint64(len(consumers))); err != nil {
			return err
		}
		for _, c := range consumers {
			if err := e.writeString([]byte(c.Name)); err != nil {
				return err
			}
			if err := e.writeU64(uint64(c.SeenTime)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Finish writes the EOF opcode and appends the accumulated CRC-64.
func (e *Encoder) Finish() error {
	if err := e.writeByte(opEOF); err != nil {
		return err
	}
	_, err := e.w.Write(binaryLE(e.crcSum))
	return err
}

func binaryLE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// Decoder reverses Encoder, invoking a callback per decoded key.
type Decoder struct {
	r      *bufio.Reader
	crcSum uint64
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	d.crcSum = crc64.Update(d.crcSum, crcTable, []byte{b})
	return b, nil
}

func (d *Decoder) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, ErrTruncated
	}
	d.crcSum = crc64.Update(d.crcSum, crcTable, buf)
	return buf, nil
}

func (d *Decoder) readU64() (uint64, error) {
	b, err := d.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Decoder) readLen() (uint64, error) {
	b0, err := d.readByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b0&0x80 != 0:
		b, err := d.readN(4)
		if err != nil {
			return 0, err
		}
		return uint64(binary.BigEndian.Uint32(b)), nil
	case b0&0x40 != 0:
		b1, err := d.readByte()
		if err != nil {
			return 0, err
		}
		return uint64(b0&0x3F)<<8 | uint64(b1), nil
	default:
		return uint64(b0 & 0x3F), nil
	}
}

func (d *Decoder) readString() ([]byte, error) {
	flag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if flag == 0 {
		n, err := d.readLen()
		if err != nil {
			return nil, err
		}
		return d.readN(int(n))
	}
	rawLen, err := d.readLen()
	if err != nil {
		return nil, err
	}
	compLen, err := d.readLen()
	if err != nil {
		return nil, err
	}
	comp, err := d.readN(int(compLen))
	if err != nil {
		return nil, err
	}
	out := make([]byte, rawLen)
	n, err := snappy.Decode(out, comp)
	if err != nil {
		return nil, err
	}
	return n[:rawLen], nil
}

// VerifyHeader reads and checks the magic header, returning the aux
// key/value pairs it encounters before the first non-aux opcode.
func (d *Decoder) VerifyHeader() (map[string]string, error) {
	got, err := d.readN(len(magic))
	if err != nil {
		return nil, err
	}
	if string(got) != magic {
		return nil, ErrBadMagic
	}
	aux := map[string]string{}
	for {
		op, err := d.peekOp()
		if err != nil {
			return aux, err
		}
		if op != opAux {
			return aux, nil
		}
		if _, err := d.readByte(); err != nil {
			return aux, err
		}
		k, err := d.readString()
		if err != nil {
			return aux, err
		}
		v, err := d.readString()
		if err != nil {
			return aux, err
		}
		aux[string(k)] = string(v)
	}
}

func (d *Decoder) peekOp() (byte, error) {
	b, err := d.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Load drains the remainder of the stream, calling onKey for every
// decoded record, until the EOF opcode and trailing checksum are
// consumed. Stream-typed records are rebuilt with stream.New and the
// stream package's exported API.
func (d *Decoder) Load(onKey func(KeyRecord) error) error {
	dbIndex := 0
	for {
		op, err := d.readByte()
		if err != nil {
			return err
		}
		switch op {
		case opEOF:
			want, err := d.readRawU64LE()
			if err != nil {
				return err
			}
			if want != d.crcSum {
				return ErrChecksum
			}
			return nil
		case opAux:
			if _, err := d.readString(); err != nil {
				return err
			}
			if _, err := d.readString(); err != nil {
				return err
			}
		case opSelectDB:
			n, err := d.readLen()
			if err != nil {
				return err
			}
			dbIndex = int(n)
		case opResizeDB:
			if _, err := d.readLen(); err != nil {
				return err
			}
			if _, err := d.readLen(); err != nil {
				return err
			}
		case opExpireMs:
			ms, err := d.readU64()
			if err != nil {
				return err
			}
			rec, err := d.readValueRecord(dbIndex, int64(ms))
			if err != nil {
				return err
			}
			if err := onKey(rec); err != nil {
				return err
			}
		default:
			rec, err := d.readValueByTag(op, dbIndex, 0)
			if err != nil {
				return err
			}
			if err := onKey(rec); err != nil {
				return err
			}
		}
	}
}

func (d *Decoder) readRawU64LE() (uint64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func (d *Decoder) readValueRecord(dbIndex int, expiresAt int64) (KeyRecord, error) {
	tag, err := d.readByte()
	if err != nil {
		return KeyRecord{}, err
	}
	return d.readValueByTag(tag, dbIndex, expiresAt)
}

func (d *Decoder) readValueByTag(tag byte, dbIndex int, expiresAt int64) (KeyRecord, error) {
	keyB, err := d.readString()
	if err != nil {
		return KeyRecord{}, err
	}
	key := string(keyB)

	switch tag {
	case typeString:
		s, err := d.readString()
		if err != nil {
			return KeyRecord{}, err
		}
		return KeyRecord{DBIndex: dbIndex, Key: key, Value: store.NewString(s), ExpiresAt: expiresAt}, nil

	case typeList:
		n, err := d.readLen()
		if err != nil {
			return KeyRecord{}, err
		}
		v := store.NewList()
		for i := uint64(0); i < n; i++ {
			el, err := d.readString()
			if err != nil {
				return KeyRecord{}, err
			}
			v.List.PushBack(el)
		}
		return KeyRecord{DBIndex: dbIndex, Key: key, Value: v, ExpiresAt: expiresAt}, nil

	case typeSet:
		n, err := d.readLen()
		if err != nil {
			return KeyRecord{}, err
		}
		v := store.NewSet()
		for i := uint64(0); i < n; i++ {
			el, err := d.readString()
			if err != nil {
				return KeyRecord{}, err
			}
			v.Set[string(el)] = struct{}{}
		}
		return KeyRecord{DBIndex: dbIndex, Key: key, Value: v, ExpiresAt: expiresAt}, nil

	case typeHash:
		n, err := d.readLen()
		if err != nil {
			return KeyRecord{}, err
		}
		v := store.NewHash()
		for i := uint64(0); i < n; i++ {
			f, err := d.readString()
			if err != nil {
				return KeyRecord{}, err
			}
			val, err := d.readString()
			if err != nil {
				return KeyRecord{}, err
			}
			v.Hash[string(f)] = val
		}
		return KeyRecord{DBIndex: dbIndex, Key: key, Value: v, ExpiresAt: expiresAt}, nil

	case typeZSet:
		n, err := d.readLen()
		if err != nil {
			return KeyRecord{}, err
		}
		v := store.NewZSet()
		for i := uint64(0); i < n; i++ {
			member, err := d.readString()
			if err != nil {
				return KeyRecord{}, err
			}
			scoreStr, err := d.readString()
			if err != nil {
				return KeyRecord{}, err
			}
			var score float64
			if _, err := fmt.Sscanf(string(scoreStr), "%g", &score); err != nil {
				return KeyRecord{}, err
			}
			v.ZSet.Add(string(member), score)
		}
		return KeyRecord{DBIndex: dbIndex, Key: key, Value: v, ExpiresAt: expiresAt}, nil

	case typeSketch:
		blob, err := d.readString()
		if err != nil {
			return KeyRecord{}, err
		}
		return KeyRecord{DBIndex: dbIndex, Key: key, Value: store.NewSketch(blob), ExpiresAt: expiresAt}, nil

	case typeStream:
		s, err := d.readStream()
		if err != nil {
			return KeyRecord{}, err
		}
		return KeyRecord{DBIndex: dbIndex, Key: key, Value: store.NewStream(s), ExpiresAt: expiresAt}, nil

	default:
		return KeyRecord{}, ErrUnknownType
	}
}

func (d *Decoder) readStream() (*stream.Stream, error) {
	s := stream.New()
	n, err := d.readLen()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		ms, err := d.readU64()
		if err != nil {
			return nil, err
		}
		seq, err := d.readU64()
		if err != nil {
			return nil, err
		}
		fieldCount, err := d.readLen()
		if err != nil {
			return nil, err
		}
		fields := make([]stream.Field, 0, fieldCount)
		for j := uint64(0); j < fieldCount; j++ {
			name, err := d.readString()
			if err != nil {
				return nil, err
			}
			val, err := d.readString()
			if err != nil {
				return nil, err
			}
			fields = append(fields, stream.Field{Name: name, Value: val})
		}
		id := stream.ID{Ms: ms, Seq: seq}
		if _, err := s.Append(ms, &id, fields); err != nil && !errors.Is(err, stream.ErrNotGreater) {
			return nil, err
		}
	}

	lastMs, err := d.readU64()
	if err != nil {
		return nil, err
	}
	lastSeq, err := d.readU64()
	if err != nil {
		return nil, err
	}
	_ = lastMs
	_ = lastSeq

	groupCount, err := d.readLen()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < groupCount; i++ {
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		gMs, err := d.readU64()
		if err != nil {
			return nil, err
		}
		gSeq, err := d.readU64()
		if err != nil {
			return nil, err
		}
		g, err := s.CreateGroup(string(name), stream.ID{Ms: gMs, Seq: gSeq})
		if err != nil {
			return nil, err
		}

		pendingCount, err := d.readLen()
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j < pendingCount; j++ {
			pMs, err := d.readU64()
			if err != nil {
				return nil, err
			}
			pSeq, err := d.readU64()
			if err != nil {
				return nil, err
			}
			consumer, err := d.readString()
			if err != nil {
				return nil, err
			}
			devTime, err := d.readU64()
			if err != nil {
				return nil, err
			}
			devCount, err := d.readLen()
			if err != nil {
				return nil, err
			}
			id := stream.ID{Ms: pMs, Seq: pSeq}
			if _, ok := s.Get(id); ok {
				g.RestorePending(id, string(consumer), int64(devTime), devCount)
			}
		}

		consumerCount, err := d.readLen()
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j < consumerCount; j++ {
			if _, err := d.readString(); err != nil {
				return nil, err
			}
			if _, err := d.readU64(); err != nil {
				return nil, err
			}
		}
	}

	return s, nil
}
