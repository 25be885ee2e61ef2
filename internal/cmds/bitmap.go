package cmds

import (
	"math/bits"

	"github.com/corekv/corekv/internal/notify"
	"github.com/corekv/corekv/internal/resp"
	"github.com/corekv/corekv/internal/store"
)

const maxBitOffset = 1 << 32 // spec.md §4.13: 32-bit offset space, max 2^32-1 bits

// SetBit implements SETBIT, grounded on
// original_source/src/cmd/bitmap.rs's setbit (grow-on-demand byte
// array, returns the previous bit value).
func (c *Context) SetBit(key string, offset uint64, bit byte) resp.Frame {
	if offset >= maxBitOffset {
		return resp.Err("ERR bit offset is not an integer or out of range")
	}
	if bit != 0 && bit != 1 {
		return resp.Err("ERR bit is not an integer or out of range")
	}
	byteOff := int(offset / 8)
	bitInByte := byte(7 - offset%8)

	var oldBit int64
	var typeErr bool
	c.Store.Update(key, func(e *store.Entry, exists bool) (*store.Entry, bool) {
		if exists && e.Value.Kind != store.KindString {
			typeErr = true
			return e, false
		}
		if !exists {
			e = store.NewEntry(store.NewString(nil))
		}
		if byteOff >= len(e.Value.Str) {
			grown := make([]byte, byteOff+1)
			copy(grown, e.Value.Str)
			e.Value.Str = grown
		}
		old := (e.Value.Str[byteOff] >> bitInByte) & 1
		oldBit = int64(old)
		if bit == 1 {
			e.Value.Str[byteOff] |= 1 << bitInByte
		} else {
			e.Value.Str[byteOff] &^= 1 << bitInByte
		}
		return e, false
	})
	if typeErr {
		return errWrongType()
	}
	c.touch(notify.ClassString, "setbit", key)
	return resp.Int(oldBit)
}

// GetBit implements GETBIT.
func (c *Context) GetBit(key string, offset uint64) resp.Frame {
	if offset >= maxBitOffset {
		return resp.Err("ERR bit offset is not an integer or out of range")
	}
	byteOff := int(offset / 8)
	bitInByte := byte(7 - offset%8)

	var bit int64
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindString {
			typeErr = true
			return
		}
		if byteOff >= len(e.Value.Str) {
			return
		}
		bit = int64((e.Value.Str[byteOff] >> bitInByte) & 1)
	})
	if typeErr {
		return errWrongType()
	}
	return resp.Int(bit)
}

// BitCount implements BITCOUNT, ranged in BYTE (default) or BIT mode
// with negative indices counted from the end (spec.md §4.13).
func (c *Context) BitCount(key string, hasRange bool, start, end int, bitMode bool) resp.Frame {
	var count int64
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindString {
			typeErr = true
			return
		}
		data := e.Value.Str
		if !hasRange {
			for _, b := range data {
				count += int64(bits.OnesCount8(b))
			}
			return
		}
		if bitMode {
			totalBits := len(data) * 8
			s, e2, ok := clampRange(start, end, totalBits)
			if !ok {
				return
			}
			for i := s; i <= e2; i++ {
				byteIdx := i / 8
				bitIdx := byte(7 - i%8)
				if (data[byteIdx]>>bitIdx)&1 == 1 {
					count++
				}
			}
			return
		}
		s, e2, ok := clampRange(start, end, len(data))
		if !ok {
			return
		}
		for i := s; i <= e2; i++ {
			count += int64(bits.OnesCount8(data[i]))
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.Int(count)
}

// BitPos implements BITPOS: first occurrence of bit in the optional
// byte/bit range, -1 if not found.
func (c *Context) BitPos(key string, bit byte, hasRange bool, start, end int, bitMode bool) resp.Frame {
	var pos int64 = -1
	var typeErr bool
	c.Store.View(key, func(e *store.Entry, exists bool) {
		if !exists {
			return
		}
		if e.Value.Kind != store.KindString {
			typeErr = true
			return
		}
		data := e.Value.Str
		totalBits := len(data) * 8
		s, e2 := 0, totalBits-1
		if hasRange {
			if bitMode {
				var ok bool
				s, e2, ok = clampRange(start, end, totalBits)
				if !ok {
					return
				}
			} else {
				var ok bool
				bs, be, ok2 := clampRange(start, end, len(data))
				ok = ok2
				if !ok {
					return
				}
				s, e2 = bs*8, be*8+7
			}
		}
		for i := s; i <= e2 && i < totalBits; i++ {
			byteIdx := i / 8
			bitIdx := byte(7 - i%8)
			if (data[byteIdx]>>bitIdx)&1 == bit {
				pos = int64(i)
				return
			}
		}
	})
	if typeErr {
		return errWrongType()
	}
	return resp.Int(pos)
}
