package gvas

import (
	"encoding/binary"
	"fmt"
	"math"
)

// writer is the little-endian counterpart of reader. Errors are sticky.
type writer struct {
	buf []byte
	err error
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *writer) len() int { return len(w.buf) }

func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) u8(v byte) { w.buf = append(w.buf, v) }

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) i32(v int32) { w.u32(uint32(v)) }

func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *writer) i64(v int64) { w.u64(uint64(v)) }

func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func (w *writer) fstring(s string) {
	if s == "" {
		w.i32(0)
		return
	}
	if isASCII(s) {
		w.i32(int32(len(s) + 1))
		w.raw([]byte(s))
		w.u8(0)
		return
	}
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		w.fail(fmt.Errorf("encoding utf-16 string: %w", err))
		return
	}
	w.i32(-int32(len(b)/2 + 1))
	w.raw(b)
	w.u16(0)
}

func (w *writer) guid(s string) {
	b, err := ParseGUID(s)
	if err != nil {
		w.fail(err)
		return
	}
	w.raw(b[:])
}

func (w *writer) optionalGUID(s string, ok bool) {
	w.boolean(ok)
	if ok {
		w.guid(s)
	}
}

// reserveU64 writes a placeholder and returns its offset for patchU64.
func (w *writer) reserveU64() int {
	pos := len(w.buf)
	w.u64(0)
	return pos
}

func (w *writer) patchU64(pos int, v uint64) {
	binary.LittleEndian.PutUint64(w.buf[pos:pos+8], v)
}

func (w *writer) reserveU32() int {
	pos := len(w.buf)
	w.u32(0)
	return pos
}

func (w *writer) patchU32(pos int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[pos:pos+4], v)
}
