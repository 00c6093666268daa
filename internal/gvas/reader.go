package gvas

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// reader is a little-endian cursor with a sticky error: once a read fails,
// every later read returns a zero value and err keeps the first failure.
type reader struct {
	data []byte
	pos  int
	err  error
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int { return len(r.data) - r.pos }

func (r *reader) eof() bool { return r.pos >= len(r.data) }

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.remaining() {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, r.remaining())
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) rest() []byte {
	return r.bytes(r.remaining())
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) boolean() bool { return r.u8() != 0 }

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) f64() float64 { return math.Float64frombits(r.u64()) }

// fstring reads an Unreal FString: a signed length, positive for
// NUL-terminated 8-bit text and negative for NUL-terminated UTF-16LE units.
func (r *reader) fstring() string {
	size := r.i32()
	if r.err != nil || size == 0 {
		return ""
	}
	if size > 0 {
		b := r.take(int(size))
		if b == nil {
			return ""
		}
		return string(b[:len(b)-1])
	}
	if size == math.MinInt32 {
		r.err = fmt.Errorf("%w: invalid string length %d", ErrTruncated, size)
		return ""
	}
	units := int(-size)
	b := r.take(units * 2)
	if b == nil {
		return ""
	}
	s, err := utf16le.NewDecoder().Bytes(b[:len(b)-2])
	if err != nil {
		r.err = fmt.Errorf("decoding utf-16 string: %w", err)
		return ""
	}
	return string(s)
}

func (r *reader) guid() string {
	b := r.take(16)
	if b == nil {
		return ""
	}
	return FormatGUID(b)
}

// optionalGUID reads a presence flag and, when set, a GUID.
func (r *reader) optionalGUID() (string, bool) {
	if !r.boolean() {
		return "", false
	}
	return r.guid(), true
}

// count reads a u32 element count and rejects counts that cannot fit in the
// remaining bytes at minWidth bytes per element.
func (r *reader) count(minWidth int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if minWidth > 0 && uint64(n)*uint64(minWidth) > uint64(r.remaining()) {
		r.err = fmt.Errorf("%w: %d elements exceed remaining %d bytes", ErrTruncated, n, r.remaining())
		return 0
	}
	return int(n)
}
