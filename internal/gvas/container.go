package gvas

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// SaveType is the compression byte following the container magic.
type SaveType byte

const (
	// SaveTypeUncompressed marks an Oodle or raw payload this package does not inflate.
	SaveTypeUncompressed SaveType = 0x30
	// SaveTypeZlib is a single zlib layer.
	SaveTypeZlib SaveType = 0x31
	// SaveTypeDoubleZlib is two nested zlib layers.
	SaveTypeDoubleZlib SaveType = 0x32
)

const containerHeaderLen = 12

var (
	magicPlZ = []byte("PlZ")
	magicPlM = []byte("PlM")
	magicCNK = []byte("CNK")
)

// Decompress strips the .sav container framing and returns the inner GVAS
// stream.
//
// Postcondition: Returns a *DecodeError wrapping ErrBadMagic,
// ErrUnsupportedCompression, ErrLengthMismatch, or ErrTruncated on malformed
// input.
func Decompress(data []byte) ([]byte, SaveType, error) {
	if len(data) < containerHeaderLen {
		return nil, 0, &DecodeError{Offset: 0, Err: fmt.Errorf("%w: container header needs %d bytes, have %d", ErrTruncated, containerHeaderLen, len(data))}
	}
	uncompressedLen := binary.LittleEndian.Uint32(data[0:4])
	compressedLen := binary.LittleEndian.Uint32(data[4:8])
	magic := data[8:11]
	saveType := SaveType(data[11])
	offset := containerHeaderLen

	if bytes.Equal(magic, magicCNK) {
		if len(data) < containerHeaderLen*2 {
			return nil, 0, &DecodeError{Offset: containerHeaderLen, Err: fmt.Errorf("%w: chunked header", ErrTruncated)}
		}
		uncompressedLen = binary.LittleEndian.Uint32(data[12:16])
		compressedLen = binary.LittleEndian.Uint32(data[16:20])
		magic = data[20:23]
		saveType = SaveType(data[23])
		offset = containerHeaderLen * 2
	}

	switch {
	case bytes.Equal(magic, magicPlM):
		return nil, saveType, &DecodeError{Offset: offset - 4, Err: fmt.Errorf("%w: Oodle (PlM) containers are not supported", ErrUnsupportedCompression)}
	case !bytes.Equal(magic, magicPlZ):
		return nil, saveType, &DecodeError{Offset: offset - 4, Err: fmt.Errorf("%w: container magic %q", ErrBadMagic, magic)}
	}

	var (
		out []byte
		err error
	)
	switch saveType {
	case SaveTypeZlib:
		if int(compressedLen) != len(data)-offset {
			return nil, saveType, &DecodeError{Offset: 4, Err: fmt.Errorf("%w: compressed length %d, payload %d", ErrLengthMismatch, compressedLen, len(data)-offset)}
		}
		out, err = inflate(data[offset:], uncompressedLen)
	case SaveTypeDoubleZlib:
		var first []byte
		first, err = inflate(data[offset:], compressedLen)
		if err == nil && int(compressedLen) != len(first) {
			return nil, saveType, &DecodeError{Offset: 4, Err: fmt.Errorf("%w: compressed length %d, inner payload %d", ErrLengthMismatch, compressedLen, len(first))}
		}
		if err == nil {
			out, err = inflate(first, uncompressedLen)
		}
	default:
		return nil, saveType, &DecodeError{Offset: offset - 1, Err: fmt.Errorf("%w: save type 0x%02x", ErrUnsupportedCompression, byte(saveType))}
	}
	if err != nil {
		return nil, saveType, &DecodeError{Offset: offset, Err: err}
	}
	if int(uncompressedLen) != len(out) {
		return nil, saveType, &DecodeError{Offset: 0, Err: fmt.Errorf("%w: uncompressed length %d, got %d", ErrLengthMismatch, uncompressedLen, len(out))}
	}
	return out, saveType, nil
}

// inflate decompresses one zlib layer, reading at most one byte past the
// declared length so an oversized stream fails without being buffered.
func inflate(b []byte, declared uint32) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib header: %v", ErrBadMagic, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, int64(declared)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflating: %v", ErrTruncated, err)
	}
	if len(out) > int(declared) {
		return nil, fmt.Errorf("%w: stream inflates past declared length %d", ErrLengthMismatch, declared)
	}
	return out, nil
}

func deflate(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, fmt.Errorf("deflating: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflating: %w", err)
	}
	return buf.Bytes(), nil
}

// Compress wraps a GVAS stream in a PlZ container of the given type.
//
// Precondition: saveType must be SaveTypeZlib or SaveTypeDoubleZlib.
// Postcondition: Decompress(Compress(gvas, t)) returns gvas.
func Compress(gvas []byte, saveType SaveType) ([]byte, error) {
	var (
		payload       []byte
		compressedLen int
		err           error
	)
	switch saveType {
	case SaveTypeZlib:
		payload, err = deflate(gvas)
		compressedLen = len(payload)
	case SaveTypeDoubleZlib:
		var first []byte
		first, err = deflate(gvas)
		if err == nil {
			compressedLen = len(first)
			payload, err = deflate(first)
		}
	default:
		return nil, fmt.Errorf("%w: save type 0x%02x", ErrUnsupportedCompression, byte(saveType))
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, containerHeaderLen+len(payload))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(gvas)))
	out = binary.LittleEndian.AppendUint32(out, uint32(compressedLen))
	out = append(out, magicPlZ...)
	out = append(out, byte(saveType))
	return append(out, payload...), nil
}
