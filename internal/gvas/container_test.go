package gvas_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/palworld-lens/internal/gvas"
)

func TestCompress_RoundTripsBothSaveTypes(t *testing.T) {
	payload := []byte("GVAS payload with some repetition repetition repetition")
	for _, st := range []gvas.SaveType{gvas.SaveTypeZlib, gvas.SaveTypeDoubleZlib} {
		sav, err := gvas.Compress(payload, st)
		require.NoError(t, err)
		assert.Equal(t, "PlZ", string(sav[8:11]))
		assert.Equal(t, byte(st), sav[11])

		out, gotType, err := gvas.Decompress(sav)
		require.NoError(t, err)
		assert.Equal(t, st, gotType)
		assert.Equal(t, payload, out)
	}
}

func TestDecompress_ChunkedPrefix(t *testing.T) {
	payload := []byte("chunked")
	sav, err := gvas.Compress(payload, gvas.SaveTypeZlib)
	require.NoError(t, err)

	prefix := make([]byte, 0, 12)
	prefix = binary.LittleEndian.AppendUint32(prefix, uint32(len(payload)))
	prefix = binary.LittleEndian.AppendUint32(prefix, uint32(len(sav)-12))
	prefix = append(prefix, 'C', 'N', 'K', 0x31)

	out, _, err := gvas.Decompress(append(prefix, sav...))
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecompress_Errors(t *testing.T) {
	good, err := gvas.Compress([]byte("hello"), gvas.SaveTypeZlib)
	require.NoError(t, err)

	mutate := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), good...)
		return f(b)
	}

	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", []byte{1, 2, 3}, gvas.ErrTruncated},
		{"bad magic", mutate(func(b []byte) []byte { copy(b[8:11], "XYZ"); return b }), gvas.ErrBadMagic},
		{"oodle", mutate(func(b []byte) []byte { copy(b[8:11], "PlM"); return b }), gvas.ErrUnsupportedCompression},
		{"uncompressed type", mutate(func(b []byte) []byte { b[11] = 0x30; return b }), gvas.ErrUnsupportedCompression},
		{"compressed length", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint32(b[4:8], 1); return b }), gvas.ErrLengthMismatch},
		{"uncompressed length", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint32(b[0:4], 99); return b }), gvas.ErrLengthMismatch},
		{"truncated payload", mutate(func(b []byte) []byte {
			b = b[:len(b)-3]
			binary.LittleEndian.PutUint32(b[4:8], uint32(len(b)-12))
			return b
		}), gvas.ErrTruncated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := gvas.Decompress(tc.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			var de *gvas.DecodeError
			assert.True(t, errors.As(err, &de))
		})
	}
}

func TestDecompress_StreamLargerThanDeclared(t *testing.T) {
	payload := make([]byte, 64<<10)
	for _, st := range []gvas.SaveType{gvas.SaveTypeZlib, gvas.SaveTypeDoubleZlib} {
		sav, err := gvas.Compress(payload, st)
		require.NoError(t, err)
		binary.LittleEndian.PutUint32(sav[0:4], 16)

		out, _, err := gvas.Decompress(sav)
		require.Error(t, err, "save type %d", st)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, gvas.ErrLengthMismatch)
		var de *gvas.DecodeError
		assert.True(t, errors.As(err, &de))
	}
}

func TestCompress_RejectsUnsupportedType(t *testing.T) {
	_, err := gvas.Compress([]byte("x"), gvas.SaveTypeUncompressed)
	assert.ErrorIs(t, err, gvas.ErrUnsupportedCompression)
}

func TestProperty_CompressRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := rapid.SliceOf(rapid.Byte()).Draw(rt, "payload")
		st := rapid.SampledFrom([]gvas.SaveType{gvas.SaveTypeZlib, gvas.SaveTypeDoubleZlib}).Draw(rt, "type")
		sav, err := gvas.Compress(payload, st)
		if err != nil {
			rt.Fatalf("compress: %v", err)
		}
		out, _, err := gvas.Decompress(sav)
		if err != nil {
			rt.Fatalf("decompress: %v", err)
		}
		if len(out) != len(payload) || string(out) != string(payload) {
			rt.Fatalf("round trip mismatch")
		}
	})
}
