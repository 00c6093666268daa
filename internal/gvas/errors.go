// Package gvas decodes and encodes Unreal Engine GVAS save streams and the
// compressed .sav container Palworld wraps them in.
package gvas

import (
	"errors"
	"fmt"
)

var (
	// ErrBadMagic is returned when a container or GVAS header has the wrong magic.
	ErrBadMagic = errors.New("bad magic")
	// ErrUnsupportedCompression is returned for container types this package cannot inflate.
	ErrUnsupportedCompression = errors.New("unsupported compression")
	// ErrLengthMismatch is returned when a declared container length does not match the data.
	ErrLengthMismatch = errors.New("length mismatch")
	// ErrTruncated is returned when the stream ends before a declared length is satisfied.
	ErrTruncated = errors.New("truncated stream")
	// ErrMissingTypeHint is returned when an ambiguous property has no type hint.
	ErrMissingTypeHint = errors.New("missing type hint")
	// ErrMalformedTree is returned by the encoder for nodes that do not match the decoded shape.
	ErrMalformedTree = errors.New("malformed tree")
)

// DecodeError locates a decode failure in the input.
type DecodeError struct {
	// Offset is the byte offset in the (inflated) stream where decoding stopped.
	Offset int
	// Path is the dotted property path being decoded, empty for container errors.
	Path string
	Err  error
}

// Error implements error.
func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode error at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("decode error at offset %d (%s): %v", e.Offset, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }
