package gvas

import (
	"fmt"

	"github.com/google/uuid"
)

// ueOrder maps FGuid storage (four little-endian uint32) onto RFC 4122 byte
// order. The permutation is its own inverse.
var ueOrder = [16]int{3, 2, 1, 0, 7, 6, 5, 4, 11, 10, 9, 8, 15, 14, 13, 12}

// FormatGUID renders 16 raw FGuid bytes in canonical 8-4-4-4-12 form.
//
// Precondition: raw must hold exactly 16 bytes.
func FormatGUID(raw []byte) string {
	var u uuid.UUID
	for i, j := range ueOrder {
		u[i] = raw[j]
	}
	return u.String()
}

// ParseGUID converts a canonical identifier back to FGuid storage bytes.
func ParseGUID(s string) ([16]byte, error) {
	var out [16]byte
	u, err := uuid.Parse(s)
	if err != nil {
		return out, fmt.Errorf("parsing guid %q: %w", s, err)
	}
	for i, j := range ueOrder {
		out[j] = u[i]
	}
	return out, nil
}

// UIDFromFileName formats a 32-hex player save file stem as a canonical
// identifier. Player files are named after the UID's hex digits without
// separators.
func UIDFromFileName(stem string) (string, error) {
	if len(stem) != 32 {
		return "", fmt.Errorf("player save name %q: want 32 hex digits", stem)
	}
	u, err := uuid.Parse(stem)
	if err != nil {
		return "", fmt.Errorf("player save name %q: %w", stem, err)
	}
	return u.String(), nil
}
