// Package hii decodes the UEFI Human Interface Infrastructure database: the
// package-list/package/opcode byte stream firmware uses to describe forms,
// strings, and the varstores that back them.
package hii

import (
	"encoding/binary"
	"fmt"
)

// GUID is a 16-byte structured identifier, rendered in the canonical
// uppercase XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX form.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// ParseGUID reads a little-endian encoded GUID from the first 16 bytes of b.
func ParseGUID(b []byte) (GUID, error) {
	if len(b) < 16 {
		return GUID{}, fmt.Errorf("%w: guid needs 16 bytes, got %d", ErrMalformed, len(b))
	}
	var g GUID
	g.Data1 = binary.LittleEndian.Uint32(b[0:4])
	g.Data2 = binary.LittleEndian.Uint16(b[4:6])
	g.Data3 = binary.LittleEndian.Uint16(b[6:8])
	copy(g.Data4[:], b[8:16])
	return g, nil
}

// Bytes renders the GUID back into its 16-byte little-endian wire form.
func (g GUID) Bytes() []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint32(out[0:4], g.Data1)
	binary.LittleEndian.PutUint16(out[4:6], g.Data2)
	binary.LittleEndian.PutUint16(out[6:8], g.Data3)
	copy(out[8:16], g.Data4[:])
	return out
}

// String renders the canonical uppercase GUID form, e.g.
// "ABBCE13D-E25A-4D9F-A1F9-2F7710786892".
func (g GUID) String() string {
	return fmt.Sprintf("%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X",
		g.Data1, g.Data2, g.Data3,
		g.Data4[0], g.Data4[1],
		g.Data4[2], g.Data4[3], g.Data4[4], g.Data4[5], g.Data4[6], g.Data4[7])
}

// StringLowercase renders the GUID in lowercase, as used in efivarfs file
// names ("{Name}-{guid-lowercase}").
func (g GUID) StringLowercase() string {
	s := g.String()
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'F' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
