package hii

import (
	"encoding/binary"
	"fmt"
	"os"
)

// OCPHiiDBPath is the efivarfs file OCP/Redfish-style platforms expose
// carrying the physical address and length of the HII package database in
// system memory.
const OCPHiiDBPath = "/sys/firmware/efi/efivars/HiiDB-1b838190-4625-4ead-abc9-cd5e6af18fe0"

// hiiDBVar is the 12-byte payload of the HiiDB efivar, following the 4-byte
// kernel-provided attribute prefix every efivarfs file starts with.
type hiiDBVar struct {
	Flags   uint32
	Length  uint32
	Address uint32
}

// ExtractDB reads the HiiDB efivar, then maps the HII database out of
// physical memory through /dev/mem at the address and length it names.
func ExtractDB() ([]byte, error) {
	raw, err := os.ReadFile(OCPHiiDBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVarstoreMissing, err)
	}
	if len(raw) < 4+12 {
		return nil, fmt.Errorf("%w: HiiDB efivar truncated", ErrMalformed)
	}

	v := hiiDBVar{
		Flags:   binary.LittleEndian.Uint32(raw[4:8]),
		Length:  binary.LittleEndian.Uint32(raw[8:12]),
		Address: binary.LittleEndian.Uint32(raw[12:16]),
	}

	mem, err := os.Open("/dev/mem")
	if err != nil {
		return nil, fmt.Errorf("%w: opening /dev/mem: %v", ErrVarstoreRead, err)
	}
	defer mem.Close()

	buf := make([]byte, v.Length)
	if _, err := mem.ReadAt(buf, int64(v.Address)); err != nil {
		return nil, fmt.Errorf("%w: reading hii db at 0x%x: %v", ErrVarstoreRead, v.Address, err)
	}

	return buf, nil
}
