package hii

import (
	"encoding/binary"
	"fmt"
)

// PackageType is the 8-bit type tag of an HII package header.
type PackageType uint8

const (
	PackageTypeGuid           PackageType = 0x01
	PackageTypeForm           PackageType = 0x02
	PackageTypeKeyboardLayout PackageType = 0x03
	PackageTypeStrings        PackageType = 0x04
	PackageTypeFonts          PackageType = 0x05
	PackageTypeImages         PackageType = 0x06
	PackageTypeSimpleFonts    PackageType = 0x07
	PackageTypeDevicePath     PackageType = 0x08
	PackageTypeEnd            PackageType = 0xDF
)

// Package is one entry inside a package-list: a 24-bit length, an 8-bit type
// tag, and length-4 bytes of payload.
type Package struct {
	Type PackageType
	Data []byte
}

// PackageList is a GUID-identified group of packages, terminated by an End
// typed package.
type PackageList struct {
	GUID     GUID
	Packages []Package
}

// ParsedHiiDB is the decoded database: string maps and form trees keyed by
// their owning package-list's GUID. Every forms entry's GUID has a matching
// strings entry.
type ParsedHiiDB struct {
	Strings map[string][]StringMap
	Forms   map[string][]FormPackage
}

// ReadDB decodes a full HII database byte buffer into package-lists, and
// within each, the Strings and Form packages into their respective decoded
// forms. Unrecognized package types are preserved as opaque and skipped.
func ReadDB(source []byte) (ParsedHiiDB, error) {
	db := ParsedHiiDB{
		Strings: make(map[string][]StringMap),
		Forms:   make(map[string][]FormPackage),
	}

	off := 0
	for off < len(source) {
		if len(source)-off < 20 {
			return db, fmt.Errorf("%w: truncated package-list header at offset %d", ErrMalformed, off)
		}
		guid, err := ParseGUID(source[off : off+16])
		if err != nil {
			return db, err
		}
		totalLength := binary.LittleEndian.Uint32(source[off+16 : off+20])
		if totalLength < 20 || int(totalLength) > len(source)-off {
			return db, fmt.Errorf("%w: package-list length %d out of range at offset %d", ErrMalformed, totalLength, off)
		}

		payload := source[off+20 : off+int(totalLength)]
		pkgList, err := parsePackageList(guid, payload)
		if err != nil {
			return db, err
		}

		key := guid.String()
		for _, pkg := range pkgList.Packages {
			switch pkg.Type {
			case PackageTypeStrings:
				sm, err := DecodeStringPackage(pkg.Data)
				if err != nil {
					return db, err
				}
				db.Strings[key] = append(db.Strings[key], sm)
			case PackageTypeForm:
				fp, err := ParseFormPackage(pkg.Data)
				if err != nil {
					return db, err
				}
				db.Forms[key] = append(db.Forms[key], fp)
			}
		}

		off += int(totalLength)
	}

	return db, nil
}

func parsePackageList(guid GUID, payload []byte) (PackageList, error) {
	pl := PackageList{GUID: guid}

	off := 0
	for {
		if len(payload)-off < 4 {
			return pl, fmt.Errorf("%w: truncated package header at offset %d", ErrMalformed, off)
		}
		length := uint32(payload[off]) | uint32(payload[off+1])<<8 | uint32(payload[off+2])<<16
		typ := PackageType(payload[off+3])

		if typ == PackageTypeEnd {
			break
		}

		if length < 4 || int(length) > len(payload)-off {
			return pl, fmt.Errorf("%w: package length %d out of range at offset %d", ErrMalformed, length, off)
		}

		pl.Packages = append(pl.Packages, Package{
			Type: typ,
			Data: payload[off+4 : off+int(length)],
		})

		off += int(length)
		if off >= len(payload) {
			break
		}
	}

	return pl, nil
}
