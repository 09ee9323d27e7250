package hii

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildStringPackage assembles a minimal Strings package body: a 42 byte
// header (hdr size + string-info offset + 16 reserved language-window slots
// + language name id), an empty null-terminated ASCII language tag, then the
// caller's block bytes.
func buildStringPackage(blocks []byte) []byte {
	header := make([]byte, 42)
	binary.LittleEndian.PutUint32(header[0:4], uint32(43+len(blocks)))
	// StringInfoOffset left at 0 so DecodeStringPackage uses the cursor
	// position right after the language tag.
	languageTag := []byte{0x00}

	out := append([]byte{}, header...)
	out = append(out, languageTag...)
	out = append(out, blocks...)
	return out
}

func ucs2NullString(s string) []byte {
	out := make([]byte, 0, len(s)*2+2)
	for _, r := range s {
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(r))
		out = append(out, buf...)
	}
	return append(out, 0x00, 0x00)
}

func TestDecodeStringPackageBasic(t *testing.T) {
	var blocks []byte
	blocks = append(blocks, stringBlockUcs2)
	blocks = append(blocks, ucs2NullString("Enabled")...)
	blocks = append(blocks, stringBlockUcs2)
	blocks = append(blocks, ucs2NullString("Disabled")...)
	blocks = append(blocks, stringBlockEnd)

	sm, err := DecodeStringPackage(buildStringPackage(blocks))
	require.NoError(t, err)

	assert.Equal(t, "Enabled", sm[1])
	assert.Equal(t, "Disabled", sm[2])
}

func TestDecodeStringPackageSkipBlocks(t *testing.T) {
	var blocks []byte
	blocks = append(blocks, stringBlockSkip1, 0x02) // skip ids 1-2
	blocks = append(blocks, stringBlockUcs2)
	blocks = append(blocks, ucs2NullString("Third")...)
	blocks = append(blocks, stringBlockEnd)

	sm, err := DecodeStringPackage(buildStringPackage(blocks))
	require.NoError(t, err)

	assert.Equal(t, "Third", sm[3])
	assert.Len(t, sm, 1)
}

func TestDecodeStringPackageUnsupportedTag(t *testing.T) {
	blocks := []byte{0x7F}
	_, err := DecodeStringPackage(buildStringPackage(blocks))
	assert.ErrorIs(t, err, ErrUnsupportedString)
}

func TestDecodeStringPackageTruncatedHeader(t *testing.T) {
	_, err := DecodeStringPackage([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrMalformed)
}
