package hii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGUIDRoundTrip(t *testing.T) {
	raw := []byte{
		0x90, 0x81, 0x83, 0x1b, // Data1
		0x25, 0x46, // Data2
		0xad, 0x4e, // Data3
		0xab, 0xc9, 0xcd, 0x5e, 0x6a, 0xf1, 0x8f, 0xe0, // Data4
	}

	g, err := ParseGUID(raw)
	require.NoError(t, err)

	assert.Equal(t, "1B838190-4625-4EAD-ABC9-CD5E6AF18FE0", g.String())
	assert.Equal(t, "1b838190-4625-4ead-abc9-cd5e6af18fe0", g.StringLowercase())
	assert.Equal(t, raw, g.Bytes())
}

func TestParseGUIDTooShort(t *testing.T) {
	_, err := ParseGUID([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformed)
}
