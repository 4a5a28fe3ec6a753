package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The exact bytes the default literal must decode to.
var defaultBytes = []byte{
	0x80, 0x00, 0x7b, 0x00, 0x08, 0x00, 0x3c,
	0x20, 0x04, 0x55, 0x4e, 0x31, 0x58, 0x00, 0x00, 0x00, 0x00,
	0x40, 0x00, 0x00, 0x00, 0x0a,
}

func TestDecode_DefaultPayload(t *testing.T) {
	b, err := Decode(DefaultHex)
	require.NoError(t, err)
	assert.Equal(t, defaultBytes, b)
	assert.Len(t, b, 22)
}

func TestDecode_ReferencePayloadLengths(t *testing.T) {
	b, err := Decode(CameraMile9Hex)
	require.NoError(t, err)
	assert.Len(t, b, 17)

	b, err = Decode(DispatcherHex)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81, 0x01, 0x00, 0x7b}, b)
}

func TestDecode_WhitespaceDoesNotMatter(t *testing.T) {
	// Extra spaces, tabs and newlines between tokens must not change the
	// decoded output.
	variants := []string{
		"80 00 7b 00 08 00 3c 20 04 55 4e 31 58 00 00 00 00 40 00 00 00 0a",
		"80007b0008003c2004554e315800000000400000000a",
		"\t80  00\n7b 00 08 00 3c\n\n20 04 55 4e 31 58 00 00 00 00\n40 00 00 00 0a\t",
	}
	for _, v := range variants {
		b, err := Decode(v)
		require.NoError(t, err)
		assert.Equal(t, defaultBytes, b)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"odd length", "80 00 7"},
		{"non-hex character", "80 0g"},
		{"stray punctuation", "80,00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Decode(tt.input)
			assert.Error(t, err)
			assert.Nil(t, b)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "80007b", Normalize(" 80 00\n7b\t"))
	assert.Equal(t, "", Normalize(" \n\t "))
}

func TestMustDecode_PanicsOnBadLiteral(t *testing.T) {
	assert.Panics(t, func() { MustDecode("zz") })
	assert.NotPanics(t, func() { MustDecode(DefaultHex) })
}
