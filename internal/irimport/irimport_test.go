package irimport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArrayLiteral(t *testing.T) {
	dump := `uint16_t rawData[6] = {9024, 4460,  612, 528,  0x264, 1650};  // NEC 20DF10EF`

	values, err := Parse(dump)
	require.NoError(t, err)
	assert.Equal(t, []uint16{9024, 4460, 612, 528, 612, 1650}, values)
}

func TestParseMultilineLiteral(t *testing.T) {
	dump := `
/* captured from the living room unit */
const uint16_t rawData[] = {
  3400, 1700,
  450, 1250, // header
  450, 400,
};
`
	values, err := Parse(dump)
	require.NoError(t, err)
	assert.Equal(t, []uint16{3400, 1700, 450, 1250, 450, 400}, values)
}

func TestParsePlainList(t *testing.T) {
	values, err := Parse("100 200\n300,400")
	require.NoError(t, err)
	assert.Equal(t, []uint16{100, 200, 300, 400}, values)

	values, err = Parse("")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestParseLeadingZerosAreDecimal(t *testing.T) {
	values, err := ParseList("0560, 0100, 0x0230, 0X1F, 0")
	require.NoError(t, err)
	assert.Equal(t, []uint16{560, 100, 0x230, 0x1f, 0}, values)
}

func TestParseErrors(t *testing.T) {
	for name, input := range map[string]string{
		"count mismatch": `uint16_t rawData[3] = {1, 2};`,
		"overflow":       `1, 2, 70000`,
		"negative":       `1, -2`,
		"garbage":        `1, two`,
		"unterminated":   `uint16_t rawData[2] = {1, 2`,
		"underscore":     `9_000, 4500`,
		"binary":         `0b101`,
		"octal prefix":   `0o17`,
		"bare hex":       `0x`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "on.txt")
	require.NoError(t, os.WriteFile(path, []byte("uint16_t rawData[2] = {10, 20};"), 0o600))

	values, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, []uint16{10, 20}, values)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestStripCommentsKeepsStrings(t *testing.T) {
	src := "static const char* X = \"a//b /* c */\"; // trailing\n/* block */int y;"
	assert.Equal(t, "static const char* X = \"a//b /* c */\"; \n int y;", StripComments(src))
}
