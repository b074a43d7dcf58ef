package baseline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressorSmallContentStaysRaw(t *testing.T) {
	c, err := newCompressor(1024)
	require.NoError(t, err)

	b := c.pack("short\n")
	assert.False(t, b.compressed)

	text, err := c.unpack(b)
	require.NoError(t, err)
	assert.Equal(t, "short\n", text)
}

func TestCompressorLargeContentRoundTrip(t *testing.T) {
	c, err := newCompressor(64)
	require.NoError(t, err)

	content := strings.Repeat("the same line of text\n", 500)
	b := c.pack(content)
	assert.True(t, b.compressed)
	assert.Less(t, len(b.data), len(content))

	text, err := c.unpack(b)
	require.NoError(t, err)
	assert.Equal(t, content, text)
}

func TestCompressorIncompressibleContentStaysRaw(t *testing.T) {
	c, err := newCompressor(4)
	require.NoError(t, err)

	// Too short for zstd framing to win anything.
	b := c.pack("abcd")
	assert.False(t, b.compressed)

	text, err := c.unpack(b)
	require.NoError(t, err)
	assert.Equal(t, "abcd", text)
}

func TestCompressorEmptyContent(t *testing.T) {
	c, err := newCompressor(0)
	require.NoError(t, err)

	text, err := c.unpack(c.pack(""))
	require.NoError(t, err)
	assert.Empty(t, text)
}
