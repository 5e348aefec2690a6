package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunks_ShortTextSingleChunk(t *testing.T) {
	chunks := SplitChunks("short text", 800, 80)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitChunks_EmptyAndWhitespace(t *testing.T) {
	assert.Nil(t, SplitChunks("", 800, 80))
	assert.Nil(t, SplitChunks("   \n\t ", 800, 80))
}

func TestSplitChunks_SlidingWindowOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 10) // 100 runes
	chunks := SplitChunks(text, 40, 10)

	// step = 30: windows start at 0, 30, 60; the last window reaches the end
	require.Len(t, chunks, 3)
	assert.Equal(t, 40, len([]rune(chunks[0])))
	// Overlap: the tail of one chunk reappears at the head of the next
	head := []rune(chunks[1])[:10]
	tail := []rune(chunks[0])[30:]
	assert.Equal(t, string(tail), string(head))
}

func TestSplitChunks_MultibyteRunes(t *testing.T) {
	text := strings.Repeat("画", 100)
	chunks := SplitChunks(text, 40, 0)

	require.Len(t, chunks, 3)
	assert.Equal(t, 40, len([]rune(chunks[0])))
	assert.Equal(t, 20, len([]rune(chunks[2])))
}

func TestSplitChunks_DegenerateParams(t *testing.T) {
	text := strings.Repeat("x", 50)

	// Non-positive max returns the whole text
	assert.Equal(t, []string{text}, SplitChunks(text, 0, 10))

	// Overlap >= max must still make progress
	chunks := SplitChunks(text, 10, 10)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 5, len(chunks))

	// Negative overlap treated as zero
	chunks = SplitChunks(text, 25, -5)
	assert.Len(t, chunks, 2)
}
