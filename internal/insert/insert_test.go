package insert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkText_NeverExceedsMaxLen(t *testing.T) {
	text := strings.Repeat("a. ", 1000)
	chunks := chunkText(text, 360)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 360)
	}
}

func TestChunkText_LongInputProducesMultipleChunks(t *testing.T) {
	text := strings.Repeat("word ", 400) // > 1500 chars
	chunks := chunkText(text, 360)
	assert.GreaterOrEqual(t, len(chunks), 4)
}

func TestChunkText_ShortInputIsOneChunk(t *testing.T) {
	chunks := chunkText("short text", 360)
	assert.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestAnchors_ShortTextYieldsOneAnchor(t *testing.T) {
	a := anchors("short")
	assert.Len(t, a, 1)
}

func TestAnchors_LongTextYieldsUpToThree(t *testing.T) {
	text := strings.Repeat("x", 200)
	a := anchors(text)
	assert.LessOrEqual(t, len(a), 3)
	assert.GreaterOrEqual(t, len(a), 1)
}

func TestAnchors_StripsQuoteAndEmphasisMarkers(t *testing.T) {
	a := anchors("`hello` *world*")
	for _, anchor := range a {
		assert.NotContains(t, anchor, "`")
		assert.NotContains(t, anchor, "*")
	}
}

func TestRequiredGrowth_FloorsAtEight(t *testing.T) {
	// non-whitespace length 10, 35% = 3 -> floor to the 8-char minimum.
	assert.Equal(t, 8, requiredGrowth("0123456789"))
}

func TestRequiredGrowth_ScalesWithLongText(t *testing.T) {
	text := strings.Repeat("x", 100) // non-whitespace length 100, 35% = 35
	assert.Equal(t, 35, requiredGrowth(text))
}

func TestNonWhitespaceLen_IgnoresSpacesAndNewlines(t *testing.T) {
	assert.Equal(t, 5, nonWhitespaceLen("a b\nc\td e"))
}
