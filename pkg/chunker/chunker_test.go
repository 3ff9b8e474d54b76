package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/pkg/chunker"
)

func buildText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Sentence number %d talks about emissions and renewable energy targets. ", i)
	}
	return b.String()
}

func TestChunkDeterminism(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 300, ChunkOverlap: 60})
	text := buildText(40)

	first := c.Chunk("doc1", text, nil)
	second := c.Chunk("doc1", text, nil)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestChunkCoverageAndOverlap(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 300, ChunkOverlap: 60})
	text := buildText(40)

	chunks := c.Chunk("doc1", text, nil)
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)

	for i, ch := range chunks {
		assert.Equal(t, text[ch.Start:ch.End], ch.Text)
		assert.Equal(t, i, ch.Ordinal)
		assert.Equal(t, fmt.Sprintf("doc1:%04d", i), ch.ID)

		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		// No gaps: each chunk starts at or before the previous end.
		assert.LessOrEqual(t, ch.Start, prev.End, "gap between chunk %d and %d", i-1, i)
		// Progress: never re-emit the same window.
		assert.Greater(t, ch.Start, prev.Start)
	}
}

func TestChunkRespectsSize(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 300, ChunkOverlap: 60})
	chunks := c.Chunk("doc1", buildText(40), nil)

	for _, ch := range chunks {
		// A single oversized sentence may exceed the budget; these sentences
		// are all short, so every chunk must fit.
		assert.LessOrEqual(t, len(ch.Text), 300)
	}
}

func TestChunkEmptyText(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{})

	assert.Nil(t, c.Chunk("doc1", "", nil))
	assert.Nil(t, c.Chunk("doc1", "   \n\t  ", nil))
}

func TestChunkSingleOversizedSentence(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 50, ChunkOverlap: 10})
	text := strings.Repeat("emissions ", 30) // one long "sentence", no enders

	chunks := c.Chunk("doc1", text, nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
}

func TestChunkPageAttribution(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 40, ChunkOverlap: 8})

	page1 := "We commit to net zero by 2040. "
	page2 := "Scope 3 emissions are excluded for now. "
	text := page1 + page2
	pages := []models.PageSpan{
		{Number: 1, Start: 0, End: len(page1)},
		{Number: 2, Start: len(page1), End: len(text)},
	}

	chunks := c.Chunk("doc1", text, pages)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[len(chunks)-1].Page)
}
