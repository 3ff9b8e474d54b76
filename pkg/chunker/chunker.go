package chunker

import (
	"fmt"
	"strings"

	"github.com/xhad/greenlens/internal/models"
)

type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type Chunker struct {
	config ChunkerConfig
}

func NewWithConfig(config ChunkerConfig) Chunker {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 4
	}

	return Chunker{config: config}
}

// sentence is a half-open byte range in the source text. Ranges are
// contiguous: each sentence ends where the next one starts, so chunks built
// from them cover the text with no gaps.
type sentence struct {
	start int
	end   int
}

// Chunk splits extracted text into overlapping chunks with offset and page
// provenance. The split is a pure function of (text, config): identical input
// always yields identical boundaries, which re-analysis and caching rely on.
func (c *Chunker) Chunk(docID, text string, pages []models.PageSpan) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := splitSentences(text)
	var chunks []models.Chunk

	i := 0
	for i < len(sentences) {
		start := sentences[i].start
		j := i

		// Extend the chunk sentence by sentence until the next sentence
		// would push it past ChunkSize. A single oversized sentence still
		// becomes its own chunk.
		for j+1 < len(sentences) && sentences[j+1].end-start <= c.config.ChunkSize {
			j++
		}
		end := sentences[j].end

		chunks = append(chunks, models.Chunk{
			ID:         fmt.Sprintf("%s:%04d", docID, len(chunks)),
			DocumentID: docID,
			Ordinal:    len(chunks),
			Text:       text[start:end],
			Start:      start,
			End:        end,
			Page:       pageFor(pages, start),
		})

		if j+1 >= len(sentences) {
			break
		}

		// Back up into the finished chunk so the next one re-covers the
		// overlap window; never past the first sentence after i, so every
		// step makes progress.
		next := j + 1
		for k := j; k > i; k-- {
			if sentences[k].start < end-c.config.ChunkOverlap {
				break
			}
			next = k
		}
		i = next
	}

	return chunks
}

// splitSentences returns contiguous sentence ranges. Sentence boundaries are
// detected after '.', '!' or '?' followed by whitespace, and after newlines;
// trailing whitespace belongs to the preceding sentence.
func splitSentences(text string) []sentence {
	var out []sentence
	start := 0

	for i := 0; i < len(text); i++ {
		ch := text[i]
		isEnder := (ch == '.' || ch == '!' || ch == '?') &&
			i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t')

		if isEnder || ch == '\n' {
			end := i + 1
			// Carry trailing whitespace into this sentence so ranges stay
			// contiguous.
			for end < len(text) && (text[end] == ' ' || text[end] == '\n' || text[end] == '\t') {
				end++
			}
			if end > start {
				out = append(out, sentence{start: start, end: end})
			}
			start = end
			i = end - 1
		}
	}

	if start < len(text) {
		out = append(out, sentence{start: start, end: len(text)})
	}

	return out
}

func pageFor(pages []models.PageSpan, offset int) int {
	for _, p := range pages {
		if offset >= p.Start && offset < p.End {
			return p.Number
		}
	}
	if len(pages) > 0 && offset >= pages[len(pages)-1].End {
		return pages[len(pages)-1].Number
	}
	return 0
}
