package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/internal/types"
	"github.com/xhad/greenlens/pkg/index"
)

// fakeEmbedder returns a fixed vector per known text and counts calls, so
// tests can assert that idempotent re-inserts never re-embed.
type fakeEmbedder struct {
	version string
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0, 0}
		}
	}
	return out, nil
}

func (f *fakeEmbedder) ModelVersion() string { return f.version }

func chunk(docID string, ordinal int, text string) models.Chunk {
	return models.Chunk{
		ID:         docID + ":" + string(rune('0'+ordinal)),
		DocumentID: docID,
		Ordinal:    ordinal,
		Text:       text,
	}
}

func TestInsertIdempotent(t *testing.T) {
	emb := &fakeEmbedder{version: "embed-v1"}
	idx := index.NewMemory(emb)
	ctx := context.Background()

	c := chunk("doc1", 0, "carbon neutral operations")

	first, err := idx.Insert(ctx, c, "acme")
	require.NoError(t, err)

	second, err := idx.Insert(ctx, c, "acme")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, emb.calls, "re-insert must not re-embed")
	assert.Len(t, idx.Records(), 1)
}

func TestInsertNewModelVersionCreatesNewRecord(t *testing.T) {
	emb := &fakeEmbedder{version: "embed-v1"}
	idx := index.NewMemory(emb)
	ctx := context.Background()

	c := chunk("doc1", 0, "carbon neutral operations")

	_, err := idx.Insert(ctx, c, "acme")
	require.NoError(t, err)

	emb.version = "embed-v2"
	rec, err := idx.Insert(ctx, c, "acme")
	require.NoError(t, err)
	assert.Equal(t, "embed-v2", rec.ModelVersion)

	records := idx.Records()
	require.Len(t, records, 2, "a new model version adds a record, never overwrites")
	assert.Equal(t, "embed-v1", records[0].ModelVersion)
	assert.Equal(t, "embed-v2", records[1].ModelVersion)
}

func TestQueryRankingAndLimit(t *testing.T) {
	emb := &fakeEmbedder{
		version: "embed-v1",
		vectors: map[string][]float32{
			"exact": {1, 0, 0},
			"close": {1, 1, 0},
			"far":   {0, 0, 1},
		},
	}
	idx := index.NewMemory(emb)
	ctx := context.Background()

	for i, text := range []string{"far", "close", "exact"} {
		_, err := idx.Insert(ctx, chunk("doc1", i, text), "acme")
		require.NoError(t, err)
	}

	hits, err := idx.Query([]float32{1, 0, 0}, 2, types.IndexFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "exact", hits[0].Chunk.Text)
	assert.Equal(t, "close", hits[1].Chunk.Text)
	assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
}

func TestQueryTieBreaksOnOrdinal(t *testing.T) {
	emb := &fakeEmbedder{version: "embed-v1"}
	idx := index.NewMemory(emb)
	ctx := context.Background()

	// Identical vectors, so similarity ties; lower ordinal wins.
	_, err := idx.Insert(ctx, chunk("doc1", 1, "same text b"), "acme")
	require.NoError(t, err)
	_, err = idx.Insert(ctx, chunk("doc1", 0, "same text a"), "acme")
	require.NoError(t, err)

	hits, err := idx.Query([]float32{1, 0, 0}, 10, types.IndexFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Chunk.Ordinal)
	assert.Equal(t, 1, hits[1].Chunk.Ordinal)
}

func TestQueryFilters(t *testing.T) {
	emb := &fakeEmbedder{version: "embed-v1"}
	idx := index.NewMemory(emb)
	ctx := context.Background()

	_, err := idx.Insert(ctx, chunk("doc1", 0, "acme chunk"), "acme")
	require.NoError(t, err)
	_, err = idx.Insert(ctx, chunk("doc2", 0, "globex chunk"), "globex")
	require.NoError(t, err)

	hits, err := idx.Query([]float32{1, 0, 0}, 10, types.IndexFilter{DocumentID: "doc2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc2", hits[0].Chunk.DocumentID)

	hits, err = idx.Query([]float32{1, 0, 0}, 10, types.IndexFilter{CompanyID: "acme"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc1", hits[0].Chunk.DocumentID)
}

func TestQueryOnlySeesActiveModelVersion(t *testing.T) {
	emb := &fakeEmbedder{version: "embed-v1"}
	idx := index.NewMemory(emb)
	ctx := context.Background()

	_, err := idx.Insert(ctx, chunk("doc1", 0, "old version chunk"), "acme")
	require.NoError(t, err)

	emb.version = "embed-v2"
	hits, err := idx.Query([]float32{1, 0, 0}, 10, types.IndexFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits, "records from other model versions must be invisible")
}

func TestQueryZeroK(t *testing.T) {
	emb := &fakeEmbedder{version: "embed-v1"}
	idx := index.NewMemory(emb)

	hits, err := idx.Query([]float32{1, 0, 0}, 0, types.IndexFilter{})
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestQueryDimensionMismatch(t *testing.T) {
	emb := &fakeEmbedder{version: "embed-v1"}
	idx := index.NewMemory(emb)
	ctx := context.Background()

	_, err := idx.Insert(ctx, chunk("doc1", 0, "three dims"), "acme")
	require.NoError(t, err)

	_, err = idx.Query([]float32{1, 0}, 10, types.IndexFilter{})
	assert.ErrorIs(t, err, faults.ErrChunkMismatch)
}

func TestSeedRoundTrip(t *testing.T) {
	emb := &fakeEmbedder{version: "embed-v1"}
	idx := index.NewMemory(emb)
	ctx := context.Background()

	_, err := idx.Insert(ctx, chunk("doc1", 0, "persisted chunk"), "acme")
	require.NoError(t, err)

	restored := index.NewMemory(emb)
	restored.Seed(idx.Records())

	hits, err := restored.Query([]float32{1, 0, 0}, 10, types.IndexFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "persisted chunk", hits[0].Chunk.Text)
}
