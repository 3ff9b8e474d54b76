package types

import (
	"context"

	"github.com/xhad/greenlens/internal/models"
)

// EmbeddingClient vectorizes text through an external, rate-limited backend.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// ModelVersion identifies the embedding model; records produced under
	// different versions never collide.
	ModelVersion() string
}

// GenerationClient is the non-deterministic language-generation backend.
// Everything around it (citation checks, parsing) stays deterministic.
type GenerationClient interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// StreamingGenerationClient additionally forwards partial output as the
// backend produces it. The returned string is always the complete answer.
type StreamingGenerationClient interface {
	GenerationClient
	GenerateStream(ctx context.Context, system, user string, onChunk func(string)) (string, error)
}

// OCRClient extracts text from document bytes when native extraction comes
// up short. Calls are blocking, rate-limited and bounded by a timeout.
type OCRClient interface {
	Recognize(ctx context.Context, data []byte) (text string, pages []string, err error)
}

// MetricsProvider fetches a company's verified metric snapshot from the
// external data collaborator.
type MetricsProvider interface {
	Fetch(ctx context.Context, companyID string) (*models.MetricSnapshot, error)
}

// IndexFilter restricts a similarity query to one document or company.
// Zero values match everything.
type IndexFilter struct {
	DocumentID string
	CompanyID  string
}

// IndexHit is one ranked similarity result.
type IndexHit struct {
	Chunk      models.Chunk
	Similarity float64
}

// EmbeddingIndex stores chunk vectors and answers nearest-neighbor queries.
// Insert is idempotent per (chunk id, model version); Query never mutates
// state.
type EmbeddingIndex interface {
	Insert(ctx context.Context, chunk models.Chunk, companyID string) (models.EmbeddingRecord, error)
	Query(vector []float32, k int, filter IndexFilter) ([]IndexHit, error)
}

// Retriever returns the top-k chunks relevant to a query, scoped by filter.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter IndexFilter) ([]IndexHit, error)
}
