package retrieval

import (
	"context"
	"fmt"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/types"
)

type EngineConfig struct {
	TopK int
	// MinSimilarity drops results below the floor so irrelevant chunks never
	// become grounding for generated output.
	MinSimilarity float64
}

// Engine embeds a query through the same backend that built the index and
// delegates to the index for ranking. The embedding model version is pinned
// by sharing the one embedder instance with the indexing stage.
type Engine struct {
	config   EngineConfig
	embedder types.EmbeddingClient
	index    types.EmbeddingIndex
}

func NewEngine(config EngineConfig, embedder types.EmbeddingClient, index types.EmbeddingIndex) *Engine {
	if config.TopK == 0 {
		config.TopK = 8
	}

	return &Engine{
		config:   config,
		embedder: embedder,
		index:    index,
	}
}

// Retrieve returns at most k chunks ranked by non-increasing similarity.
// k <= 0 uses the configured default.
func (e *Engine) Retrieve(ctx context.Context, query string, k int, filter types.IndexFilter) ([]types.IndexHit, error) {
	if k <= 0 {
		k = e.config.TopK
	}

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no vector for query", faults.ErrEmbeddingUnavailable)
	}

	hits, err := e.index.Query(vectors[0], k, filter)
	if err != nil {
		return nil, err
	}

	filtered := hits[:0:0]
	for _, hit := range hits {
		if hit.Similarity < e.config.MinSimilarity {
			// Hits are sorted, everything after is below the floor too.
			break
		}
		filtered = append(filtered, hit)
	}

	return filtered, nil
}
