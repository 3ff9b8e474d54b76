package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"

	"github.com/xhad/greenlens/internal/faults"
)

type EmbedderConfig struct {
	Model     string
	BaseURL   string // Ollama server URL
	RateLimit float64
}

// Embedder wraps the embedding backend. The model name doubles as the
// embedding-model version: records produced under different models never
// share an identity in the index.
type Embedder struct {
	config EmbedderConfig
	client *ollama.LLM

	limiter *rate.Limiter
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 4.0
	}

	client, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrEmbeddingUnavailable, err)
	}

	vectors, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", faults.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}

	return vectors, nil
}

func (e *Embedder) ModelVersion() string {
	return e.config.Model
}
