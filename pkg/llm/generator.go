package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/greenlens/internal/faults"
)

type GeneratorConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // Ollama server URL
}

// Generator is the language-generation backend behind claim extraction and
// chat. It is the one non-deterministic piece of the pipeline; callers guard
// its output with deterministic checks.
type Generator struct {
	config GeneratorConfig
	llm    llms.Model
}

func NewGeneratorWithConfig(config GeneratorConfig) (*Generator, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Generator{
		config: config,
		llm:    llm,
	}, nil
}

func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	response, err := g.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(g.config.MaxTokens),
		llms.WithTemperature(g.config.Temperature))
	if err != nil {
		return "", classifyGenerationError(err)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0].Content == "" {
		return "", fmt.Errorf("%w: empty response", faults.ErrMalformedGeneration)
	}

	return response.Choices[0].Content, nil
}

// GenerateStream behaves like Generate but forwards tokens to onChunk as the
// backend emits them, returning the complete concatenated answer.
func (g *Generator) GenerateStream(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	var full strings.Builder
	response, err := g.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(g.config.MaxTokens),
		llms.WithTemperature(g.config.Temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			full.Write(chunk)
			onChunk(string(chunk))
			return nil
		}))
	if err != nil {
		return "", classifyGenerationError(err)
	}

	if full.Len() > 0 {
		return full.String(), nil
	}

	// Backends that ignore the streaming option still answer in one piece.
	if response == nil || len(response.Choices) == 0 || response.Choices[0].Content == "" {
		return "", fmt.Errorf("%w: empty response", faults.ErrMalformedGeneration)
	}
	onChunk(response.Choices[0].Content)
	return response.Choices[0].Content, nil
}

// classifyGenerationError maps backend failures onto the pipeline taxonomy
// so the workflow retry policy can tell transient from permanent.
func classifyGenerationError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: generation backend: %v", faults.ErrTimeout, err)
	case strings.Contains(err.Error(), "429"),
		strings.Contains(strings.ToLower(err.Error()), "rate limit"):
		return fmt.Errorf("%w: generation backend: %v", faults.ErrRateLimited, err)
	default:
		return fmt.Errorf("generation error: %w", err)
	}
}
