package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Database config
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Extractor config
	if c.Extractor.MinCharsPerPage < 1 {
		errors = append(errors, ValidationError{
			Field:   "extractor.min_chars_per_page",
			Message: "min_chars_per_page must be positive",
		})
	}

	if c.Extractor.OCRBaseURL != "" {
		if _, err := url.Parse(c.Extractor.OCRBaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "extractor.ocr_base_url",
				Message: "invalid OCR base URL",
			})
		}
	}

	if c.Extractor.OCRRateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "extractor.ocr_rate_limit",
			Message: "ocr_rate_limit must be positive",
		})
	}

	// Validate Chunker config
	if c.Chunker.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate Retrieval config
	if c.Retrieval.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.min_similarity",
			Message: "min_similarity must be between 0 and 1",
		})
	}

	// Validate Scoring config
	if c.Scoring.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "scoring.max_attempts",
			Message: "max_attempts must be positive",
		})
	}

	if c.Scoring.MinBackoff <= 0 || c.Scoring.MaxBackoff < c.Scoring.MinBackoff {
		errors = append(errors, ValidationError{
			Field:   "scoring.min_backoff",
			Message: "backoff window must be positive and min_backoff <= max_backoff",
		})
	}

	if c.Scoring.ContradictsWeight < 0 || c.Scoring.UnverifiableWeight < 0 || c.Scoring.SupportsWeight < 0 {
		errors = append(errors, ValidationError{
			Field:   "scoring.weights",
			Message: "score weights must be non-negative",
		})
	}

	// Validate base URL format
	if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	return errors
}
