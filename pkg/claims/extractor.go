package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/internal/types"
)

// Extractor drives the generation backend with a constrained prompt and
// enforces citation fidelity on the way out: a claim citing a chunk that was
// not in the provided context is a contract violation, not a heuristic miss.
type Extractor struct {
	generator types.GenerationClient
	logger    *zap.Logger
}

func NewExtractor(generator types.GenerationClient, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{generator: generator, logger: logger}
}

type rawClaim struct {
	Text       string   `json:"text"`
	Category   string   `json:"category"`
	ChunkIDs   []string `json:"chunk_ids"`
	Confidence float64  `json:"confidence"`
}

// Extract returns the claims found in the retrieved context. Malformed
// generator output gets exactly one regeneration attempt; a claim citing an
// unknown chunk id fails permanently with ErrUnverifiedCitation.
func (e *Extractor) Extract(ctx context.Context, docID string, hits []types.IndexHit) ([]models.Claim, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	system := buildSystemPrompt()
	user := buildUserPrompt(hits)

	known := make(map[string]bool, len(hits))
	for _, hit := range hits {
		known[hit.Chunk.ID] = true
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		output, err := e.generator.Generate(ctx, system, user)
		if err != nil {
			// An empty generation is malformed output, not a backend
			// failure; it gets the same single regeneration attempt.
			if !errors.Is(err, faults.ErrMalformedGeneration) {
				return nil, err
			}
			e.logger.Warn("malformed claim output",
				zap.String("document_id", docID),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			lastErr = err
			continue
		}

		raw, err := parseClaims(output)
		if err != nil {
			e.logger.Warn("malformed claim output",
				zap.String("document_id", docID),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			lastErr = err
			continue
		}

		return e.validate(docID, raw, known)
	}

	return nil, lastErr
}

func (e *Extractor) validate(docID string, raw []rawClaim, known map[string]bool) ([]models.Claim, error) {
	claims := make([]models.Claim, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Text) == "" || len(r.ChunkIDs) == 0 {
			continue
		}
		for _, id := range r.ChunkIDs {
			if !known[id] {
				return nil, fmt.Errorf("%w: %q", faults.ErrUnverifiedCitation, id)
			}
		}
		claims = append(claims, models.Claim{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Text:       strings.TrimSpace(r.Text),
			Category:   models.ParseCategory(r.Category),
			ChunkIDs:   r.ChunkIDs,
			Confidence: clamp01(r.Confidence),
		})
	}
	return claims, nil
}

// parseClaims tolerates markdown fencing and surrounding prose; everything
// between the outermost brackets must still be valid JSON.
func parseClaims(output string) ([]rawClaim, error) {
	start := strings.Index(output, "[")
	end := strings.LastIndex(output, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON array in output", faults.ErrMalformedGeneration)
	}

	var raw []rawClaim
	if err := json.Unmarshal([]byte(output[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrMalformedGeneration, err)
	}
	return raw, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
