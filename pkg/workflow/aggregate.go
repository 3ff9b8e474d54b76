package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xhad/greenlens/internal/models"
)

// ScoreWeights tunes how per-claim signals combine into the document score.
// The defaults weigh a direct numeric contradiction far above an
// unverifiable claim, and let supporting evidence pull the score down.
type ScoreWeights struct {
	Contradicts  float64
	Unverifiable float64
	Supports     float64
	// RuleScale discounts rule-derived signals relative to metric-derived
	// ones; language patterns are weaker evidence than numbers.
	RuleScale float64
}

func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Contradicts:  1.0,
		Unverifiable: 0.35,
		Supports:     0.5,
		RuleScale:    0.8,
	}
}

func (w ScoreWeights) normalized() ScoreWeights {
	d := DefaultWeights()
	if w.Contradicts == 0 {
		w.Contradicts = d.Contradicts
	}
	if w.Unverifiable == 0 {
		w.Unverifiable = d.Unverifiable
	}
	if w.Supports == 0 {
		w.Supports = d.Supports
	}
	if w.RuleScale == 0 {
		w.RuleScale = d.RuleScale
	}
	return w
}

// Aggregate folds every claim's signal set into a document-level
// greenwashing score in [0,1] with a confidence and an explanation naming
// the top contributing claims. A document with no claims scores exactly 0
// with confidence 0.
func Aggregate(docID string, method models.ExtractionMethod, claims []models.Claim, signals map[string][]models.Signal, w ScoreWeights) *models.Assessment {
	w = w.normalized()

	if len(claims) == 0 {
		return &models.Assessment{
			DocumentID:  docID,
			Method:      method,
			Score:       0,
			Confidence:  0,
			Explanation: "no ESG claims were found in this document",
		}
	}

	scored := make([]models.ScoredClaim, 0, len(claims))
	var (
		weightedSum  float64
		weightTotal  float64
		confSum      float64
		metricBacked int
	)

	for _, claim := range claims {
		claimSignals := signals[claim.ID]
		contribution := claimContribution(claimSignals, w)

		scored = append(scored, models.ScoredClaim{
			Claim:        claim,
			Contribution: contribution,
			Signals:      claimSignals,
		})

		weight := claim.Confidence
		if weight == 0 {
			weight = 0.5
		}
		weightedSum += contribution * weight
		weightTotal += weight
		confSum += claim.Confidence

		if hasMetricEvidence(claimSignals) {
			metricBacked++
		}
	}

	score := 0.0
	if weightTotal > 0 {
		score = clamp01(weightedSum / weightTotal)
	}

	// Confidence reflects how sure the extractor was of its claims and how
	// much of the evidence is metric-backed rather than language-only.
	coverage := float64(metricBacked) / float64(len(claims))
	confidence := clamp01((confSum / float64(len(claims))) * (0.5 + 0.5*coverage))

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Contribution != scored[j].Contribution {
			return scored[i].Contribution > scored[j].Contribution
		}
		return scored[i].Claim.ID < scored[j].Claim.ID
	})

	return &models.Assessment{
		DocumentID:  docID,
		Method:      method,
		Score:       score,
		Confidence:  confidence,
		Claims:      scored,
		Explanation: explain(score, method, scored),
	}
}

// claimContribution reduces one claim's evidence set to a risk value in
// [0,1]. Contradictions push it up, support pulls it down, unverifiable
// signals drift it up weakly.
func claimContribution(signals []models.Signal, w ScoreWeights) float64 {
	if len(signals) == 0 {
		return 0
	}

	var risk float64
	for _, s := range signals {
		scale := 1.0
		if s.Source == models.SourceRule {
			scale = w.RuleScale
		}
		switch s.Relation {
		case models.RelationContradicts:
			risk += w.Contradicts * s.Strength * scale
		case models.RelationUnverifiable:
			risk += w.Unverifiable * s.Strength * scale
		case models.RelationSupports:
			risk -= w.Supports * s.Strength * scale
		}
	}

	return clamp01(risk)
}

func hasMetricEvidence(signals []models.Signal) bool {
	for _, s := range signals {
		if s.Source == models.SourceMetric && s.Relation != models.RelationUnverifiable {
			return true
		}
	}
	return false
}

func explain(score float64, method models.ExtractionMethod, scored []models.ScoredClaim) string {
	var b strings.Builder
	fmt.Fprintf(&b, "greenwashing score %.2f (text extracted via %s); top contributing claims:\n", score, method)

	top := scored
	if len(top) > 3 {
		top = top[:3]
	}
	for _, sc := range top {
		text := sc.Claim.Text
		if len(text) > 160 {
			text = text[:160] + "…"
		}
		fmt.Fprintf(&b, "- %q (contribution %.2f", text, sc.Contribution)
		if detail := strongestDetail(sc.Signals); detail != "" {
			fmt.Fprintf(&b, "; %s", detail)
		}
		b.WriteString(")\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func strongestDetail(signals []models.Signal) string {
	best := -1.0
	detail := ""
	for _, s := range signals {
		if s.Relation == models.RelationSupports {
			continue
		}
		if s.Strength > best && s.Detail != "" {
			best = s.Strength
			detail = s.Detail
		}
	}
	return detail
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
