package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/greenlens/internal/models"
)

func testClaim(id string, confidence float64) models.Claim {
	return models.Claim{
		ID:         id,
		DocumentID: "doc1",
		Text:       "We are carbon neutral.",
		Category:   models.CategoryEmissions,
		ChunkIDs:   []string{"doc1:0000"},
		Confidence: confidence,
	}
}

func signal(claimID string, relation models.Relation, strength float64, source models.SignalSource) models.Signal {
	return models.Signal{
		ClaimID:  claimID,
		RuleID:   "metric:test",
		Relation: relation,
		Strength: strength,
		Source:   source,
		Detail:   "test detail",
	}
}

func TestAggregateNoClaims(t *testing.T) {
	a := Aggregate("doc1", models.MethodNative, nil, nil, DefaultWeights())

	assert.Equal(t, 0.0, a.Score)
	assert.Equal(t, 0.0, a.Confidence)
	assert.Contains(t, a.Explanation, "no ESG claims")
	assert.Empty(t, a.Claims)
}

func TestAggregateContradictionRaisesScore(t *testing.T) {
	claims := []models.Claim{testClaim("c1", 0.9)}

	contradicted := Aggregate("doc1", models.MethodNative, claims, map[string][]models.Signal{
		"c1": {signal("c1", models.RelationContradicts, 0.9, models.SourceMetric)},
	}, DefaultWeights())

	supported := Aggregate("doc1", models.MethodNative, claims, map[string][]models.Signal{
		"c1": {signal("c1", models.RelationSupports, 0.9, models.SourceMetric)},
	}, DefaultWeights())

	assert.Greater(t, contradicted.Score, supported.Score)
	assert.Greater(t, contradicted.Score, 0.5)
	assert.Equal(t, 0.0, supported.Score)
}

func TestAggregateScoreStaysInBounds(t *testing.T) {
	claims := []models.Claim{testClaim("c1", 1.0)}
	signals := map[string][]models.Signal{
		"c1": {
			signal("c1", models.RelationContradicts, 1.0, models.SourceMetric),
			signal("c1", models.RelationContradicts, 1.0, models.SourceMetric),
			signal("c1", models.RelationContradicts, 1.0, models.SourceRule),
		},
	}

	a := Aggregate("doc1", models.MethodNative, claims, signals, DefaultWeights())

	assert.LessOrEqual(t, a.Score, 1.0)
	assert.LessOrEqual(t, a.Confidence, 1.0)
	require.Len(t, a.Claims, 1)
	assert.LessOrEqual(t, a.Claims[0].Contribution, 1.0)
}

func TestAggregateRuleSignalsWeighLess(t *testing.T) {
	claims := []models.Claim{testClaim("c1", 0.8)}

	metricBacked := Aggregate("doc1", models.MethodNative, claims, map[string][]models.Signal{
		"c1": {signal("c1", models.RelationUnverifiable, 0.6, models.SourceMetric)},
	}, DefaultWeights())

	ruleBacked := Aggregate("doc1", models.MethodNative, claims, map[string][]models.Signal{
		"c1": {signal("c1", models.RelationUnverifiable, 0.6, models.SourceRule)},
	}, DefaultWeights())

	assert.Greater(t, metricBacked.Score, ruleBacked.Score)
}

func TestAggregateMetricCoverageRaisesConfidence(t *testing.T) {
	claims := []models.Claim{testClaim("c1", 0.8)}

	covered := Aggregate("doc1", models.MethodNative, claims, map[string][]models.Signal{
		"c1": {signal("c1", models.RelationContradicts, 0.9, models.SourceMetric)},
	}, DefaultWeights())

	uncovered := Aggregate("doc1", models.MethodNative, claims, map[string][]models.Signal{
		"c1": {signal("c1", models.RelationUnverifiable, 0.3, models.SourceMetric)},
	}, DefaultWeights())

	assert.Greater(t, covered.Confidence, uncovered.Confidence)
}

func TestAggregateOrdersClaimsByContribution(t *testing.T) {
	claims := []models.Claim{testClaim("c1", 0.8), testClaim("c2", 0.8)}
	signals := map[string][]models.Signal{
		"c1": {signal("c1", models.RelationUnverifiable, 0.3, models.SourceMetric)},
		"c2": {signal("c2", models.RelationContradicts, 0.9, models.SourceMetric)},
	}

	a := Aggregate("doc1", models.MethodNative, claims, signals, DefaultWeights())

	require.Len(t, a.Claims, 2)
	assert.Equal(t, "c2", a.Claims[0].Claim.ID)
	assert.GreaterOrEqual(t, a.Claims[0].Contribution, a.Claims[1].Contribution)
	assert.Contains(t, a.Explanation, "top contributing claims")
}

func TestAggregateRecordsExtractionMethod(t *testing.T) {
	claims := []models.Claim{testClaim("c1", 0.8)}
	signals := map[string][]models.Signal{
		"c1": {signal("c1", models.RelationContradicts, 0.9, models.SourceMetric)},
	}

	a := Aggregate("doc1", models.MethodOCR, claims, signals, DefaultWeights())

	assert.Equal(t, models.MethodOCR, a.Method)
	assert.Contains(t, a.Explanation, "extracted via ocr")

	empty := Aggregate("doc1", models.MethodOCR, nil, nil, DefaultWeights())
	assert.Equal(t, models.MethodOCR, empty.Method)
}

func TestAggregateZeroWeightsFallBackToDefaults(t *testing.T) {
	claims := []models.Claim{testClaim("c1", 0.8)}
	signals := map[string][]models.Signal{
		"c1": {signal("c1", models.RelationContradicts, 0.9, models.SourceMetric)},
	}

	zero := Aggregate("doc1", models.MethodNative, claims, signals, ScoreWeights{})
	def := Aggregate("doc1", models.MethodNative, claims, signals, DefaultWeights())

	assert.Equal(t, def.Score, zero.Score)
}
