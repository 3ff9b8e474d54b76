package xref_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/pkg/rules"
	"github.com/xhad/greenlens/pkg/xref"
)

func newResolver(t *testing.T) *xref.Resolver {
	t.Helper()
	ruleset, err := rules.Compile(rules.DefaultSpecs())
	require.NoError(t, err)
	return xref.NewResolver(ruleset, nil)
}

func companyWith(metrics map[string]models.MetricValue) *models.Company {
	c := models.NewCompany("acme", "Acme Corp")
	c.ReplaceSnapshot(&models.MetricSnapshot{CompanyID: "acme", Metrics: metrics})
	return c
}

func claim(category models.ClaimCategory, text string) models.Claim {
	return models.Claim{ID: "claim-1", DocumentID: "doc1", Category: category, Text: text, Confidence: 0.9}
}

func findSignal(signals []models.Signal, ruleID string) *models.Signal {
	for i := range signals {
		if signals[i].RuleID == ruleID {
			return &signals[i]
		}
	}
	return nil
}

func TestNeutralityClaimContradictedByEmissions(t *testing.T) {
	r := newResolver(t)
	company := companyWith(map[string]models.MetricValue{
		xref.MetricScope1Emissions: {Name: xref.MetricScope1Emissions, Value: 800, Unit: "tCO2e"},
		xref.MetricScope2Emissions: {Name: xref.MetricScope2Emissions, Value: 400, Unit: "tCO2e"},
	})

	signals := r.Resolve(claim(models.CategoryEmissions, "We are fully carbon neutral across our operations."), company)

	s := findSignal(signals, "metric:neutrality")
	require.NotNil(t, s)
	assert.Equal(t, models.RelationContradicts, s.Relation)
	assert.GreaterOrEqual(t, s.Strength, 0.9)
	assert.Equal(t, models.SourceMetric, s.Source)
	assert.Contains(t, s.Detail, "1200")
}

func TestNeutralityClaimSupportedByZeroEmissions(t *testing.T) {
	r := newResolver(t)
	company := companyWith(map[string]models.MetricValue{
		xref.MetricScope1Emissions: {Name: xref.MetricScope1Emissions, Value: 0, Unit: "tCO2e"},
		xref.MetricScope2Emissions: {Name: xref.MetricScope2Emissions, Value: 0, Unit: "tCO2e"},
	})

	signals := r.Resolve(claim(models.CategoryEmissions, "We achieved net-zero this year."), company)

	s := findSignal(signals, "metric:neutrality")
	require.NotNil(t, s)
	assert.Equal(t, models.RelationSupports, s.Relation)
}

func TestEmissionsReductionClaimAgainstRisingTrend(t *testing.T) {
	r := newResolver(t)
	company := companyWith(map[string]models.MetricValue{
		xref.MetricEmissionsChange: {Name: xref.MetricEmissionsChange, Value: 12.5, Unit: "%"},
	})

	signals := r.Resolve(claim(models.CategoryEmissions, "We substantially reduced our emissions."), company)

	s := findSignal(signals, "metric:emissions_trend")
	require.NotNil(t, s)
	assert.Equal(t, models.RelationContradicts, s.Relation)
	assert.Contains(t, s.Detail, "12.5")
}

func TestClaimWithoutCoveringMetricIsUnverifiable(t *testing.T) {
	r := newResolver(t)

	signals := r.Resolve(claim(models.CategoryLabor, "All suppliers meet our labor standards."), nil)

	s := findSignal(signals, "metric:none")
	require.NotNil(t, s)
	assert.Equal(t, models.RelationUnverifiable, s.Relation)
	assert.Equal(t, models.SourceMetric, s.Source)
}

func TestMatchedCheckWithMissingMetricFallsBackToUnverifiable(t *testing.T) {
	r := newResolver(t)
	// Snapshot exists but lacks the emissions metrics the check needs.
	company := companyWith(map[string]models.MetricValue{
		xref.MetricBoardIndependence: {Name: xref.MetricBoardIndependence, Value: 70, Unit: "%"},
	})

	signals := r.Resolve(claim(models.CategoryEmissions, "We are carbon neutral."), company)

	require.NotNil(t, findSignal(signals, "metric:none"))
	assert.Nil(t, findSignal(signals, "metric:neutrality"))
}

func TestRuleHitsBecomeSignals(t *testing.T) {
	r := newResolver(t)

	signals := r.Resolve(claim(models.CategoryOther, "We aspire to world leadership in sustainability."), nil)

	s := findSignal(signals, "rule:901")
	require.NotNil(t, s)
	assert.Equal(t, models.SourceRule, s.Source)
	assert.Equal(t, models.RelationUnverifiable, s.Relation)
	assert.Equal(t, 0.5, s.Strength)
	assert.Contains(t, s.Detail, "vague")
}

func TestRenewableClaimAgainstPartialShare(t *testing.T) {
	r := newResolver(t)
	company := companyWith(map[string]models.MetricValue{
		xref.MetricRenewableShare: {Name: xref.MetricRenewableShare, Value: 61.0, Unit: "%"},
	})

	signals := r.Resolve(claim(models.CategoryEnergy, "Our sites run on 100% renewable power."), company)

	s := findSignal(signals, "metric:renewable_share")
	require.NotNil(t, s)
	assert.Equal(t, models.RelationContradicts, s.Relation)
	assert.Contains(t, s.Detail, "61.0")
}
