// Package xref matches extracted claims against verified company metrics
// and the static greenwashing rule table, producing agreement and
// contradiction signals. Every rule application is deterministic given the
// same claim and snapshot, and all applicable signals are retained; the
// aggregation step needs the full evidence set.
package xref

import (
	"fmt"
	"math"
	"regexp"

	"go.uber.org/zap"

	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/pkg/rules"
)

// Metric names as served by the external data collaborator.
const (
	MetricScope1Emissions   = "scope1_emissions_tco2e"
	MetricScope2Emissions   = "scope2_emissions_tco2e"
	MetricEmissionsChange   = "emissions_change_pct"
	MetricRenewableShare    = "renewable_energy_share_pct"
	MetricWasteRecycled     = "waste_recycled_share_pct"
	MetricWaterChange       = "water_withdrawal_change_pct"
	MetricBoardIndependence = "board_independence_pct"
)

// metricCheck compares one family of claim language against snapshot
// metrics. check returns nil when the snapshot lacks the needed metrics.
type metricCheck struct {
	category models.ClaimCategory
	pattern  *regexp.Regexp
	check    func(claim models.Claim, snap *models.MetricSnapshot) *models.Signal
}

var metricChecks = []metricCheck{
	{
		category: models.CategoryEmissions,
		pattern:  regexp.MustCompile(`(?i)(carbon|climate)[- ]?neutral|net[- ]?zero`),
		check:    checkNeutrality,
	},
	{
		category: models.CategoryEmissions,
		pattern:  regexp.MustCompile(`(?i)(reduc|lower|cut|decreas).{0,40}emissions`),
		check:    checkEmissionsTrend,
	},
	{
		category: models.CategoryEnergy,
		pattern:  regexp.MustCompile(`(?i)(100\s*%|fully|entirely)\s+renewable`),
		check:    checkRenewableShare,
	},
	{
		category: models.CategoryWaste,
		pattern:  regexp.MustCompile(`(?i)zero[- ]waste`),
		check:    checkZeroWaste,
	},
	{
		category: models.CategoryWater,
		pattern:  regexp.MustCompile(`(?i)(reduc|lower|cut|decreas).{0,40}water`),
		check:    checkWaterTrend,
	},
	{
		category: models.CategoryGovernance,
		pattern:  regexp.MustCompile(`(?i)(independent|majority[- ]independent)\s+board|board independence`),
		check:    checkBoardIndependence,
	},
}

type Resolver struct {
	ruleset []rules.Rule
	logger  *zap.Logger
}

func NewResolver(ruleset []rules.Rule, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{ruleset: ruleset, logger: logger}
}

// Resolve emits every signal that applies to the claim: metric comparisons
// first, then static rule hits. When no metric covers the claim a single
// unverifiable signal records that the claim stands on the company's word
// alone.
func (r *Resolver) Resolve(claim models.Claim, company *models.Company) []models.Signal {
	var signals []models.Signal

	snap := company.Snapshot()
	matched := false
	for _, mc := range metricChecks {
		if mc.category != claim.Category || !mc.pattern.MatchString(claim.Text) {
			continue
		}
		matched = true
		if s := mc.check(claim, snap); s != nil {
			signals = append(signals, *s)
		}
	}

	if !matched || len(signals) == 0 {
		signals = append(signals, models.Signal{
			ClaimID:  claim.ID,
			RuleID:   "metric:none",
			Relation: models.RelationUnverifiable,
			Strength: 0.3,
			Source:   models.SourceMetric,
			Detail:   "no verified metric covers this claim",
		})
	}

	scan := rules.Scan(claim.Text, r.ruleset)
	for _, hit := range scan.Hits {
		signals = append(signals, models.Signal{
			ClaimID:  claim.ID,
			RuleID:   fmt.Sprintf("rule:%d", hit.RuleID),
			Relation: models.RelationUnverifiable,
			Strength: hit.Weight,
			Source:   models.SourceRule,
			Detail:   fmt.Sprintf("%s: %s", hit.Category, hit.Sentence),
		})
	}

	r.logger.Debug("resolved claim",
		zap.String("claim_id", claim.ID),
		zap.Int("signals", len(signals)),
		zap.String("notes", scan.Notes))

	return signals
}

func checkNeutrality(claim models.Claim, snap *models.MetricSnapshot) *models.Signal {
	s1, ok1 := snap.Metric(MetricScope1Emissions)
	s2, ok2 := snap.Metric(MetricScope2Emissions)
	if !ok1 && !ok2 {
		return nil
	}

	total := s1.Value + s2.Value
	if total > 0 {
		return &models.Signal{
			ClaimID:  claim.ID,
			RuleID:   "metric:neutrality",
			Relation: models.RelationContradicts,
			Strength: 0.9,
			Source:   models.SourceMetric,
			Detail:   fmt.Sprintf("reported scope 1+2 emissions are %.0f %s, not neutral", total, s1.Unit),
		}
	}
	return &models.Signal{
		ClaimID:  claim.ID,
		RuleID:   "metric:neutrality",
		Relation: models.RelationSupports,
		Strength: 0.8,
		Source:   models.SourceMetric,
		Detail:   "reported scope 1+2 emissions are at or below zero",
	}
}

func checkEmissionsTrend(claim models.Claim, snap *models.MetricSnapshot) *models.Signal {
	change, ok := snap.Metric(MetricEmissionsChange)
	if !ok {
		return nil
	}

	if change.Value > 0 {
		return &models.Signal{
			ClaimID:  claim.ID,
			RuleID:   "metric:emissions_trend",
			Relation: models.RelationContradicts,
			Strength: math.Min(1, 0.5+change.Value/100),
			Source:   models.SourceMetric,
			Detail:   fmt.Sprintf("emissions rose %.1f%% year over year", change.Value),
		}
	}
	return &models.Signal{
		ClaimID:  claim.ID,
		RuleID:   "metric:emissions_trend",
		Relation: models.RelationSupports,
		Strength: 0.7,
		Source:   models.SourceMetric,
		Detail:   fmt.Sprintf("emissions changed %.1f%% year over year", change.Value),
	}
}

func checkRenewableShare(claim models.Claim, snap *models.MetricSnapshot) *models.Signal {
	share, ok := snap.Metric(MetricRenewableShare)
	if !ok {
		return nil
	}

	if share.Value >= 99.5 {
		return &models.Signal{
			ClaimID:  claim.ID,
			RuleID:   "metric:renewable_share",
			Relation: models.RelationSupports,
			Strength: 0.9,
			Source:   models.SourceMetric,
			Detail:   fmt.Sprintf("renewable share is %.1f%%", share.Value),
		}
	}
	gap := 100 - share.Value
	return &models.Signal{
		ClaimID:  claim.ID,
		RuleID:   "metric:renewable_share",
		Relation: models.RelationContradicts,
		Strength: math.Min(1, 0.4+gap/100),
		Source:   models.SourceMetric,
		Detail:   fmt.Sprintf("renewable share is %.1f%%, not 100%%", share.Value),
	}
}

func checkZeroWaste(claim models.Claim, snap *models.MetricSnapshot) *models.Signal {
	recycled, ok := snap.Metric(MetricWasteRecycled)
	if !ok {
		return nil
	}

	if recycled.Value >= 99 {
		return &models.Signal{
			ClaimID:  claim.ID,
			RuleID:   "metric:zero_waste",
			Relation: models.RelationSupports,
			Strength: 0.8,
			Source:   models.SourceMetric,
			Detail:   fmt.Sprintf("%.1f%% of waste diverted from landfill", recycled.Value),
		}
	}
	return &models.Signal{
		ClaimID:  claim.ID,
		RuleID:   "metric:zero_waste",
		Relation: models.RelationContradicts,
		Strength: math.Min(1, 0.4+(100-recycled.Value)/100),
		Source:   models.SourceMetric,
		Detail:   fmt.Sprintf("only %.1f%% of waste diverted from landfill", recycled.Value),
	}
}

func checkWaterTrend(claim models.Claim, snap *models.MetricSnapshot) *models.Signal {
	change, ok := snap.Metric(MetricWaterChange)
	if !ok {
		return nil
	}

	if change.Value > 0 {
		return &models.Signal{
			ClaimID:  claim.ID,
			RuleID:   "metric:water_trend",
			Relation: models.RelationContradicts,
			Strength: math.Min(1, 0.5+change.Value/100),
			Source:   models.SourceMetric,
			Detail:   fmt.Sprintf("water withdrawal rose %.1f%%", change.Value),
		}
	}
	return &models.Signal{
		ClaimID:  claim.ID,
		RuleID:   "metric:water_trend",
		Relation: models.RelationSupports,
		Strength: 0.7,
		Source:   models.SourceMetric,
		Detail:   fmt.Sprintf("water withdrawal changed %.1f%%", change.Value),
	}
}

func checkBoardIndependence(claim models.Claim, snap *models.MetricSnapshot) *models.Signal {
	share, ok := snap.Metric(MetricBoardIndependence)
	if !ok {
		return nil
	}

	if share.Value >= 50 {
		return &models.Signal{
			ClaimID:  claim.ID,
			RuleID:   "metric:board_independence",
			Relation: models.RelationSupports,
			Strength: 0.7,
			Source:   models.SourceMetric,
			Detail:   fmt.Sprintf("%.0f%% of board seats are independent", share.Value),
		}
	}
	return &models.Signal{
		ClaimID:  claim.ID,
		RuleID:   "metric:board_independence",
		Relation: models.RelationContradicts,
		Strength: 0.6,
		Source:   models.SourceMetric,
		Detail:   fmt.Sprintf("only %.0f%% of board seats are independent", share.Value),
	}
}
