package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	cfgPkg "github.com/xhad/greenlens/pkg/config"
)

func TestApplyFileConfig(t *testing.T) {
	cfg := &cfgPkg.Config{}
	cfg.LLM.BaseURL = "http://file:11434"
	cfg.LLM.Model = "llama3"
	cfg.LLM.Temperature = 0.4
	cfg.Extractor.MinCharsPerPage = 150
	cfg.Extractor.OCRBaseURL = "http://file:9000"
	cfg.Extractor.OCRTimeout = cfgPkg.Duration(90 * time.Second)
	cfg.Extractor.OCRRateLimit = 1.5
	cfg.Scoring.MaxAttempts = 4
	cfg.Scoring.MinBackoff = cfgPkg.Duration(2 * time.Second)
	cfg.Scoring.MaxBackoff = cfgPkg.Duration(20 * time.Second)
	cfg.Scoring.ContradictsWeight = 0.2
	cfg.Scoring.UnverifiableWeight = 0.1
	cfg.Scoring.SupportsWeight = 0.3
	cfg.Scoring.RuleScale = 0.4
	cfg.Rules.Path = "/etc/greenlens/rules.yaml"
	cfg.Metrics.BaseURL = "http://file:9100"

	var config Config
	applyFileConfig(&config, cfg)

	assert.Equal(t, "http://file:11434", config.BaseURL)
	assert.Equal(t, "llama3", config.Model)
	assert.Equal(t, 0.4, config.Temperature)

	// Extractor tuning reaches the extractor, not just the parser.
	assert.Equal(t, 150, config.MinCharsPerPage)
	assert.Equal(t, 90*time.Second, config.OCRTimeout)
	assert.Equal(t, 1.5, config.OCRRateLimit)

	// Scoring tuning reaches the workflow retry policy and weights.
	assert.Equal(t, 4, config.MaxAttempts)
	assert.Equal(t, 2*time.Second, config.MinBackoff)
	assert.Equal(t, 20*time.Second, config.MaxBackoff)
	assert.Equal(t, 0.2, config.ContradictsWeight)
	assert.Equal(t, 0.1, config.UnverifiableWeight)
	assert.Equal(t, 0.3, config.SupportsWeight)
	assert.Equal(t, 0.4, config.RuleScale)

	assert.Equal(t, "/etc/greenlens/rules.yaml", config.RulesPath)
	assert.Equal(t, "http://file:9100", config.MetricsURL)
}
