// Package rules applies the static greenwashing-language rule table to
// claim text. The table is externally maintained and reloaded between runs;
// the pipeline never mutates it.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSpec is one row of the external rule table.
type RuleSpec struct {
	ID       int    `yaml:"id"`
	Category string `yaml:"category"`
	Pattern  string `yaml:"pattern"`
	// Unless suppresses the rule when this pattern also matches the
	// sentence (e.g. a target sentence that does name a baseline year).
	Unless string  `yaml:"unless,omitempty"`
	Weight float64 `yaml:"weight"`
}

type Rule struct {
	ID       int
	Category string
	Weight   float64

	pattern *regexp.Regexp
	unless  *regexp.Regexp
}

// Hit is one rule application: structured evidence, no scoring.
type Hit struct {
	RuleID   int
	Category string
	Weight   float64
	Sentence string
	SentIdx  int
}

type ScanResult struct {
	Hits  []Hit
	Notes string
}

// Rule categories as used by the default table.
const (
	CategoryVague        = "vague"
	CategoryLackMetrics  = "lack_metrics"
	CategoryMisleading   = "misleading"
	CategoryCherry       = "cherry"
	CategoryNoThirdParty = "no_3rd"
)

const (
	vagueVerbs     = `(?i)(aim|seek|strive|endeavor|commit|pledge|work towards|aspire|intend|plan to)`
	targetWords    = `(?i)(target|goal|objective|commitment)`
	yearOrBaseline = `(?i)(20\d{2}|baseline|base\s*year|reference\s*year|from\s*20\d{2})`
	scope2Ambig    = `(?i)(renewable electricity|green electricity)`
	scope2Qual     = `(?i)(market[- ]based|location[- ]based|dual reporting|residual mix|REC|GO|guarantee of origin|retire|cancel)`
	avoidedEmis    = `(?i)(avoided emissions|enabled emissions)`
	avoidedQual    = `(?i)(separate|disclose|outside\s+inventory)`
	cherryScopes   = `(?i)(only\s+scope\s*1\s*/\s*2|scope\s*3\s*(excluded|later|deferred))`
	neutralOffset  = `(?i)(carbon neutral|climate neutral).*?(via|through|using).*?(offset|credit)s?`
	thirdPartyStd  = `(?i)(PAS\s*2060|Verra|Gold\s*Standard|ICROA|ISAE\s*3000|AA1000)`
)

// DefaultSpecs is the built-in rule table, used when no external table is
// configured. The ids are stable and shared with the reporting layer.
func DefaultSpecs() []RuleSpec {
	return []RuleSpec{
		// Vague/unsubstantiated
		{ID: 901, Category: CategoryVague, Pattern: vagueVerbs, Weight: 0.5},

		// Targets without a year or baseline
		{ID: 102, Category: CategoryLackMetrics, Pattern: targetWords, Unless: yearOrBaseline, Weight: 0.6},

		// Misleading terminology
		{ID: 402, Category: CategoryMisleading, Pattern: scope2Ambig, Unless: scope2Qual, Weight: 0.7},
		{ID: 303, Category: CategoryMisleading, Pattern: avoidedEmis, Unless: avoidedQual, Weight: 0.6},

		// Cherry-picked scope coverage
		{ID: 202, Category: CategoryCherry, Pattern: cherryScopes, Weight: 0.7},

		// Offsets without a credible third-party standard
		{ID: 302, Category: CategoryNoThirdParty, Pattern: neutralOffset, Unless: thirdPartyStd, Weight: 0.8},
	}
}

func Compile(specs []RuleSpec) ([]Rule, error) {
	out := make([]Rule, 0, len(specs))
	for _, s := range specs {
		pattern, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern: %w", s.ID, err)
		}
		var unless *regexp.Regexp
		if s.Unless != "" {
			unless, err = regexp.Compile(s.Unless)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid unless pattern: %w", s.ID, err)
			}
		}
		out = append(out, Rule{
			ID:       s.ID,
			Category: s.Category,
			Weight:   s.Weight,
			pattern:  pattern,
			unless:   unless,
		})
	}
	return out, nil
}

// Load reads and compiles the external rule table; an empty path yields the
// built-in defaults.
func Load(path string) ([]Rule, error) {
	if path == "" {
		return Compile(DefaultSpecs())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading rule table: %v", err)
	}

	var specs []RuleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("error parsing rule table: %v", err)
	}

	return Compile(specs)
}

var (
	sentSplit  = regexp.MustCompile(`(?:[\.\?\!])\s+|\n+`)
	spaces     = regexp.MustCompile(`[ \t]+`)
	thirdParty = regexp.MustCompile(thirdPartyStd)
)

func normalize(text string) string {
	if text == "" {
		return ""
	}
	t := strings.ReplaceAll(text, "\u00a0", " ") // non-breaking space
	t = spaces.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// splitSentences is a naive splitter, good enough for rule matching.
func splitSentences(text string) []string {
	text = normalize(text)
	if text == "" {
		return nil
	}
	parts := sentSplit.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Scan applies every rule to every sentence and returns all hits; there is
// no early exit, the aggregation step needs the full evidence set. A
// sentence naming a credible third-party standard is whitelisted from the
// no_3rd category.
func Scan(text string, ruleset []Rule) ScanResult {
	sents := splitSentences(text)
	var hits []Hit

	for i, sent := range sents {
		hasThirdParty := thirdParty.MatchString(sent)

		for _, rule := range ruleset {
			if rule.Category == CategoryNoThirdParty && hasThirdParty {
				continue
			}
			if rule.unless != nil && rule.unless.MatchString(sent) {
				continue
			}
			if rule.pattern.MatchString(sent) {
				snippet := sent
				if len(snippet) > 400 {
					snippet = snippet[:400]
				}
				hits = append(hits, Hit{
					RuleID:   rule.ID,
					Category: rule.Category,
					Weight:   rule.Weight,
					Sentence: snippet,
					SentIdx:  i,
				})
			}
		}
	}

	notes := fmt.Sprintf("sentences=%d; hits=%d; whitelist_in_sent=third_party", len(sents), len(hits))
	return ScanResult{Hits: hits, Notes: notes}
}
