package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

// MatchRules is the optional on-disk override for matching thresholds.
// Operators tune it without redeploying when a customer's filename
// conventions produce too many ambiguous matches.
type MatchRules struct {
	Thresholds struct {
		Partial int `yaml:"partial"`
		None    int `yaml:"none"`
	} `yaml:"thresholds"`
	MaxSuggestions int `yaml:"max_suggestions"`
}

// LoadMatchRules reads a YAML rules file and merges it over the given
// defaults. An empty path returns the defaults untouched.
func LoadMatchRules(path string, defaults domain.MatchThresholds) (domain.MatchThresholds, error) {
	if path == "" {
		return defaults, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("read match rules: %w", err)
	}
	var rules MatchRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return defaults, fmt.Errorf("parse match rules: %w", err)
	}
	out := defaults
	if rules.Thresholds.Partial > 0 {
		out.Partial = rules.Thresholds.Partial
	}
	if rules.Thresholds.None > 0 {
		out.None = rules.Thresholds.None
	}
	if rules.MaxSuggestions > 0 {
		out.MaxSuggestions = rules.MaxSuggestions
	}
	if out.None > out.Partial {
		return defaults, fmt.Errorf("match rules: none threshold %d exceeds partial threshold %d", out.None, out.Partial)
	}
	return out, nil
}
