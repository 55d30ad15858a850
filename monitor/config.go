package monitor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule is one enabled detection rule in the active configuration. Order in
// the Rules slice is the rollout order, not the display order; display
// ordering is always by descending weight.
type Rule struct {
	ID      string `yaml:"id"`
	Weight  int    `yaml:"weight"`
	Enabled bool   `yaml:"enabled"`
}

// RuleConfig is the active rule set and flag threshold. It is an explicit
// value: the evaluator takes it as an argument, so swapping configs never
// requires re-scanning anything.
type RuleConfig struct {
	Rules     []Rule `yaml:"rules"`
	Threshold int    `yaml:"threshold"`
}

// ConfigError marks a malformed rule/threshold configuration. This is fatal
// at startup: evaluating against a partial config would produce silently
// wrong verdicts.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid rule config: " + e.Reason
}

// Validate checks structural invariants of the config.
func (c *RuleConfig) Validate() error {
	if c.Threshold < 0 {
		return &ConfigError{Reason: fmt.Sprintf("threshold must be non-negative, got %d", c.Threshold)}
	}
	seen := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if r.ID == "" {
			return &ConfigError{Reason: "rule with empty id"}
		}
		if r.Weight < 0 {
			return &ConfigError{Reason: fmt.Sprintf("rule %s has negative weight %d", r.ID, r.Weight)}
		}
		if seen[r.ID] {
			return &ConfigError{Reason: "duplicate rule id: " + r.ID}
		}
		seen[r.ID] = true
	}
	return nil
}

// enabledWeights returns a lookup of enabled rule ID to weight.
func (c *RuleConfig) enabledWeights() map[string]int {
	out := make(map[string]int, len(c.Rules))
	for _, r := range c.Rules {
		if r.Enabled {
			out[r.ID] = r.Weight
		}
	}
	return out
}

// LoadRuleConfig reads and validates a YAML rule config file.
func LoadRuleConfig(path string) (*RuleConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule config: %w", err)
	}
	var cfg RuleConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
