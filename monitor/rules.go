package monitor

// DefaultRuleConfig returns the built-in rule set used when no rules file is
// configured. Weights follow the severity of the behavior the scan rule
// detects; the threshold means a single high-severity hit is enough to flag.
func DefaultRuleConfig() *RuleConfig {
	return &RuleConfig{
		Threshold: 10,
		Rules: []Rule{
			{ID: "eval-exec", Weight: 10, Enabled: true},
			{ID: "install-hook-download", Weight: 10, Enabled: true},
			{ID: "exfiltrate-env", Weight: 9, Enabled: true},
			{ID: "reverse-shell", Weight: 10, Enabled: true},
			{ID: "base64-blob", Weight: 5, Enabled: true},
			{ID: "typosquat-name", Weight: 4, Enabled: true},
			{ID: "obfuscated-string", Weight: 2, Enabled: true},
			{ID: "suspicious-domain", Weight: 3, Enabled: true},
		},
	}
}
