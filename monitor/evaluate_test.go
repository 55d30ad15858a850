package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *RuleConfig {
	return &RuleConfig{
		Threshold: 10,
		Rules: []Rule{
			{ID: "eval-exec", Weight: 10, Enabled: true},
			{ID: "obfuscated-string", Weight: 2, Enabled: true},
			{ID: "base64-blob", Weight: 5, Enabled: true},
			{ID: "typosquat", Weight: 4, Enabled: true},
			{ID: "retired-rule", Weight: 9, Enabled: false},
		},
	}
}

func TestEvaluateScoring(t *testing.T) {
	assert := assert.New(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	res := &ScanResult{
		Name:    "requestz",
		Version: "1.0.0",
		Hits: []RuleHit{
			{ID: "obfuscated-string", Weight: 2},
			{ID: "eval-exec", Weight: 10},
			{ID: "unknown-rule", Weight: 99},
			{ID: "retired-rule", Weight: 9},
		},
	}

	v := Evaluate(res, testConfig(), now)
	assert.True(v.Flagged)
	// unknown and disabled rules contribute nothing
	assert.Equal(12, v.Score)
	require.Len(t, v.Hits, 2)
	// descending weight ordering
	assert.Equal("eval-exec", v.Hits[0].ID)
	assert.Equal("obfuscated-string", v.Hits[1].ID)
	assert.Equal(now, v.EvaluatedAt)
}

func TestEvaluateIdempotent(t *testing.T) {
	assert := assert.New(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	res := &ScanResult{
		Name:    "requestz",
		Version: "1.0.0",
		Hits: []RuleHit{
			{ID: "eval-exec"},
			{ID: "base64-blob"},
			{ID: "obfuscated-string"},
		},
	}
	cfg := testConfig()

	v1 := Evaluate(res, cfg, now)
	v2 := Evaluate(res, cfg, now)
	assert.Equal(v1, v2)
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	assert := assert.New(t)
	now := time.Now()
	cfg := testConfig()

	// exactly at threshold: flagged (inclusive comparison)
	at := Evaluate(&ScanResult{Hits: []RuleHit{{ID: "eval-exec"}}}, cfg, now)
	assert.Equal(10, at.Score)
	assert.True(at.Flagged)

	// one below: not flagged
	below := Evaluate(&ScanResult{Hits: []RuleHit{{ID: "base64-blob"}, {ID: "typosquat"}}}, cfg, now)
	assert.Equal(9, below.Score)
	assert.False(below.Flagged)
}

func TestEvaluateWeightTieOrdering(t *testing.T) {
	assert := assert.New(t)
	cfg := &RuleConfig{
		Threshold: 1,
		Rules: []Rule{
			{ID: "zeta", Weight: 3, Enabled: true},
			{ID: "alpha", Weight: 3, Enabled: true},
		},
	}

	v := Evaluate(&ScanResult{Hits: []RuleHit{{ID: "zeta"}, {ID: "alpha"}}}, cfg, time.Now())
	// equal weights break ties by rule ID
	assert.Equal("alpha", v.Hits[0].ID)
	assert.Equal("zeta", v.Hits[1].ID)
}

func TestEvaluateNoHits(t *testing.T) {
	assert := assert.New(t)

	v := Evaluate(&ScanResult{Name: "clean", Version: "1.0"}, &RuleConfig{Threshold: 0}, time.Now())
	assert.False(v.Flagged)
	assert.Zero(v.Score)
	assert.Empty(v.Hits)
}

func TestRuleConfigValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(testConfig().Validate())

	bad := &RuleConfig{Threshold: -1}
	assert.Error(bad.Validate())

	bad = &RuleConfig{Rules: []Rule{{ID: "", Weight: 1}}}
	assert.Error(bad.Validate())

	bad = &RuleConfig{Rules: []Rule{{ID: "dup", Weight: 1}, {ID: "dup", Weight: 2}}}
	err := bad.Validate()
	require.Error(t, err)
	var cerr *ConfigError
	assert.ErrorAs(err, &cerr)
}
