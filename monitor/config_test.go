package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRulesYAML = `
threshold: 10
rules:
  - id: eval-exec
    weight: 10
    enabled: true
  - id: obfuscated-string
    weight: 2
    enabled: true
  - id: retired-rule
    weight: 9
    enabled: false
`

func TestLoadRuleConfig(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRulesYAML), 0o644))

	cfg, err := LoadRuleConfig(path)
	require.NoError(t, err)
	assert.Equal(10, cfg.Threshold)
	require.Len(t, cfg.Rules, 3)
	assert.Equal("eval-exec", cfg.Rules[0].ID)
	assert.False(cfg.Rules[2].Enabled)
}

func TestLoadRuleConfigRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: -3\nrules: []\n"), 0o644))

	_, err := LoadRuleConfig(path)
	require.Error(t, err)
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)

	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))
	_, err = LoadRuleConfig(path)
	assert.ErrorAs(t, err, &cerr)

	_, err = LoadRuleConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
