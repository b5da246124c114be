package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8787", cfg.Bridge.BaseURL)
	assert.Equal(t, "data/bars.db", cfg.Storage.BarCachePath)
	assert.Equal(t, 0.1, cfg.Risk.MaxLot)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bridge:
  base_url: "http://localhost:9999"
risk:
  default_max_lot: 2.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.Bridge.BaseURL)
	assert.Equal(t, 2.5, cfg.Risk.MaxLot)
	assert.Equal(t, 10, cfg.Risk.MaxDailyTrades, "unset fields still get defaults")
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bridge:
  base_url: "http://localhost:9999"
`), 0o644))

	t.Setenv("DECISIONCORE_BRIDGE_URL", "http://env-override:1234")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env-override:1234", cfg.Bridge.BaseURL)
}
