package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridmarket/internal/engine"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, engine.DefaultParams(), cfg.Params())
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
market:
  sellers: 4
  buyers: 6
  width: 5
  height: 3
  seed: 9
  steps: 12
engine:
  interval: 250ms
  checkpoint_every: 4
database:
  enabled: true
  path: /tmp/runs.db
logging:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, engine.Params{NumSellers: 4, NumBuyers: 6, Width: 5, Height: 3, Seed: 9}, cfg.Params())
	assert.Equal(t, 12, cfg.Market.Steps)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.Interval)
	assert.Equal(t, 4, cfg.Engine.CheckpointEvery)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "/tmp/runs.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "market:\n  sellers: 4\n")
	t.Setenv("MARKETSIM_MARKET_SELLERS", "11")
	t.Setenv("MARKETSIM_API_PORT", "9090")

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, 11, cfg.Market.Sellers)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"zero sellers":  "market:\n  sellers: 0\n",
		"negative size": "market:\n  width: -2\n",
		"bad level":     "logging:\n  level: loud\n",
		"db no path":    "database:\n  enabled: true\n  path: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestValidateConfig_UsesSimulationRules(t *testing.T) {
	cfg := Default()
	cfg.Market.Buyers = 0

	err := ValidateConfig(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Buyers")
}
