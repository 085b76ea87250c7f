package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaultsOnSparseFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  env: test
symbols:
  - aapl
  - MSFT
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Symbols, "symbols are normalized upper-case")
	assert.InDelta(t, 5000, cfg.Risk.MinPositionUSD, 1e-9)
	assert.InDelta(t, 15000, cfg.Risk.MaxPositionUSD, 1e-9)
	assert.InDelta(t, 0.15, cfg.Risk.MaxRiskPerTrade, 1e-9)
	assert.InDelta(t, 0.30, cfg.Risk.MaxAccountRisk, 1e-9)
	assert.InDelta(t, 0.03, cfg.Exit.ProfitTargetPct, 1e-9)
	assert.InDelta(t, 0.02, cfg.Exit.StopLossPct, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.Exit.MaxHold())
	assert.Equal(t, time.Minute, cfg.Lifecycle.TickInterval())
	assert.InDelta(t, 100000, cfg.Lifecycle.InitialCashUSD, 1e-9)
	assert.Equal(t, "^GSPC", cfg.Market.BenchmarkSymbol)
	assert.Equal(t, 30*time.Minute, cfg.Market.ContextTTL())
	assert.InDelta(t, 40, cfg.Market.StressVolatilityPct, 1e-9)
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
symbols: [NVDA]
risk:
  min_position_usd: 1000
  max_position_usd: 4000
exit:
  profit_target_pct: 0.05
lifecycle:
  tick_seconds: 30
`))
	require.NoError(t, err)
	assert.InDelta(t, 1000, cfg.Risk.MinPositionUSD, 1e-9)
	assert.InDelta(t, 4000, cfg.Risk.MaxPositionUSD, 1e-9)
	assert.InDelta(t, 0.05, cfg.Exit.ProfitTargetPct, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Lifecycle.TickInterval())
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate symbols", "symbols: [AAPL, aapl]"},
		{"empty symbol", "symbols: ['  ']"},
		{"min above max", "symbols: [AAPL]\nrisk: {min_position_usd: 20000, max_position_usd: 15000}"},
		{"per-trade above account risk", "symbols: [AAPL]\nrisk: {max_risk_per_trade: 0.5, max_account_risk: 0.3}"},
		{"profit target at one", "symbols: [AAPL]\nexit: {profit_target_pct: 1.0}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	_, err = Load("")
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Symbols = []string{"AAPL"}
	assert.NoError(t, validate(cfg))
}
