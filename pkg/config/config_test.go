package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Trading.TopN)
	assert.Equal(t, 0.55, cfg.Trading.ProbabilityThreshold)
	assert.Equal(t, 30, cfg.Trading.BacktestDays)
	assert.Equal(t, 3000.0, cfg.Trading.Capital)
	assert.Equal(t, 0.30, cfg.Trading.SentimentWeight)
	assert.Equal(t, 3, cfg.Data.LookbackYears)
	assert.Equal(t, 150, cfg.Data.MinHistoryRows)
	assert.Equal(t, "cache", cfg.CacheDir)
	assert.Equal(t, "out", cfg.OutDir)
	assert.Equal(t, "8090", cfg.APIPort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TOP_N", "5")
	t.Setenv("CAPITAL", "10000")
	t.Setenv("SENTIMENT_WEIGHT", "0.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Trading.TopN)
	assert.Equal(t, 10000.0, cfg.Trading.Capital)
	assert.Equal(t, 0.5, cfg.Trading.SentimentWeight)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("TOP_N", "lots")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Trading.TopN)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]struct {
		key, value string
	}{
		"top_n":            {"TOP_N", "0"},
		"capital":          {"CAPITAL", "-50"},
		"sentiment_weight": {"SENTIMENT_WEIGHT", "1.5"},
		"backtest_days":    {"BACKTEST_DAYS", "-1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key[:3])
		})
	}
}

func TestLoad_StrategyFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategy.yaml")
	// The trading section replaces trading config wholesale.
	content := `trading:
  top_n: 4
  probability_threshold: 0.6
  backtest_days: 20
  capital: 5000
  sentiment_weight: 0.2
  risk_pct_per_trade: 0.02
  max_position_pct: 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("STRATEGY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Trading.TopN)
	assert.Equal(t, 5000.0, cfg.Trading.Capital)
	// Data section untouched.
	assert.Equal(t, 3, cfg.Data.LookbackYears)
}

func TestLoad_StrategyFileUnknownFieldFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trading:\n  topn_typo: 4\n"), 0o644))
	t.Setenv("STRATEGY_FILE", path)

	_, err := Load()
	require.Error(t, err)
}

func TestHash_StableAndSensitive(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	h1, err := cfg.Hash()
	require.NoError(t, err)
	h2, err := cfg.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	cfg.Trading.TopN = 7
	h3, err := cfg.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
