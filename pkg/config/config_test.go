package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate(), "默认配置必须通过校验")
}

func TestLoadFromFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.Strategy.MinWinProbability)
	assert.Equal(t, 2, cfg.Strategy.MaxBuysPerCycle)
	assert.Equal(t, 8*time.Minute, cfg.Cycle.CollectOffset)
}

func TestLoadFromFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
strategy:
  min_win_probability: 0.8
  stake_usdc: 25
executor:
  max_splits: 5
feed:
  symbol: eth/usd
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Strategy.MinWinProbability)
	assert.Equal(t, 25.0, cfg.Strategy.StakeUSDC)
	assert.Equal(t, 5, cfg.Executor.MaxSplits)
	assert.Equal(t, "eth/usd", cfg.Feed.Symbol)
	// 未覆盖的字段保持默认
	assert.Equal(t, 0.05, cfg.Strategy.MinEdge)
	assert.Equal(t, 3, cfg.Executor.RetriesPerSplit)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLYMARKET_PRIVATE_KEY", "0xfeed")
	t.Setenv("CYCLEBET_DRY_RUN", "true")
	t.Setenv("CYCLEBET_STAKE_USDC", "42.5")

	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, "0xfeed", cfg.Wallet.PrivateKey)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 42.5, cfg.Strategy.StakeUSDC)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"胜率阈值越界", func(c *Config) { c.Strategy.MinWinProbability = 1.5 }},
		{"入场金额为零", func(c *Config) { c.Strategy.StakeUSDC = 0 }},
		{"收集窗口晚于策略窗口", func(c *Config) { c.Cycle.CollectOffset = time.Minute }},
		{"拆单次数为零", func(c *Config) { c.Executor.MaxSplits = 0 }},
		{"缓存大小为零", func(c *Config) { c.Feed.CacheSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadUserJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"private_key": "0xabc",
		"address": "0x1111111111111111111111111111111111111111",
		"proxy_address": "0x2222222222222222222222222222222222222222"
	}`), 0o600))

	cfg := Default()
	require.NoError(t, cfg.LoadUserJSON(path))
	assert.Equal(t, "0xabc", cfg.Wallet.PrivateKey)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", cfg.Wallet.FunderAddress)
}
