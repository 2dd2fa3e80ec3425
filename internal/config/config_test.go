package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "env: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.FeeRate().Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, 7*24*time.Hour, cfg.Trading.OrderExpiry)
	assert.Equal(t, 24*time.Hour, cfg.Trading.SnapshotInterval)
	assert.Equal(t, []string{"GBP", "USD", "EUR"}, cfg.Trading.Currencies)
	assert.False(t, cfg.IsProduction())
}

func TestLoadReadsMarket(t *testing.T) {
	path := writeConfig(t, `
env: test
trading:
  fee_rate: "0.002"
  starting_balance: "500"
market:
  exchanges:
    - code: LSE
      timezone: Europe/London
      open: "08:00"
      close: "16:30"
  assets:
    - symbol: VOD
      currency: GBP
      exchange: LSE
      seed_price: "0.72"
    - symbol: GBPUSD
      currency: USD
      active: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Market.Exchanges, 1)
	require.Len(t, cfg.Market.Assets, 2)
	assert.True(t, cfg.Market.Assets[0].IsActive())
	assert.False(t, cfg.Market.Assets[1].IsActive())
	assert.True(t, cfg.FeeRate().Equal(decimal.RequireFromString("0.002")))
	assert.True(t, cfg.StartingBalance().Equal(decimal.NewFromInt(500)))
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"fee rate not a number", "trading:\n  fee_rate: abc\n"},
		{"fee rate of one", "trading:\n  fee_rate: \"1\"\n"},
		{"unknown driver", "database:\n  driver: mysql\n"},
		{"negative snapshot interval", "trading:\n  snapshot_interval: -1h\n"},
		{"close before open", "market:\n  exchanges:\n    - code: X\n      timezone: UTC\n      open: \"17:00\"\n      close: \"09:00\"\n"},
		{"asset on unknown exchange", "market:\n  assets:\n    - symbol: A\n      currency: GBP\n      exchange: NOPE\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
