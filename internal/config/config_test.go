package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Live())
	assert.ElementsMatch(t, []string{"BTC/USDT", "ETH/USDT"}, cfg.Instruments())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "turbo" },
			want:   "unknown mode",
		},
		{
			name: "single venue",
			mutate: func(c *Config) {
				v := c.Venues["beta"]
				v.Enabled = false
				c.Venues["beta"] = v
			},
			want: "at least 2 enabled venues",
		},
		{
			name: "venue without instruments",
			mutate: func(c *Config) {
				v := c.Venues["alpha"]
				v.Instruments = nil
				c.Venues["alpha"] = v
			},
			want: "at least one instrument",
		},
		{
			name: "malformed instrument",
			mutate: func(c *Config) {
				v := c.Venues["alpha"]
				v.Instruments = []string{"BTCUSDT"}
				c.Venues["alpha"] = v
			},
			want: "BASE/QUOTE",
		},
		{
			name: "live mode needs credentials",
			mutate: func(c *Config) {
				c.Mode = "live"
				c.Venues["real"] = VenueConfig{
					Driver: "binance", Enabled: true, Instruments: []string{"BTC/USDT"},
				}
			},
			want: "api_key is required in live mode",
		},
		{
			name:   "zero trade size",
			mutate: func(c *Config) { c.Trading.MaxTradeSizeUSD = 0 },
			want:   "max_trade_size_usd",
		},
		{
			name:   "backoff base too small",
			mutate: func(c *Config) { c.Circuit.BackoffBase = 1 },
			want:   "backoff_base",
		},
		{
			name: "postgres enabled without host",
			mutate: func(c *Config) {
				c.Postgres.Enabled = true
				c.Postgres.Host = ""
			},
			want: "postgres: host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateVenueDrivers(t *testing.T) {
	cfg := Defaults()
	cfg.Venues["gamma"] = VenueConfig{Driver: "ftx", Enabled: true, Instruments: []string{"BTC/USDT"}}

	supported := func(d string) bool { return d == "sim" }
	err := cfg.ValidateVenueDrivers(supported)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown driver "ftx"`)

	delete(cfg.Venues, "gamma")
	assert.NoError(t, cfg.ValidateVenueDrivers(supported))
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arbot.toml")
	data := `
mode = "paper"
log_level = "debug"

[trading]
min_profit_pct = 0.8
scan_cooldown = "250ms"

[venues.alpha]
driver = "sim"
enabled = true
instruments = ["BTC/USDT"]

[venues.beta]
driver = "sim"
enabled = true
instruments = ["BTC/USDT"]
taker_fee_pct = 0.2
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("ARBOT_TRADING_MAX_TRADE_SIZE_USD", "250")
	t.Setenv("ARBOT_VENUE_BETA_API_KEY", "k-123")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.8, cfg.Trading.MinProfitPct)
	assert.Equal(t, 250*time.Millisecond, cfg.Trading.ScanCooldown.Duration)
	assert.Equal(t, 250.0, cfg.Trading.MaxTradeSizeUSD, "env overrides the file")
	assert.Equal(t, "k-123", cfg.Venues["beta"].APIKey)
	require.NotNil(t, cfg.Venues["beta"].TakerFeePct)
	assert.Equal(t, 0.2, *cfg.Venues["beta"].TakerFeePct)

	// Defaults survive where the file is silent.
	assert.Equal(t, 4, cfg.Trading.MaxOpenTrades)
}
