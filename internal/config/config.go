// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// duration wraps time.Duration so TOML files can use strings like "500ms".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBOT_* environment variables.
type Config struct {
	Venues   map[string]VenueConfig `toml:"venues"`
	Trading  TradingConfig          `toml:"trading"`
	Risk     RiskConfig             `toml:"risk"`
	Circuit  CircuitConfig          `toml:"circuit"`
	Postgres PostgresConfig         `toml:"postgres"`
	Redis    RedisConfig            `toml:"redis"`
	S3       S3Config               `toml:"s3"`
	Metrics  MetricsConfig          `toml:"metrics"`
	Notify   NotifyConfig           `toml:"notify"`
	Mode     string                 `toml:"mode"`
	LogLevel string                 `toml:"log_level"`
}

// VenueConfig describes one trading venue.
type VenueConfig struct {
	// Driver selects the venue client implementation from the registry.
	Driver      string   `toml:"driver"`
	Enabled     bool     `toml:"enabled"`
	APIKey      string   `toml:"api_key"`
	APISecret   string   `toml:"api_secret"`
	Instruments []string `toml:"instruments"`
	// TakerFeePct is the fallback taker fee for instruments whose venue
	// metadata lacks one. Nil means use the global default.
	TakerFeePct *float64 `toml:"taker_fee_pct"`
}

// TradingConfig holds the scan and execution parameters.
type TradingConfig struct {
	MinProfitPct       float64  `toml:"min_profit_pct"`
	MaxTradeSizeUSD    float64  `toml:"max_trade_size_usd"`
	MaxOpenTrades      int      `toml:"max_open_trades"`
	ScanCooldown       duration `toml:"scan_cooldown"`
	PostTradeCooldown  duration `toml:"post_trade_cooldown"`
	DefaultTakerFeePct float64  `toml:"default_taker_fee_pct"`
	// LiveWarmupDelay is how long a live-mode start waits before trading,
	// giving the operator a window to abort.
	LiveWarmupDelay duration `toml:"live_warmup_delay"`
}

// RiskConfig holds the governor limits.
type RiskConfig struct {
	EmergencyStopLossUSD float64  `toml:"emergency_stop_loss_usd"`
	AutoResume           bool     `toml:"auto_resume"`
	CheckInterval        duration `toml:"check_interval"`
	ReconcileInterval    duration `toml:"reconcile_interval"`
}

// CircuitConfig holds the circuit breaker tunables.
type CircuitConfig struct {
	FailureThreshold int      `toml:"failure_threshold"`
	RecoveryTimeout  duration `toml:"recovery_timeout"`
	BackoffBase      float64  `toml:"backoff_base"`
	MaxBackoff       duration `toml:"max_backoff"`
}

// PostgresConfig holds PostgreSQL connection parameters. When disabled the
// bot keeps PnL and orders in memory only, which is acceptable for paper
// trading.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the book mirror.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object storage parameters for the order archiver.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	Prefix          string   `toml:"prefix"`
	ArchiveInterval duration `toml:"archive_interval"`
	ArchiveMaxAge   duration `toml:"archive_max_age"`
}

// MetricsConfig holds the Prometheus exposition endpoint parameters.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// NotifyConfig holds operator notification channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns the built-in configuration, tuned for paper trading on
// two simulated venues.
func Defaults() Config {
	return Config{
		Venues: map[string]VenueConfig{
			"alpha": {Driver: "sim", Enabled: true, Instruments: []string{"BTC/USDT", "ETH/USDT"}},
			"beta":  {Driver: "sim", Enabled: true, Instruments: []string{"BTC/USDT", "ETH/USDT"}},
		},
		Trading: TradingConfig{
			MinProfitPct:       0.5,
			MaxTradeSizeUSD:    100,
			MaxOpenTrades:      4,
			ScanCooldown:       duration{500 * time.Millisecond},
			PostTradeCooldown:  duration{3 * time.Second},
			DefaultTakerFeePct: 0.1,
			LiveWarmupDelay:    duration{10 * time.Second},
		},
		Risk: RiskConfig{
			EmergencyStopLossUSD: 500,
			AutoResume:           false,
			CheckInterval:        duration{5 * time.Second},
			ReconcileInterval:    duration{30 * time.Second},
		},
		Circuit: CircuitConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  duration{60 * time.Second},
			BackoffBase:      2,
			MaxBackoff:       duration{60 * time.Second},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 4,
		},
		S3: S3Config{
			Enabled:         false,
			Region:          "us-east-1",
			Prefix:          "archive",
			ArchiveInterval: duration{time.Hour},
			ArchiveMaxAge:   duration{24 * time.Hour},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9100",
		},
		Notify: NotifyConfig{
			Events: []string{"emergency_stop", "escalation", "error"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper": true,
	"live":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, live)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	enabled := 0
	for name, v := range c.Venues {
		if !v.Enabled {
			continue
		}
		enabled++
		if v.Driver == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: driver must not be empty", name))
		}
		if len(v.Instruments) == 0 {
			errs = append(errs, fmt.Sprintf("venues.%s: at least one instrument is required", name))
		}
		for _, sym := range v.Instruments {
			if !strings.Contains(sym, "/") {
				errs = append(errs, fmt.Sprintf("venues.%s: instrument %q is not in BASE/QUOTE form", name, sym))
			}
		}
		if v.TakerFeePct != nil && *v.TakerFeePct < 0 {
			errs = append(errs, fmt.Sprintf("venues.%s: taker_fee_pct must be >= 0", name))
		}
		if strings.ToLower(c.Mode) == "live" && v.Driver != "sim" && v.APIKey == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: api_key is required in live mode", name))
		}
	}
	if enabled < 2 {
		errs = append(errs, fmt.Sprintf("venues: at least 2 enabled venues are required for arbitrage, got %d", enabled))
	}

	if c.Trading.MinProfitPct < 0 {
		errs = append(errs, "trading: min_profit_pct must be >= 0")
	}
	if c.Trading.MaxTradeSizeUSD <= 0 {
		errs = append(errs, "trading: max_trade_size_usd must be > 0")
	}
	if c.Trading.MaxOpenTrades < 1 {
		errs = append(errs, "trading: max_open_trades must be >= 1")
	}
	if c.Trading.ScanCooldown.Duration <= 0 {
		errs = append(errs, "trading: scan_cooldown must be > 0")
	}
	if c.Trading.DefaultTakerFeePct < 0 {
		errs = append(errs, "trading: default_taker_fee_pct must be >= 0")
	}

	if c.Risk.EmergencyStopLossUSD <= 0 {
		errs = append(errs, "risk: emergency_stop_loss_usd must be > 0")
	}
	if c.Risk.CheckInterval.Duration <= 0 {
		errs = append(errs, "risk: check_interval must be > 0")
	}

	if c.Circuit.FailureThreshold < 1 {
		errs = append(errs, "circuit: failure_threshold must be >= 1")
	}
	if c.Circuit.RecoveryTimeout.Duration <= 0 {
		errs = append(errs, "circuit: recovery_timeout must be > 0")
	}
	if c.Circuit.BackoffBase <= 1 {
		errs = append(errs, "circuit: backoff_base must be > 1")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be > 0")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateVenueDrivers checks every enabled venue against the set of
// registered drivers, so an unknown identifier fails before any connection
// attempt.
func (c *Config) ValidateVenueDrivers(supported func(string) bool) error {
	var errs []string
	for name, v := range c.Venues {
		if v.Enabled && !supported(v.Driver) {
			errs = append(errs, fmt.Sprintf("venues.%s: unknown driver %q", name, v.Driver))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// EnabledVenues returns the enabled venue configs keyed by name.
func (c *Config) EnabledVenues() map[string]VenueConfig {
	out := make(map[string]VenueConfig)
	for name, v := range c.Venues {
		if v.Enabled {
			out[name] = v
		}
	}
	return out
}

// Instruments returns the union of instruments across enabled venues.
func (c *Config) Instruments() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range c.Venues {
		if !v.Enabled {
			continue
		}
		for _, sym := range v.Instruments {
			if !seen[sym] {
				seen[sym] = true
				out = append(out, sym)
			}
		}
	}
	return out
}

// Live reports whether the bot runs against real venues.
func (c *Config) Live() bool {
	return strings.ToLower(c.Mode) == "live"
}
