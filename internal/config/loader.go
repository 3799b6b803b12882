package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path loads
// defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
		// A file that defines venues replaces the default venue set
		// instead of merging with it.
		var probe Config
		if _, err := toml.DecodeFile(path, &probe); err != nil {
			return nil, err
		}
		if len(probe.Venues) > 0 {
			cfg.Venues = probe.Venues
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file. Venue credentials use ARBOT_VENUE_<NAME>_API_KEY / _API_SECRET.
func applyEnvOverrides(cfg *Config) {
	// ── Venues ──
	for name, v := range cfg.Venues {
		prefix := "ARBOT_VENUE_" + strings.ToUpper(name) + "_"
		setStr(&v.APIKey, prefix+"API_KEY")
		setStr(&v.APISecret, prefix+"API_SECRET")
		cfg.Venues[name] = v
	}

	// ── Trading ──
	setFloat64(&cfg.Trading.MinProfitPct, "ARBOT_TRADING_MIN_PROFIT_PCT")
	setFloat64(&cfg.Trading.MaxTradeSizeUSD, "ARBOT_TRADING_MAX_TRADE_SIZE_USD")
	setInt(&cfg.Trading.MaxOpenTrades, "ARBOT_TRADING_MAX_OPEN_TRADES")
	setDuration(&cfg.Trading.ScanCooldown, "ARBOT_TRADING_SCAN_COOLDOWN")
	setDuration(&cfg.Trading.PostTradeCooldown, "ARBOT_TRADING_POST_TRADE_COOLDOWN")
	setFloat64(&cfg.Trading.DefaultTakerFeePct, "ARBOT_TRADING_DEFAULT_TAKER_FEE_PCT")
	setDuration(&cfg.Trading.LiveWarmupDelay, "ARBOT_TRADING_LIVE_WARMUP_DELAY")

	// ── Risk ──
	setFloat64(&cfg.Risk.EmergencyStopLossUSD, "ARBOT_RISK_EMERGENCY_STOP_LOSS_USD")
	setBool(&cfg.Risk.AutoResume, "ARBOT_RISK_AUTO_RESUME")
	setDuration(&cfg.Risk.CheckInterval, "ARBOT_RISK_CHECK_INTERVAL")
	setDuration(&cfg.Risk.ReconcileInterval, "ARBOT_RISK_RECONCILE_INTERVAL")

	// ── Circuit ──
	setInt(&cfg.Circuit.FailureThreshold, "ARBOT_CIRCUIT_FAILURE_THRESHOLD")
	setDuration(&cfg.Circuit.RecoveryTimeout, "ARBOT_CIRCUIT_RECOVERY_TIMEOUT")
	setFloat64(&cfg.Circuit.BackoffBase, "ARBOT_CIRCUIT_BACKOFF_BASE")
	setDuration(&cfg.Circuit.MaxBackoff, "ARBOT_CIRCUIT_MAX_BACKOFF")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "ARBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "ARBOT_S3_PREFIX")
	setDuration(&cfg.S3.ArchiveInterval, "ARBOT_S3_ARCHIVE_INTERVAL")
	setDuration(&cfg.S3.ArchiveMaxAge, "ARBOT_S3_ARCHIVE_MAX_AGE")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "ARBOT_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "ARBOT_METRICS_ADDR")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBOT_MODE")
	setStr(&cfg.LogLevel, "ARBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
