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
// built-in defaults, applies ARBENGINE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setBool(&cfg.Engine.AutoExecute, "ARBENGINE_ENGINE_AUTO_EXECUTE")
	setInt(&cfg.Engine.MaxConcurrent, "ARBENGINE_ENGINE_MAX_CONCURRENT")
	setDuration(&cfg.Engine.ScanInterval, "ARBENGINE_ENGINE_SCAN_INTERVAL")
	setDuration(&cfg.Engine.ExecutionTimeout, "ARBENGINE_ENGINE_EXECUTION_TIMEOUT")
	setInt(&cfg.Engine.LegRetries, "ARBENGINE_ENGINE_LEG_RETRIES")
	setDuration(&cfg.Engine.RetryDelay, "ARBENGINE_ENGINE_RETRY_DELAY")
	setDuration(&cfg.Engine.ShutdownGrace, "ARBENGINE_ENGINE_SHUTDOWN_GRACE")
	setInt(&cfg.Engine.HistoryLimit, "ARBENGINE_ENGINE_HISTORY_LIMIT")

	// ── Detectors ──
	setBool(&cfg.CrossVenue.Enabled, "ARBENGINE_CROSS_VENUE_ENABLED")
	setFloat64(&cfg.CrossVenue.MinProfitPct, "ARBENGINE_CROSS_VENUE_MIN_PROFIT_PCT")
	setFloat64(&cfg.CrossVenue.MaxCapital, "ARBENGINE_CROSS_VENUE_MAX_CAPITAL")
	setDuration(&cfg.CrossVenue.TTL, "ARBENGINE_CROSS_VENUE_TTL")
	setBool(&cfg.Triangular.Enabled, "ARBENGINE_TRIANGULAR_ENABLED")
	setStr(&cfg.Triangular.Venue, "ARBENGINE_TRIANGULAR_VENUE")
	setStringSlice(&cfg.Triangular.Pairs, "ARBENGINE_TRIANGULAR_PAIRS")
	setFloat64(&cfg.Triangular.Notional, "ARBENGINE_TRIANGULAR_NOTIONAL")
	setFloat64(&cfg.Triangular.FeeRate, "ARBENGINE_TRIANGULAR_FEE_RATE")
	setBool(&cfg.Statistical.Enabled, "ARBENGINE_STATISTICAL_ENABLED")
	setInt(&cfg.Statistical.MinHistory, "ARBENGINE_STATISTICAL_MIN_HISTORY")
	setInt(&cfg.Statistical.Window, "ARBENGINE_STATISTICAL_WINDOW")
	setFloat64(&cfg.Statistical.ZThreshold, "ARBENGINE_STATISTICAL_Z_THRESHOLD")

	// ── Risk ──
	setFloat64(&cfg.Risk.TotalCapital, "ARBENGINE_RISK_TOTAL_CAPITAL")
	setFloat64(&cfg.Risk.MaxExposure, "ARBENGINE_RISK_MAX_EXPOSURE")
	setFloat64(&cfg.Risk.MaxDailyLoss, "ARBENGINE_RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.MaxRiskScore, "ARBENGINE_RISK_MAX_RISK_SCORE")
	setFloat64(&cfg.Risk.MinConfidence, "ARBENGINE_RISK_MIN_CONFIDENCE")
	setInt(&cfg.Risk.MaxOpenPositions, "ARBENGINE_RISK_MAX_OPEN_POSITIONS")
	setFloat64(&cfg.Risk.EmergencyStopRatio, "ARBENGINE_RISK_EMERGENCY_STOP_RATIO")

	// ── Quotes ──
	setStr(&cfg.Quotes.Source, "ARBENGINE_QUOTES_SOURCE")
	setStringSlice(&cfg.Quotes.Venues, "ARBENGINE_QUOTES_VENUES")
	setStringSlice(&cfg.Quotes.Pairs, "ARBENGINE_QUOTES_PAIRS")
	setDuration(&cfg.Quotes.MaxQuoteAge, "ARBENGINE_QUOTES_MAX_QUOTE_AGE")

	// ── MAX ──
	setStr(&cfg.Max.BaseURL, "ARBENGINE_MAX_BASE_URL")
	setStr(&cfg.Max.WsURL, "ARBENGINE_MAX_WS_URL")
	setStr(&cfg.Max.ApiKey, "ARBENGINE_MAX_API_KEY")
	setStr(&cfg.Max.ApiSecret, "ARBENGINE_MAX_API_SECRET")
	setStr(&cfg.Max.EncryptedSecretPath, "ARBENGINE_MAX_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Max.SecretPassword, "ARBENGINE_MAX_SECRET_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBENGINE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBENGINE_POSTGRES_POOL_MIN_CONNS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBENGINE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARBENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBENGINE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ARBENGINE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ARBENGINE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "ARBENGINE_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBENGINE_SERVER_PORT")
	setStr(&cfg.Server.ApiKey, "ARBENGINE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBENGINE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBENGINE_MODE")
	setStr(&cfg.LogLevel, "ARBENGINE_LOG_LEVEL")
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
