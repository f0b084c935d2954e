// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBENGINE_* environment variables.
type Config struct {
	Engine      EngineConfig      `toml:"engine"`
	CrossVenue  CrossVenueConfig  `toml:"cross_venue"`
	Triangular  TriangularConfig  `toml:"triangular"`
	Statistical StatisticalConfig `toml:"statistical"`
	Risk        RiskConfig        `toml:"risk"`
	Quotes      QuotesConfig      `toml:"quotes"`
	Max         MaxConfig         `toml:"max"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Archive     ArchiveConfig     `toml:"archive"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// EngineConfig holds scheduler parameters.
type EngineConfig struct {
	AutoExecute      bool     `toml:"auto_execute"`
	MaxConcurrent    int      `toml:"max_concurrent"`
	ScanInterval     duration `toml:"scan_interval"`
	ExecutionTimeout duration `toml:"execution_timeout"`
	LegRetries       int      `toml:"leg_retries"`
	RetryDelay       duration `toml:"retry_delay"`
	ShutdownGrace    duration `toml:"shutdown_grace"`
	HistoryLimit     int      `toml:"history_limit"`
}

// CrossVenueConfig holds parameters for the cross-venue detector.
type CrossVenueConfig struct {
	Enabled      bool     `toml:"enabled"`
	MinProfitPct float64  `toml:"min_profit_pct"`
	MaxCapital   float64  `toml:"max_capital"`
	TTL          duration `toml:"ttl"`
	MaxQuoteSkew duration `toml:"max_quote_skew"`
}

// TriangularConfig holds parameters for the triangular detector.
type TriangularConfig struct {
	Enabled      bool     `toml:"enabled"`
	Venue        string   `toml:"venue"`
	Pairs        []string `toml:"pairs"`
	Notional     float64  `toml:"notional"`
	FeeRate      float64  `toml:"fee_rate"`
	MinProfitPct float64  `toml:"min_profit_pct"`
	TTL          duration `toml:"ttl"`
}

// StatisticalConfig holds parameters for the mean-reversion detector.
type StatisticalConfig struct {
	Enabled         bool     `toml:"enabled"`
	MinHistory      int      `toml:"min_history"`
	Window          int      `toml:"window"`
	ZThreshold      float64  `toml:"z_threshold"`
	RequiredCapital float64  `toml:"required_capital"`
	TTL             duration `toml:"ttl"`
}

// RiskConfig holds risk governor limits.
type RiskConfig struct {
	TotalCapital       float64 `toml:"total_capital"`
	MaxExposure        float64 `toml:"max_exposure"` // 0 means total_capital
	MaxDailyLoss       float64 `toml:"max_daily_loss"`
	MaxRiskScore       float64 `toml:"max_risk_score"`
	MinConfidence      float64 `toml:"min_confidence"`
	MaxOpenPositions   int     `toml:"max_open_positions"`
	EmergencyStopRatio float64 `toml:"emergency_stop_ratio"`
}

// QuotesConfig holds quote-source parameters.
type QuotesConfig struct {
	Source      string   `toml:"source"` // "live" or "simulated"
	Venues      []string `toml:"venues"`
	Pairs       []string `toml:"pairs"`
	MaxQuoteAge duration `toml:"max_quote_age"`
	SimSeed     int64    `toml:"sim_seed"`
}

// MaxConfig holds MAX exchange API parameters.
type MaxConfig struct {
	BaseURL             string `toml:"base_url"`
	WsURL               string `toml:"ws_url"`
	ApiKey              string `toml:"api_key"`
	ApiSecret           string `toml:"api_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds history archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	ApiKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"` // requests per window per client, 0 disables
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			AutoExecute:      true,
			MaxConcurrent:    3,
			ScanInterval:     duration{3 * time.Second},
			ExecutionTimeout: duration{30 * time.Second},
			LegRetries:       2,
			RetryDelay:       duration{500 * time.Millisecond},
			ShutdownGrace:    duration{10 * time.Second},
			HistoryLimit:     1000,
		},
		CrossVenue: CrossVenueConfig{
			Enabled:      true,
			MinProfitPct: 0.001,
			MaxCapital:   50000,
			TTL:          duration{30 * time.Second},
			MaxQuoteSkew: duration{10 * time.Second},
		},
		Triangular: TriangularConfig{
			Enabled:      true,
			Venue:        "max",
			Pairs:        []string{"BTCTWD", "ETHTWD", "USDTTWD"},
			Notional:     100000,
			FeeRate:      0.001,
			MinProfitPct: 0.001,
			TTL:          duration{30 * time.Second},
		},
		Statistical: StatisticalConfig{
			Enabled:         true,
			MinHistory:      20,
			Window:          10,
			ZThreshold:      2.0,
			RequiredCapital: 10000,
			TTL:             duration{60 * time.Second},
		},
		Risk: RiskConfig{
			TotalCapital:       1_000_000,
			MaxExposure:        1_000_000,
			MaxDailyLoss:       50_000,
			MaxRiskScore:       0.8,
			MinConfidence:      0.3,
			MaxOpenPositions:   10,
			EmergencyStopRatio: 0.5,
		},
		Quotes: QuotesConfig{
			Source:      "simulated",
			Venues:      []string{"max", "binance"},
			Pairs:       []string{"BTCTWD", "ETHTWD", "USDTTWD"},
			MaxQuoteAge: duration{15 * time.Second},
		},
		Max: MaxConfig{
			BaseURL: "https://max-api.maicoin.com",
			WsURL:   "wss://max-stream.maicoin.com/ws",
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "arbengine",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbengine-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"execution_completed", "execution_failed", "emergency_stop"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine": true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validQuoteSources enumerates the accepted values for Quotes.Source.
var validQuoteSources = map[string]bool{
	"live":      true,
	"simulated": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.MaxConcurrent < 1 {
		errs = append(errs, "engine: max_concurrent must be >= 1")
	}
	if c.Engine.ScanInterval.Duration <= 0 {
		errs = append(errs, "engine: scan_interval must be > 0")
	}
	if c.Engine.ExecutionTimeout.Duration <= 0 {
		errs = append(errs, "engine: execution_timeout must be > 0")
	}
	if c.Engine.LegRetries < 0 {
		errs = append(errs, "engine: leg_retries must be >= 0")
	}
	if c.Engine.HistoryLimit < 1 {
		errs = append(errs, "engine: history_limit must be >= 1")
	}

	// Detectors
	if c.CrossVenue.Enabled {
		if c.CrossVenue.MinProfitPct <= 0 {
			errs = append(errs, "cross_venue: min_profit_pct must be > 0 when enabled")
		}
		if c.CrossVenue.MaxCapital <= 0 {
			errs = append(errs, "cross_venue: max_capital must be > 0 when enabled")
		}
	}
	if c.Triangular.Enabled {
		if len(c.Triangular.Pairs) != 3 {
			errs = append(errs, fmt.Sprintf("triangular: exactly 3 pairs required, got %d", len(c.Triangular.Pairs)))
		}
		if c.Triangular.Notional <= 0 {
			errs = append(errs, "triangular: notional must be > 0 when enabled")
		}
		if c.Triangular.FeeRate < 0 || c.Triangular.FeeRate >= 1 {
			errs = append(errs, fmt.Sprintf("triangular: fee_rate must be in [0, 1), got %v", c.Triangular.FeeRate))
		}
		if c.Triangular.Venue == "" {
			errs = append(errs, "triangular: venue must not be empty when enabled")
		}
	}
	if c.Statistical.Enabled {
		if c.Statistical.Window < 2 {
			errs = append(errs, "statistical: window must be >= 2 when enabled")
		}
		if c.Statistical.MinHistory < c.Statistical.Window {
			errs = append(errs, "statistical: min_history must be >= window")
		}
		if c.Statistical.ZThreshold <= 0 {
			errs = append(errs, "statistical: z_threshold must be > 0 when enabled")
		}
	}

	// Risk
	if c.Risk.TotalCapital <= 0 {
		errs = append(errs, "risk: total_capital must be > 0")
	}
	if c.Risk.MaxExposure < 0 {
		errs = append(errs, "risk: max_exposure must be >= 0")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		errs = append(errs, "risk: max_daily_loss must be > 0")
	}
	if c.Risk.MaxRiskScore <= 0 || c.Risk.MaxRiskScore > 1 {
		errs = append(errs, fmt.Sprintf("risk: max_risk_score must be in (0, 1], got %v", c.Risk.MaxRiskScore))
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("risk: min_confidence must be in [0, 1], got %v", c.Risk.MinConfidence))
	}
	if c.Risk.EmergencyStopRatio <= 0 || c.Risk.EmergencyStopRatio > 1 {
		errs = append(errs, fmt.Sprintf("risk: emergency_stop_ratio must be in (0, 1], got %v", c.Risk.EmergencyStopRatio))
	}
	if c.Risk.MaxOpenPositions < 1 {
		errs = append(errs, "risk: max_open_positions must be >= 1")
	}

	// Quotes
	if !validQuoteSources[strings.ToLower(c.Quotes.Source)] {
		errs = append(errs, fmt.Sprintf("quotes: unknown source %q (valid: live, simulated)", c.Quotes.Source))
	}
	if len(c.Quotes.Venues) == 0 {
		errs = append(errs, "quotes: at least one venue is required")
	}
	if len(c.Quotes.Pairs) == 0 {
		errs = append(errs, "quotes: at least one pair is required")
	}

	// MAX credentials are only needed for live quotes.
	if strings.ToLower(c.Quotes.Source) == "live" {
		if c.Max.BaseURL == "" {
			errs = append(errs, "max: base_url must not be empty for live quotes")
		}
		if c.Max.ApiKey == "" {
			errs = append(errs, "max: api_key is required for live quotes")
		}
		if c.Max.ApiSecret == "" && c.Max.EncryptedSecretPath == "" {
			errs = append(errs, "max: either api_secret or encrypted_secret_path must be set for live quotes")
		}
		if c.Max.EncryptedSecretPath != "" && c.Max.SecretPassword == "" {
			errs = append(errs, "max: secret_password is required when encrypted_secret_path is set")
		}
	}

	// Postgres
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
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 settings only matter when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archival is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archival is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
