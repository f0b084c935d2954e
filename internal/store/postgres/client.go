// Package postgres implements domain store interfaces using PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientConfig holds connection parameters for the PostgreSQL client.
type ClientConfig struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN builds a PostgreSQL connection string from the given config.
func DSN(cfg ClientConfig) string {
	if strings.TrimSpace(cfg.DSN) != "" {
		return cfg.DSN
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database, sslMode,
	)
}

// Client wraps a pgxpool.Pool and manages the schema.
type Client struct {
	pool *pgxpool.Pool
}

// New creates a new Client with a connection pool configured from cfg.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Client{pool: pool}, nil
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Pool returns the underlying connection pool.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close shuts down the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// schema holds the idempotent DDL for every table the stores use.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS executions (
		id              TEXT PRIMARY KEY,
		opportunity_id  TEXT NOT NULL,
		kind            TEXT NOT NULL,
		status          TEXT NOT NULL,
		expected_profit DOUBLE PRECISION NOT NULL,
		actual_profit   DOUBLE PRECISION NOT NULL,
		total_fees      DOUBLE PRECISION NOT NULL,
		failure_reason  TEXT NOT NULL DEFAULT '',
		started_at      TIMESTAMPTZ NOT NULL,
		completed_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS executions_started_at_idx ON executions (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS execution_legs (
		id            BIGSERIAL PRIMARY KEY,
		execution_id  TEXT NOT NULL REFERENCES executions (id) ON DELETE CASCADE,
		venue         TEXT NOT NULL,
		pair          TEXT NOT NULL,
		action        TEXT NOT NULL,
		quote_price   DOUBLE PRECISION NOT NULL,
		filled_price  DOUBLE PRECISION NOT NULL,
		filled_volume DOUBLE PRECISION NOT NULL,
		fee           DOUBLE PRECISION NOT NULL,
		cash_flow     DOUBLE PRECISION NOT NULL,
		executed_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS opportunities (
		id               TEXT PRIMARY KEY,
		kind             TEXT NOT NULL,
		pairs            TEXT[] NOT NULL,
		venues           TEXT[] NOT NULL,
		expected_profit  DOUBLE PRECISION NOT NULL,
		profit_pct       DOUBLE PRECISION NOT NULL,
		required_capital DOUBLE PRECISION NOT NULL,
		volume           DOUBLE PRECISION NOT NULL,
		risk_score       DOUBLE PRECISION NOT NULL,
		confidence       DOUBLE PRECISION NOT NULL,
		status           TEXT NOT NULL,
		detected_at      TIMESTAMPTZ NOT NULL,
		expires_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS opportunities_detected_at_idx ON opportunities (detected_at DESC)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         BIGSERIAL PRIMARY KEY,
		event      TEXT NOT NULL,
		detail     JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema applies the idempotent DDL for all tables.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}
