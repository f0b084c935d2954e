package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/winyoulife/arbengine/internal/blob/s3"
	"github.com/winyoulife/arbengine/internal/cache/redis"
	"github.com/winyoulife/arbengine/internal/config"
	"github.com/winyoulife/arbengine/internal/domain"
	"github.com/winyoulife/arbengine/internal/notify"
	"github.com/winyoulife/arbengine/internal/store/postgres"
)

// Dependencies bundles the infrastructure the operating modes build on.
// Everything except the Notifier is optional and nil when the mode (or the
// configuration) does not call for it; the engine runs fully in-memory
// without any of it.
type Dependencies struct {
	// Clients, kept for health probes and teardown.
	PG    *postgres.Client
	Redis *redis.Client

	// Stores
	ExecStore domain.ExecutionStore
	OppStore  domain.OpportunityStore
	Audit     domain.AuditStore

	// Caches
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	Bus         domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Dispatcher
}

// needsPostgres reports whether the mode persists history.
func needsPostgres(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// needsRedis reports whether the mode uses the shared cache and bus.
func needsRedis(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// needsS3 reports whether the mode archives history to object storage.
func needsS3(mode string) bool {
	return mode == "full"
}

// Wire constructs the concrete infrastructure for the given mode and
// returns it with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, mode string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	var (
		execStore *postgres.ExecutionStore
		oppStore  *postgres.OpportunityStore
	)

	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres schema: %w", err)
		}

		pool := pgClient.Pool()
		deps.PG = pgClient
		execStore = postgres.NewExecutionStore(pool)
		oppStore = postgres.NewOpportunityStore(pool)
		deps.ExecStore = execStore
		deps.OppStore = oppStore
		deps.Audit = postgres.NewAuditStore(pool)
	}

	if needsRedis(mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.QuoteCache = redis.NewQuoteCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
	}

	if needsS3(mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)

		// The archiver needs the Postgres stores behind it.
		if execStore != nil && oppStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, execStore, oppStore, deps.Audit)
		}
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewDispatcher(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
