package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/winyoulife/arbengine/internal/arbitrage"
	"github.com/winyoulife/arbengine/internal/backend"
	"github.com/winyoulife/arbengine/internal/crypto"
	"github.com/winyoulife/arbengine/internal/domain"
	"github.com/winyoulife/arbengine/internal/engine"
	"github.com/winyoulife/arbengine/internal/risk"
	"github.com/winyoulife/arbengine/internal/server"
	"github.com/winyoulife/arbengine/internal/server/handler"
	"github.com/winyoulife/arbengine/internal/venue"
	"github.com/winyoulife/arbengine/internal/venue/max"
)

// EngineMode runs the detection and execution engine headless, fully
// in-memory, with notifications as the only outward surface.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)

	eng, feed, err := a.buildEngine(deps)
	if err != nil {
		return fmt.Errorf("engine mode: %w", err)
	}
	if feed != nil {
		g.Go(func() error { return feed(ctx) })
	}
	g.Go(func() error { return eng.Run(ctx) })

	return g.Wait()
}

// ServerMode runs the engine together with the HTTP control API, backed by
// Postgres history and the Redis cache.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	eng, feed, err := a.buildEngine(deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	if feed != nil {
		g.Go(func() error { return feed(ctx) })
	}
	g.Go(func() error { return eng.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng)
	} else {
		a.logger.WarnContext(ctx, "server.enabled is false; server mode runs the engine only")
	}

	return g.Wait()
}

// FullMode is ServerMode plus the periodic history archival loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	eng, feed, err := a.buildEngine(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	if feed != nil {
		g.Go(func() error { return feed(ctx) })
	}
	g.Go(func() error { return eng.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng)
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error { return a.runArchiveLoop(ctx, deps.Archiver) })
	} else if a.cfg.Archive.Enabled {
		a.logger.WarnContext(ctx, "archive.enabled is true but the archiver could not be wired")
	}

	return g.Wait()
}

// buildEngine assembles the quote source, detectors, registry, governor,
// backend, and scheduler. The returned feed function, when non-nil, must be
// run alongside the engine to keep the quote cache warm.
func (a *App) buildEngine(deps *Dependencies) (*engine.Engine, func(context.Context) error, error) {
	cfg := a.cfg

	source, feed, err := a.buildQuoteSource(deps)
	if err != nil {
		return nil, nil, err
	}

	var detectors []arbitrage.Detector
	if cfg.CrossVenue.Enabled {
		detectors = append(detectors, arbitrage.NewCrossVenue(arbitrage.CrossVenueConfig{
			Pairs:        cfg.Quotes.Pairs,
			Venues:       cfg.Quotes.Venues,
			MinProfitPct: cfg.CrossVenue.MinProfitPct,
			MaxCapital:   cfg.CrossVenue.MaxCapital,
			TTL:          cfg.CrossVenue.TTL.Duration,
			MaxQuoteAge:  cfg.CrossVenue.MaxQuoteSkew.Duration,
		}, a.logger))
	}
	if cfg.Triangular.Enabled {
		detectors = append(detectors, arbitrage.NewTriangular(arbitrage.TriangularConfig{
			Venue:        cfg.Triangular.Venue,
			Pairs:        cfg.Triangular.Pairs,
			Notional:     cfg.Triangular.Notional,
			FeeRate:      cfg.Triangular.FeeRate,
			MinProfitPct: cfg.Triangular.MinProfitPct,
			TTL:          cfg.Triangular.TTL.Duration,
		}, a.logger))
	}
	if cfg.Statistical.Enabled {
		detectors = append(detectors, arbitrage.NewStatistical(arbitrage.StatisticalConfig{
			Venues:          cfg.Quotes.Venues,
			Pairs:           cfg.Quotes.Pairs,
			MinHistory:      cfg.Statistical.MinHistory,
			Window:          cfg.Statistical.Window,
			ZThreshold:      cfg.Statistical.ZThreshold,
			RequiredCapital: cfg.Statistical.RequiredCapital,
			TTL:             cfg.Statistical.TTL.Duration,
		}, a.logger))
	}
	if len(detectors) == 0 {
		return nil, nil, fmt.Errorf("app: no detectors enabled")
	}

	registry := arbitrage.NewRegistry(cfg.Engine.HistoryLimit)

	governor := risk.NewGovernor(risk.Config{
		TotalCapital:       cfg.Risk.TotalCapital,
		MaxExposure:        cfg.Risk.MaxExposure,
		MaxDailyLoss:       cfg.Risk.MaxDailyLoss,
		MaxRiskScore:       cfg.Risk.MaxRiskScore,
		MinConfidence:      cfg.Risk.MinConfidence,
		MaxOpenPositions:   cfg.Risk.MaxOpenPositions,
		EmergencyStopRatio: cfg.Risk.EmergencyStopRatio,
	}, deps.Audit, a.logger)

	execBackend := backend.NewSimulated(backend.SimulatedConfig{
		FeeRate:     cfg.Triangular.FeeRate,
		MaxSlippage: 0.001,
		FailureRate: 0.02,
		Seed:        cfg.Quotes.SimSeed,
	}, a.logger)

	eng := engine.New(engine.Config{
		AutoExecute:      cfg.Engine.AutoExecute,
		MaxConcurrent:    cfg.Engine.MaxConcurrent,
		ExecutionTimeout: cfg.Engine.ExecutionTimeout.Duration,
		LegRetries:       cfg.Engine.LegRetries,
		RetryDelay:       cfg.Engine.RetryDelay.Duration,
		ShutdownGrace:    cfg.Engine.ShutdownGrace.Duration,
		HistoryLimit:     cfg.Engine.HistoryLimit,
	}, engine.Deps{
		Registry: registry,
		Governor: governor,
		Backend:  execBackend,
		Store:    deps.ExecStore,
		OppStore: deps.OppStore,
		Bus:      deps.Bus,
		Notifier: deps.Notifier,
		Audit:    deps.Audit,
	}, a.logger)

	scanner := arbitrage.NewScanner(arbitrage.ScannerConfig{
		Venues:       cfg.Quotes.Venues,
		Pairs:        cfg.Quotes.Pairs,
		ScanInterval: cfg.Engine.ScanInterval.Duration,
	}, source, arbitrage.NewQuoteBook(), detectors, registry, deps.QuoteCache, eng.OnDetected, a.logger)
	eng.SetScanner(scanner)

	return eng, feed, nil
}

// buildQuoteSource returns the configured quote source plus an optional
// feed goroutine (the exchange WebSocket stream keeping the cache warm).
func (a *App) buildQuoteSource(deps *Dependencies) (domain.QuoteSource, func(context.Context) error, error) {
	cfg := a.cfg

	if cfg.Quotes.Source != "live" {
		return backend.NewSimulatedSource(cfg.Quotes.SimSeed), nil, nil
	}

	router := venue.NewRouter()

	var auth *crypto.HMACAuth
	if cfg.Max.ApiKey != "" {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:           cfg.Max.ApiSecret,
			EncryptedSecretPath: cfg.Max.EncryptedSecretPath,
			Password:            cfg.Max.SecretPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("app: load max api secret: %w", err)
		}
		auth = &crypto.HMACAuth{Key: cfg.Max.ApiKey, Secret: secret}
	}
	router.Register("max", max.NewClient(cfg.Max.BaseURL, auth))

	// Without a cache the router polls REST directly.
	if deps.QuoteCache == nil {
		return router, nil, nil
	}

	cache := deps.QuoteCache
	stream := max.NewBookStream(cfg.Max.WsURL, cfg.Quotes.Pairs, func(ctx context.Context, q domain.PriceQuote) {
		if err := cache.SetQuote(ctx, q); err != nil {
			a.logger.Debug("quote cache write failed", slog.String("error", err.Error()))
		}
	}, a.logger)

	source := venue.NewCacheSource(cache, cfg.Quotes.MaxQuoteAge.Duration, router)
	return source, stream.Run, nil
}

// startHTTPServer adds the HTTP control API to the errgroup, wiring the
// optional handlers for whatever infrastructure this mode carries. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine) {
	checks := make(map[string]handler.Pinger)
	if deps.PG != nil {
		checks["postgres"] = deps.PG
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(eng, checks, a.logger),
		Status:        handler.NewStatusHandler(eng, a.cfg.Mode),
		Engine:        handler.NewEngineHandler(eng, a.logger),
		Opportunities: handler.NewOpportunityHandler(eng, deps.OppStore, a.logger),
		Executions:    handler.NewExecutionHandler(eng, deps.ExecStore, a.logger),
	}
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, a.logger)
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		APIKey:      a.cfg.Server.ApiKey,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// runArchiveLoop periodically moves history older than the retention window
// to object storage.
func (a *App) runArchiveLoop(ctx context.Context, archiver domain.Archiver) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	logger := a.logger.With(slog.String("component", "archive_loop"))
	logger.InfoContext(ctx, "archive loop started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

			execs, err := archiver.ArchiveExecutions(ctx, cutoff)
			if err != nil {
				logger.ErrorContext(ctx, "archive executions failed", slog.String("error", err.Error()))
				continue
			}
			opps, err := archiver.ArchiveOpportunities(ctx, cutoff)
			if err != nil {
				logger.ErrorContext(ctx, "archive opportunities failed", slog.String("error", err.Error()))
				continue
			}
			logger.InfoContext(ctx, "archive run complete",
				slog.Time("cutoff", cutoff),
				slog.Int64("executions", execs),
				slog.Int64("opportunities", opps),
			)
		}
	}
}
