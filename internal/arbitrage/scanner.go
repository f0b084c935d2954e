package arbitrage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/winyoulife/arbengine/internal/domain"
)

// ScannerConfig configures the detection loop.
type ScannerConfig struct {
	Venues       []string
	Pairs        []string
	ScanInterval time.Duration
}

// Scanner polls the quote source into the quote book and runs every detector
// against it, registering the candidates that survive deduplication.
type Scanner struct {
	cfg        ScannerConfig
	source     domain.QuoteSource
	book       *QuoteBook
	detectors  []Detector
	registry   *Registry
	cache      domain.QuoteCache // optional mirror of polled quotes
	onDetected func(domain.ArbitrageOpportunity)
	logger     *slog.Logger
}

// NewScanner creates a scanner. cache and onDetected may be nil.
func NewScanner(
	cfg ScannerConfig,
	source domain.QuoteSource,
	book *QuoteBook,
	detectors []Detector,
	registry *Registry,
	cache domain.QuoteCache,
	onDetected func(domain.ArbitrageOpportunity),
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		cfg:        cfg,
		source:     source,
		book:       book,
		detectors:  detectors,
		registry:   registry,
		cache:      cache,
		onDetected: onDetected,
		logger:     logger.With(slog.String("component", "scanner")),
	}
}

// Run executes scan cycles at the configured interval until ctx is done.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "scanner started",
		slog.Int("venues", len(s.cfg.Venues)),
		slog.Int("pairs", len(s.cfg.Pairs)),
		slog.Int("detectors", len(s.detectors)),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.WarnContext(ctx, "scan cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ScanOnce performs one full cycle: refresh quotes, run detectors, register
// survivors. It returns the opportunities newly added to the registry.
func (s *Scanner) ScanOnce(ctx context.Context) ([]domain.ArbitrageOpportunity, error) {
	if err := s.refreshQuotes(ctx); err != nil {
		return nil, err
	}

	var registered []domain.ArbitrageOpportunity
	for _, det := range s.detectors {
		candidates, err := det.Detect(ctx, s.book)
		if err != nil {
			s.logger.WarnContext(ctx, "detector failed",
				slog.String("kind", string(det.Kind())),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, opp := range candidates {
			if err := s.registry.Insert(opp); err != nil {
				if errors.Is(err, domain.ErrDuplicate) {
					continue
				}
				return registered, err
			}
			registered = append(registered, opp)
			if s.onDetected != nil {
				s.onDetected(opp)
			}
		}
	}
	if len(registered) > 0 {
		s.logger.InfoContext(ctx, "opportunities registered", slog.Int("count", len(registered)))
	}
	return registered, nil
}

// refreshQuotes pulls a fresh quote for every venue/pair. A venue that has
// no quote for a pair is skipped; real errors abort the cycle only when the
// context is cancelled.
func (s *Scanner) refreshQuotes(ctx context.Context) error {
	for _, venue := range s.cfg.Venues {
		for _, pair := range s.cfg.Pairs {
			quote, err := s.source.GetQuote(ctx, venue, pair)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if !errors.Is(err, domain.ErrNotFound) {
					s.logger.DebugContext(ctx, "quote fetch failed",
						slog.String("venue", venue),
						slog.String("pair", pair),
						slog.String("error", err.Error()),
					)
				}
				continue
			}
			s.book.SetQuote(quote)
			if s.cache != nil {
				if err := s.cache.SetQuote(ctx, quote); err != nil {
					s.logger.DebugContext(ctx, "quote cache write failed", slog.String("error", err.Error()))
				}
			}
		}
	}
	return nil
}
