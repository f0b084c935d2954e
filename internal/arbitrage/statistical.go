package arbitrage

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/winyoulife/arbengine/internal/domain"
)

// StatisticalConfig configures the mean-reversion detector.
type StatisticalConfig struct {
	Venues          []string
	Pairs           []string
	MinHistory      int     // observations required before detecting at all
	Window          int     // trailing window used for mean/std
	ZThreshold      float64 // minimum |z| to emit a candidate
	RequiredCapital float64
	TTL             time.Duration
}

// Statistical detects mean-reversion setups: when the current mid deviates
// from its trailing-window mean by at least ZThreshold standard deviations,
// it bets on a reversion toward the mean.
type Statistical struct {
	cfg    StatisticalConfig
	logger *slog.Logger
}

// NewStatistical creates a statistical detector.
func NewStatistical(cfg StatisticalConfig, logger *slog.Logger) *Statistical {
	return &Statistical{cfg: cfg, logger: logger.With(slog.String("detector", "statistical"))}
}

// Kind returns the strategy identifier.
func (d *Statistical) Kind() domain.StrategyKind { return domain.StrategyStatistical }

// Detect scans every venue/pair with enough history. Prices above the mean
// produce a sell candidate, prices below a buy candidate.
func (d *Statistical) Detect(ctx context.Context, book *QuoteBook) ([]domain.ArbitrageOpportunity, error) {
	now := time.Now()
	var out []domain.ArbitrageOpportunity

	for _, venue := range d.cfg.Venues {
		for _, pair := range d.cfg.Pairs {
			history := book.History(venue, pair)
			if len(history) < d.cfg.MinHistory || len(history) < d.cfg.Window {
				continue
			}
			quote, ok := book.Quote(venue, pair)
			if !ok {
				continue
			}
			opp, ok := d.evaluate(quote, history, now)
			if !ok {
				continue
			}
			out = append(out, opp)
			d.logger.DebugContext(ctx, "statistical candidate",
				slog.String("venue", venue),
				slog.String("pair", pair),
				slog.Float64("profit_pct", opp.ProfitPct),
			)
		}
	}
	return out, nil
}

func (d *Statistical) evaluate(quote domain.PriceQuote, history []float64, now time.Time) (domain.ArbitrageOpportunity, bool) {
	window := history[len(history)-d.cfg.Window:]
	mean, std := meanStd(window)
	if std <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}

	current := quote.Mid()
	if current <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}
	z := (current - mean) / std
	if math.Abs(z) < d.cfg.ZThreshold {
		return domain.ArbitrageOpportunity{}, false
	}

	// Above the mean: sell and expect a drop. Below: buy and expect a rise.
	var leg domain.ExecutionLeg
	if z > 0 {
		leg = domain.ExecutionLeg{
			Venue:  quote.Venue,
			Pair:   quote.Pair,
			Action: domain.LegSell,
			Price:  quote.Bid,
			Volume: 1.0,
		}
	} else {
		leg = domain.ExecutionLeg{
			Venue:  quote.Venue,
			Pair:   quote.Pair,
			Action: domain.LegBuy,
			Price:  quote.Ask,
			Volume: 1.0,
		}
	}

	deviation := math.Abs(mean - current)
	risk := clamp01(0.7 + (math.Abs(z)-d.cfg.ZThreshold)*0.1)

	return domain.ArbitrageOpportunity{
		ID:              uuid.Must(uuid.NewRandom()).String(),
		Kind:            domain.StrategyStatistical,
		Pairs:           []string{quote.Pair},
		Venues:          []string{quote.Venue},
		Legs:            []domain.ExecutionLeg{leg},
		ExpectedProfit:  deviation * leg.Volume,
		ProfitPct:       deviation / current,
		RequiredCapital: d.cfg.RequiredCapital,
		Volume:          leg.Volume,
		RiskScore:       risk,
		Confidence:      confidence(risk, 0.3),
		Status:          domain.OppActive,
		DetectedAt:      now,
		ExpiresAt:       now.Add(d.cfg.TTL),
	}, true
}
