package arbitrage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/winyoulife/arbengine/internal/domain"
)

// CrossVenueConfig configures the cross-venue detector.
type CrossVenueConfig struct {
	Pairs        []string
	Venues       []string
	MinProfitPct float64       // minimum profit as a fraction of deployed capital
	MaxCapital   float64       // capital cap per opportunity
	TTL          time.Duration // opportunity validity window
	MaxQuoteAge  time.Duration // quotes older than this are skipped
}

// CrossVenue detects price discrepancies for the same pair across two
// venues: buy at the venue with the lower ask, sell at the venue with the
// higher bid.
type CrossVenue struct {
	cfg    CrossVenueConfig
	logger *slog.Logger
}

// NewCrossVenue creates a cross-venue detector.
func NewCrossVenue(cfg CrossVenueConfig, logger *slog.Logger) *CrossVenue {
	return &CrossVenue{cfg: cfg, logger: logger.With(slog.String("detector", "cross_venue"))}
}

// Kind returns the strategy identifier.
func (d *CrossVenue) Kind() domain.StrategyKind { return domain.StrategyCrossVenue }

// Detect scans every pair and unordered venue combination, evaluating both
// trade directions and keeping the better one. A candidate is emitted when
// selling at one venue's bid beats buying at the other venue's ask by at
// least MinProfitPct.
func (d *CrossVenue) Detect(ctx context.Context, book *QuoteBook) ([]domain.ArbitrageOpportunity, error) {
	now := time.Now()
	var out []domain.ArbitrageOpportunity

	for _, pair := range d.cfg.Pairs {
		for i, venueA := range d.cfg.Venues {
			for _, venueB := range d.cfg.Venues[i+1:] {
				fwd, fwdOK := d.evaluate(book, pair, venueA, venueB, now)
				rev, revOK := d.evaluate(book, pair, venueB, venueA, now)

				var opp domain.ArbitrageOpportunity
				switch {
				case fwdOK && revOK:
					opp = fwd
					if rev.ProfitPct > fwd.ProfitPct {
						opp = rev
					}
				case fwdOK:
					opp = fwd
				case revOK:
					opp = rev
				default:
					continue
				}

				out = append(out, opp)
				d.logger.DebugContext(ctx, "cross-venue candidate",
					slog.String("pair", pair),
					slog.String("buy_venue", opp.Venues[0]),
					slog.String("sell_venue", opp.Venues[1]),
					slog.Float64("profit_pct", opp.ProfitPct),
				)
			}
		}
	}
	return out, nil
}

func (d *CrossVenue) evaluate(book *QuoteBook, pair, buyVenue, sellVenue string, now time.Time) (domain.ArbitrageOpportunity, bool) {
	buy, ok := book.Quote(buyVenue, pair)
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}
	sell, ok := book.Quote(sellVenue, pair)
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}
	if d.cfg.MaxQuoteAge > 0 && (buy.Stale(now, d.cfg.MaxQuoteAge) || sell.Stale(now, d.cfg.MaxQuoteAge)) {
		return domain.ArbitrageOpportunity{}, false
	}
	if buy.Ask <= 0 || sell.Bid <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}

	profitPerUnit := sell.Bid - buy.Ask
	profitPct := profitPerUnit / buy.Ask
	if profitPct <= d.cfg.MinProfitPct {
		return domain.ArbitrageOpportunity{}, false
	}

	volume := buy.AskVolume
	if sell.BidVolume < volume {
		volume = sell.BidVolume
	}
	if volume <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}
	// Shrink volume so the buy leg never exceeds the capital cap.
	if buy.Ask*volume > d.cfg.MaxCapital {
		volume = d.cfg.MaxCapital / buy.Ask
	}

	risk := crossVenueRisk(buy, sell, volume)

	return domain.ArbitrageOpportunity{
		ID:     uuid.Must(uuid.NewRandom()).String(),
		Kind:   domain.StrategyCrossVenue,
		Pairs:  []string{pair},
		Venues: []string{buyVenue, sellVenue},
		Legs: []domain.ExecutionLeg{
			{Venue: buyVenue, Pair: pair, Action: domain.LegBuy, Price: buy.Ask, Volume: volume},
			{Venue: sellVenue, Pair: pair, Action: domain.LegSell, Price: sell.Bid, Volume: volume},
		},
		ExpectedProfit:  profitPerUnit * volume,
		ProfitPct:       profitPct,
		RequiredCapital: buy.Ask * volume,
		Volume:          volume,
		RiskScore:       risk,
		Confidence:      confidence(risk, 0.5),
		Status:          domain.OppActive,
		DetectedAt:      now,
		ExpiresAt:       now.Add(d.cfg.TTL),
	}, true
}

// crossVenueRisk scores a candidate from spread width, available liquidity,
// and the clock skew between the two quotes. Each component is clamped to
// [0, 1] and the mean is returned.
func crossVenueRisk(buy, sell domain.PriceQuote, volume float64) float64 {
	spreadRisk := clamp01(avg(buy.SpreadRatio(), sell.SpreadRatio()) * 100)
	liquidityRisk := 1 / (1 + volume)

	skew := buy.Timestamp.Sub(sell.Timestamp)
	if skew < 0 {
		skew = -skew
	}
	skewRisk := clamp01(skew.Seconds() / 10)

	return avg(spreadRisk, liquidityRisk, skewRisk)
}
