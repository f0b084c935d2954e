package arbitrage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/winyoulife/arbengine/internal/domain"
)

// TriangularConfig configures the triangular detector.
type TriangularConfig struct {
	Venue        string
	Pairs        []string // exactly three pairs forming the cycle
	Notional     float64  // starting capital per simulated cycle
	FeeRate      float64  // taker fee charged on every leg
	MinProfitPct float64
	TTL          time.Duration
}

// Triangular simulates both rotations of a three-pair cycle on a single
// venue and emits a candidate when the simulated round trip ends with more
// capital than it started with, net of per-leg fees.
type Triangular struct {
	cfg    TriangularConfig
	logger *slog.Logger
}

// NewTriangular creates a triangular detector.
func NewTriangular(cfg TriangularConfig, logger *slog.Logger) *Triangular {
	return &Triangular{cfg: cfg, logger: logger.With(slog.String("detector", "triangular"))}
}

// Kind returns the strategy identifier.
func (d *Triangular) Kind() domain.StrategyKind { return domain.StrategyTriangular }

// Detect evaluates both cycle rotations. Quotes for all three pairs must be
// present on the configured venue.
func (d *Triangular) Detect(ctx context.Context, book *QuoteBook) ([]domain.ArbitrageOpportunity, error) {
	if len(d.cfg.Pairs) != 3 {
		return nil, nil
	}
	quotes := make([]domain.PriceQuote, 3)
	for i, pair := range d.cfg.Pairs {
		q, ok := book.Quote(d.cfg.Venue, pair)
		if !ok || q.Bid <= 0 || q.Ask <= 0 {
			return nil, nil
		}
		quotes[i] = q
	}

	paths := [][3]pathLeg{
		// forward: buy pairs[0], sell pairs[1], buy pairs[2]
		{{0, domain.LegBuy}, {1, domain.LegSell}, {2, domain.LegBuy}},
		// reverse: buy pairs[1], sell pairs[0], buy pairs[2]
		{{1, domain.LegBuy}, {0, domain.LegSell}, {2, domain.LegBuy}},
	}

	now := time.Now()
	var out []domain.ArbitrageOpportunity
	for _, path := range paths {
		opp, ok := d.simulate(quotes, path, now)
		if !ok {
			continue
		}
		out = append(out, opp)
		d.logger.DebugContext(ctx, "triangular candidate",
			slog.String("venue", d.cfg.Venue),
			slog.Float64("profit_pct", opp.ProfitPct),
		)
	}
	return out, nil
}

// pathLeg selects a pair index and direction within a cycle rotation.
type pathLeg struct {
	pair   int
	action domain.LegAction
}

// simulate walks the cycle with the configured notional, charging the fee on
// every conversion: buys divide by the ask, sells multiply by the bid.
func (d *Triangular) simulate(quotes []domain.PriceQuote, path [3]pathLeg, now time.Time) (domain.ArbitrageOpportunity, bool) {
	feeMult := 1 - d.cfg.FeeRate
	amount := d.cfg.Notional
	legs := make([]domain.ExecutionLeg, 0, 3)

	for _, pl := range path {
		q := quotes[pl.pair]
		switch pl.action {
		case domain.LegBuy:
			volume := amount / q.Ask
			legs = append(legs, domain.ExecutionLeg{
				Venue:  d.cfg.Venue,
				Pair:   q.Pair,
				Action: domain.LegBuy,
				Price:  q.Ask,
				Volume: volume,
			})
			amount = volume * feeMult
		case domain.LegSell:
			legs = append(legs, domain.ExecutionLeg{
				Venue:  d.cfg.Venue,
				Pair:   q.Pair,
				Action: domain.LegSell,
				Price:  q.Bid,
				Volume: amount,
			})
			amount = amount * q.Bid * feeMult
		}
	}

	profit := amount - d.cfg.Notional
	profitPct := profit / d.cfg.Notional
	if profitPct <= d.cfg.MinProfitPct {
		return domain.ArbitrageOpportunity{}, false
	}

	risk := d.risk(quotes)
	return domain.ArbitrageOpportunity{
		ID:              uuid.Must(uuid.NewRandom()).String(),
		Kind:            domain.StrategyTriangular,
		Pairs:           append([]string(nil), d.cfg.Pairs...),
		Venues:          []string{d.cfg.Venue},
		Legs:            legs,
		ExpectedProfit:  profit,
		ProfitPct:       profitPct,
		RequiredCapital: d.cfg.Notional,
		Volume:          legs[0].Volume,
		RiskScore:       risk,
		Confidence:      confidence(risk, 0.4),
		Status:          domain.OppActive,
		DetectedAt:      now,
		ExpiresAt:       now.Add(d.cfg.TTL),
	}, true
}

// risk scores a cycle from the mean spread across the three pairs, the
// thinnest book among them, and a fixed execution-complexity term for the
// extra leg.
func (d *Triangular) risk(quotes []domain.PriceQuote) float64 {
	var spreadSum, minDepth float64
	for i, q := range quotes {
		spreadSum += q.SpreadRatio()
		depth := q.BidVolume
		if q.AskVolume < depth {
			depth = q.AskVolume
		}
		if i == 0 || depth < minDepth {
			minDepth = depth
		}
	}
	spreadRisk := clamp01(spreadSum / 3 * 50)
	liquidityRisk := 1 / (1 + minDepth)
	const complexityRisk = 0.6
	return avg(spreadRisk, liquidityRisk, complexityRisk)
}
