package backend

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/winyoulife/arbengine/internal/domain"
)

// basePrices seeds the random walk for pairs the simulator knows about.
// Unknown pairs start at 100.
var basePrices = map[string]float64{
	"BTCTWD":  3_500_000,
	"ETHTWD":  120_000,
	"USDTTWD": 31.5,
	"BTCUSDT": 110_000,
	"ETHUSDT": 3_800,
}

// venueBias skews a venue's prices off the shared walk so cross-venue
// discrepancies actually occur.
var venueBias = map[string]float64{
	"max":     0.0,
	"binance": 0.0015,
}

// SimulatedSource generates random-walk quotes per venue/pair. Each call
// advances the pair's walk slightly and applies the venue's bias plus a
// small spread, mimicking a live ticker poll. A fixed seed makes the stream
// reproducible.
type SimulatedSource struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last map[string]float64 // per-pair walk state
}

var _ domain.QuoteSource = (*SimulatedSource)(nil)

// NewSimulatedSource creates a simulated quote source. seed 0 seeds from
// the clock.
func NewSimulatedSource(seed int64) *SimulatedSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedSource{
		rng:  rand.New(rand.NewSource(seed)),
		last: make(map[string]float64),
	}
}

// GetQuote returns the next quote on the pair's walk for the given venue.
func (s *SimulatedSource) GetQuote(ctx context.Context, venue, pair string) (domain.PriceQuote, error) {
	if err := ctx.Err(); err != nil {
		return domain.PriceQuote{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.last[pair]
	if !ok {
		price = basePrices[pair]
		if price == 0 {
			price = 100
		}
	}
	// Drift up to ±0.2% per poll.
	price *= 1 + (s.rng.Float64()-0.5)*0.004
	s.last[pair] = price

	mid := price * (1 + venueBias[venue])
	// Half-spread between 1 and 6 bps.
	halfSpread := mid * (0.0001 + s.rng.Float64()*0.0005)

	return domain.PriceQuote{
		Venue:     venue,
		Pair:      pair,
		Bid:       mid - halfSpread,
		Ask:       mid + halfSpread,
		BidVolume: 0.5 + s.rng.Float64()*4.5,
		AskVolume: 0.5 + s.rng.Float64()*4.5,
		Timestamp: time.Now(),
	}, nil
}
