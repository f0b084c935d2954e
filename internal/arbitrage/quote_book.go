package arbitrage

import (
	"math"
	"sync"

	"github.com/winyoulife/arbengine/internal/domain"
)

// historyCap bounds the per-key mid-price history kept for the statistical
// detector.
const historyCap = 100

// QuoteBook holds the latest quote per venue/pair plus a bounded mid-price
// history per key. Detectors read from an immutable snapshot so a scan cycle
// sees consistent data.
type QuoteBook struct {
	mu      sync.RWMutex
	quotes  map[string]domain.PriceQuote
	history map[string][]float64
}

// NewQuoteBook returns an empty quote book.
func NewQuoteBook() *QuoteBook {
	return &QuoteBook{
		quotes:  make(map[string]domain.PriceQuote),
		history: make(map[string][]float64),
	}
}

func bookKey(venue, pair string) string {
	return venue + "|" + pair
}

// SetQuote stores the latest quote for its venue/pair and appends the mid
// price to the key's history.
func (b *QuoteBook) SetQuote(q domain.PriceQuote) {
	key := bookKey(q.Venue, q.Pair)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[key] = q
	h := append(b.history[key], q.Mid())
	if len(h) > historyCap {
		h = h[len(h)-historyCap:]
	}
	b.history[key] = h
}

// Quote returns the latest quote for venue/pair.
func (b *QuoteBook) Quote(venue, pair string) (domain.PriceQuote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[bookKey(venue, pair)]
	return q, ok
}

// History returns a copy of the mid-price history for venue/pair, oldest
// first.
func (b *QuoteBook) History(venue, pair string) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h := b.history[bookKey(venue, pair)]
	out := make([]float64, len(h))
	copy(out, h)
	return out
}

// Snapshot returns a point-in-time copy of all quotes keyed by venue|pair.
func (b *QuoteBook) Snapshot() map[string]domain.PriceQuote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]domain.PriceQuote, len(b.quotes))
	for k, v := range b.quotes {
		out[k] = v
	}
	return out
}

// meanStd returns the mean and population standard deviation of xs.
func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}
