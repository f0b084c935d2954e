// Package arbitrage provides the strategy detectors, the quote book they
// read from, the opportunity registry, and the scanner that drives them.
package arbitrage

import (
	"context"

	"github.com/winyoulife/arbengine/internal/domain"
)

// Detector is one arbitrage detection strategy. Detect inspects the quote
// book and returns zero or more candidate opportunities; it never executes
// anything.
type Detector interface {
	Kind() domain.StrategyKind
	Detect(ctx context.Context, book *QuoteBook) ([]domain.ArbitrageOpportunity, error)
}

// clamp01 limits x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// confidence derives a confidence score from a risk score with a per-strategy
// floor.
func confidence(riskScore, floor float64) float64 {
	c := 1 - riskScore
	if c < floor {
		return floor
	}
	return c
}

// avg returns the arithmetic mean of xs. Zero for an empty slice.
func avg(xs ...float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
