// Package backend provides execution backends for the scheduler. The
// simulated backend fills legs against a model of venue behavior and is the
// default in every non-live deployment.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/winyoulife/arbengine/internal/domain"
)

// SimulatedConfig configures the simulated execution backend.
type SimulatedConfig struct {
	FeeRate     float64       // fee charged on each leg's notional
	MaxSlippage float64       // worst-case adverse fill deviation, as a fraction
	FailureRate float64       // probability in [0, 1] that a leg is rejected
	Latency     time.Duration // simulated venue round trip per leg
	Seed        int64         // 0 seeds from the clock
}

// Simulated fills legs with adverse slippage, per-leg fees, and an optional
// random rejection rate. With a fixed seed and zero failure rate it is fully
// deterministic, which is what the engine tests rely on.
type Simulated struct {
	cfg    SimulatedConfig
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

var _ domain.ExecutionBackend = (*Simulated)(nil)

// NewSimulated creates a simulated backend.
func NewSimulated(cfg SimulatedConfig, logger *slog.Logger) *Simulated {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "sim_backend")),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// ExecuteLeg fills one leg. The fill price moves against the taker by a
// random fraction of MaxSlippage; the fee comes out of the leg's cash flow.
func (s *Simulated) ExecuteLeg(ctx context.Context, leg domain.ExecutionLeg) (domain.LegResult, error) {
	if s.cfg.Latency > 0 {
		timer := time.NewTimer(s.cfg.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.LegResult{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return domain.LegResult{}, err
	}

	s.mu.Lock()
	fail := s.cfg.FailureRate > 0 && s.rng.Float64() < s.cfg.FailureRate
	slip := s.rng.Float64() * s.cfg.MaxSlippage
	s.mu.Unlock()

	if fail {
		return domain.LegResult{}, fmt.Errorf("backend: %s %s on %s: %w",
			leg.Action, leg.Pair, leg.Venue, domain.ErrLegRejected)
	}

	// Slippage is always adverse: buys fill above the quoted price, sells
	// below it.
	fillPrice := leg.Price
	switch leg.Action {
	case domain.LegBuy:
		fillPrice *= 1 + slip
	case domain.LegSell:
		fillPrice *= 1 - slip
	}

	notional := fillPrice * leg.Volume
	fee := notional * s.cfg.FeeRate

	cashFlow := -notional - fee
	if leg.Action == domain.LegSell {
		cashFlow = notional - fee
	}

	return domain.LegResult{
		Leg:          leg,
		FilledPrice:  fillPrice,
		FilledVolume: leg.Volume,
		Fee:          fee,
		CashFlow:     cashFlow,
		ExecutedAt:   time.Now(),
	}, nil
}
