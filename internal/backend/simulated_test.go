package backend

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winyoulife/arbengine/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buyLeg() domain.ExecutionLeg {
	return domain.ExecutionLeg{Venue: "max", Pair: "BTCTWD", Action: domain.LegBuy, Price: 100, Volume: 2}
}

func sellLeg() domain.ExecutionLeg {
	return domain.ExecutionLeg{Venue: "max", Pair: "BTCTWD", Action: domain.LegSell, Price: 100, Volume: 2}
}

func TestSimulatedFillWithoutSlippage(t *testing.T) {
	s := NewSimulated(SimulatedConfig{FeeRate: 0.002, Seed: 7}, testLogger())

	res, err := s.ExecuteLeg(context.Background(), buyLeg())
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.FilledPrice)
	assert.Equal(t, 2.0, res.FilledVolume)
	assert.InDelta(t, 0.4, res.Fee, 1e-9)
	assert.InDelta(t, -200.4, res.CashFlow, 1e-9, "buys are cost plus fee")

	res, err = s.ExecuteLeg(context.Background(), sellLeg())
	require.NoError(t, err)
	assert.InDelta(t, 199.6, res.CashFlow, 1e-9, "sells are proceeds minus fee")
}

func TestSimulatedSlippageIsAdverse(t *testing.T) {
	s := NewSimulated(SimulatedConfig{FeeRate: 0, MaxSlippage: 0.01, Seed: 7}, testLogger())

	for i := 0; i < 50; i++ {
		res, err := s.ExecuteLeg(context.Background(), buyLeg())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.FilledPrice, 100.0)
		assert.LessOrEqual(t, res.FilledPrice, 101.0)

		res, err = s.ExecuteLeg(context.Background(), sellLeg())
		require.NoError(t, err)
		assert.LessOrEqual(t, res.FilledPrice, 100.0)
		assert.GreaterOrEqual(t, res.FilledPrice, 99.0)
	}
}

func TestSimulatedDeterministicWithSeed(t *testing.T) {
	a := NewSimulated(SimulatedConfig{MaxSlippage: 0.01, Seed: 99}, testLogger())
	b := NewSimulated(SimulatedConfig{MaxSlippage: 0.01, Seed: 99}, testLogger())

	for i := 0; i < 10; i++ {
		ra, err := a.ExecuteLeg(context.Background(), buyLeg())
		require.NoError(t, err)
		rb, err := b.ExecuteLeg(context.Background(), buyLeg())
		require.NoError(t, err)
		assert.Equal(t, ra.FilledPrice, rb.FilledPrice)
	}
}

func TestSimulatedRejection(t *testing.T) {
	s := NewSimulated(SimulatedConfig{FailureRate: 1, Seed: 7}, testLogger())

	_, err := s.ExecuteLeg(context.Background(), buyLeg())
	assert.ErrorIs(t, err, domain.ErrLegRejected)
}

func TestSimulatedHonorsCancellation(t *testing.T) {
	s := NewSimulated(SimulatedConfig{Latency: time.Second, Seed: 7}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ExecuteLeg(ctx, buyLeg())
	assert.ErrorIs(t, err, context.Canceled)
}
