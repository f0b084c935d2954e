package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winyoulife/arbengine/internal/arbitrage"
	"github.com/winyoulife/arbengine/internal/backend"
	"github.com/winyoulife/arbengine/internal/domain"
	"github.com/winyoulife/arbengine/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// emptySource never has quotes; the scanner loop runs but detects nothing,
// which keeps lifecycle tests deterministic.
type emptySource struct{}

func (emptySource) GetQuote(ctx context.Context, venue, pair string) (domain.PriceQuote, error) {
	return domain.PriceQuote{}, domain.ErrNotFound
}

func testOpp(id string) domain.ArbitrageOpportunity {
	now := time.Now()
	return domain.ArbitrageOpportunity{
		ID:    id,
		Kind:  domain.StrategyCrossVenue,
		Pairs: []string{"BTCTWD"},
		Legs: []domain.ExecutionLeg{
			{Venue: "max", Pair: "BTCTWD", Action: domain.LegBuy, Price: 100, Volume: 1},
			{Venue: "binance", Pair: "BTCTWD", Action: domain.LegSell, Price: 102, Volume: 1},
		},
		ExpectedProfit:  2,
		ProfitPct:       0.02,
		RequiredCapital: 100,
		Volume:          1,
		RiskScore:       0.2,
		Confidence:      0.8,
		Status:          domain.OppActive,
		DetectedAt:      now,
		ExpiresAt:       now.Add(time.Minute),
	}
}

// testOppPair is testOpp on a distinct pair, so several opportunities can be
// live in the registry at once without tripping duplicate suppression.
func testOppPair(id, pair string) domain.ArbitrageOpportunity {
	o := testOpp(id)
	o.Pairs = []string{pair}
	o.Legs[0].Pair = pair
	o.Legs[1].Pair = pair
	return o
}

func defaultRiskConfig() risk.Config {
	return risk.Config{
		TotalCapital:       1_000_000,
		MaxDailyLoss:       100_000,
		MaxRiskScore:       0.9,
		MinConfidence:      0.1,
		MaxOpenPositions:   10,
		EmergencyStopRatio: 0.99,
	}
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *arbitrage.Registry, *risk.Governor) {
	t.Helper()
	be := backend.NewSimulated(backend.SimulatedConfig{
		FeeRate:     0.001,
		MaxSlippage: 0,
		FailureRate: 0,
		Seed:        42,
	}, testLogger())
	return newTestEngineWith(t, cfg, defaultRiskConfig(), be)
}

func newTestEngineWith(t *testing.T, cfg Config, rcfg risk.Config, be domain.ExecutionBackend) (*Engine, *arbitrage.Registry, *risk.Governor) {
	t.Helper()
	registry := arbitrage.NewRegistry(100)
	governor := risk.NewGovernor(rcfg, nil, testLogger())

	eng := New(cfg, Deps{
		Registry: registry,
		Governor: governor,
		Backend:  be,
	}, testLogger())

	scanner := arbitrage.NewScanner(arbitrage.ScannerConfig{
		Venues:       []string{"max"},
		Pairs:        []string{"BTCTWD"},
		ScanInterval: 50 * time.Millisecond,
	}, emptySource{}, arbitrage.NewQuoteBook(), nil, registry, nil, eng.OnDetected, testLogger())
	eng.SetScanner(scanner)

	return eng, registry, governor
}

func defaultEngineConfig() Config {
	return Config{
		AutoExecute:      false,
		MaxConcurrent:    2,
		ExecutionTimeout: 5 * time.Second,
		LegRetries:       1,
		RetryDelay:       10 * time.Millisecond,
		ShutdownGrace:    time.Second,
		HistoryLimit:     100,
		DispatchInterval: 20 * time.Millisecond,
		SweepInterval:    time.Hour,
	}
}

// startEngine runs the engine in the background and waits for it to reach
// the running state.
func startEngine(t *testing.T, eng *Engine) (stop func() error) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return eng.State() == domain.EngineRunning
	}, 2*time.Second, 5*time.Millisecond)

	return func() error {
		eng.Stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("engine did not stop in time")
			return nil
		}
	}
}

func TestEngineLifecycle(t *testing.T) {
	eng, _, _ := newTestEngine(t, defaultEngineConfig())
	assert.Equal(t, domain.EngineStopped, eng.State())

	stop := startEngine(t, eng)

	require.NoError(t, eng.Pause(context.Background()))
	assert.Equal(t, domain.EnginePaused, eng.State())

	require.NoError(t, eng.Resume(context.Background()))
	assert.Equal(t, domain.EngineRunning, eng.State())

	require.NoError(t, stop())
	assert.Equal(t, domain.EngineStopped, eng.State())
}

func TestEngineInvalidTransitions(t *testing.T) {
	eng, _, _ := newTestEngine(t, defaultEngineConfig())

	assert.ErrorIs(t, eng.Pause(context.Background()), domain.ErrInvalidState)
	assert.ErrorIs(t, eng.Resume(context.Background()), domain.ErrInvalidState)

	_, err := eng.ManualExecute(context.Background(), "whatever")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	stop := startEngine(t, eng)
	assert.ErrorIs(t, eng.Resume(context.Background()), domain.ErrInvalidState)
	require.NoError(t, stop())
}

func TestEngineRunTwiceFromRunning(t *testing.T) {
	eng, _, _ := newTestEngine(t, defaultEngineConfig())
	stop := startEngine(t, eng)

	err := eng.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	require.NoError(t, stop())
}

func TestEngineManualExecute(t *testing.T) {
	eng, registry, governor := newTestEngine(t, defaultEngineConfig())
	stop := startEngine(t, eng)

	opp := testOpp("manual-1")
	require.NoError(t, registry.Insert(opp))

	rec, err := eng.ManualExecute(context.Background(), "manual-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecCompleted, rec.Status)
	assert.Equal(t, "manual-1", rec.OpportunityID)
	require.Len(t, rec.Legs, 2)

	// Buy 1 @ 100 and sell 1 @ 102 with a 0.1% fee and no slippage.
	wantProfit := -100 - 0.1 + 102 - 0.102
	assert.InDelta(t, wantProfit, rec.ActualProfit, 1e-9)

	// Settlement released the reservation and finalized the registry entry.
	assert.Zero(t, governor.Snapshot().OpenPositions)
	got, err := registry.Get("manual-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OppExecuted, got.Status)

	hist := eng.History(0)
	require.Len(t, hist, 1)
	assert.Equal(t, rec.ID, hist[0].ID)

	snap := eng.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.ExecutionsStarted)
	assert.Equal(t, int64(1), snap.ExecutionsSucceeded)

	require.NoError(t, stop())
}

func TestEngineManualExecuteUnknownID(t *testing.T) {
	eng, _, _ := newTestEngine(t, defaultEngineConfig())
	stop := startEngine(t, eng)

	_, err := eng.ManualExecute(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, stop())
}

func TestEngineManualExecuteWhilePaused(t *testing.T) {
	eng, registry, _ := newTestEngine(t, defaultEngineConfig())
	stop := startEngine(t, eng)

	require.NoError(t, eng.Pause(context.Background()))
	require.NoError(t, registry.Insert(testOpp("paused-1")))

	rec, err := eng.ManualExecute(context.Background(), "paused-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecCompleted, rec.Status)

	require.NoError(t, stop())
}

func TestEngineAutoExecuteDispatches(t *testing.T) {
	cfg := defaultEngineConfig()
	cfg.AutoExecute = true
	eng, registry, _ := newTestEngine(t, cfg)
	stop := startEngine(t, eng)

	require.NoError(t, registry.Insert(testOpp("auto-1")))

	require.Eventually(t, func() bool {
		got, err := registry.Get("auto-1")
		return err == nil && got.Status == domain.OppExecuted
	}, 3*time.Second, 10*time.Millisecond)

	assert.Len(t, eng.History(0), 1)
	require.NoError(t, stop())
}

func TestEnginePausedDispatchesNothing(t *testing.T) {
	cfg := defaultEngineConfig()
	cfg.AutoExecute = true
	eng, registry, _ := newTestEngine(t, cfg)
	stop := startEngine(t, eng)

	require.NoError(t, eng.Pause(context.Background()))
	require.NoError(t, registry.Insert(testOpp("held-1")))

	time.Sleep(150 * time.Millisecond)
	got, err := registry.Get("held-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OppActive, got.Status)

	require.NoError(t, stop())
}

func TestEngineStatus(t *testing.T) {
	eng, registry, _ := newTestEngine(t, defaultEngineConfig())
	stop := startEngine(t, eng)

	require.NoError(t, registry.Insert(testOpp("s-1")))

	st := eng.Status()
	assert.Equal(t, domain.EngineRunning, st.State)
	assert.Equal(t, 1, st.ActiveOpportunities)
	assert.Zero(t, st.RunningExecutions)
	assert.Greater(t, st.Uptime, time.Duration(0))

	require.NoError(t, stop())
}

// fill produces the result a frictionless venue would return for a leg.
func fill(leg domain.ExecutionLeg) domain.LegResult {
	cash := leg.Price * leg.Volume
	if leg.Action == domain.LegBuy {
		cash = -cash
	}
	return domain.LegResult{
		Leg:          leg,
		FilledPrice:  leg.Price,
		FilledVolume: leg.Volume,
		CashFlow:     cash,
		ExecutedAt:   time.Now(),
	}
}

// scriptedBackend fills legs until the call counter reaches failFrom, then
// rejects every call with err.
type scriptedBackend struct {
	mu       sync.Mutex
	calls    int
	failFrom int // 1-based call number of the first rejection
	err      error
}

func (b *scriptedBackend) ExecuteLeg(ctx context.Context, leg domain.ExecutionLeg) (domain.LegResult, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()
	if n >= b.failFrom {
		return domain.LegResult{}, b.err
	}
	return fill(leg), nil
}

// gaugeBackend fills every leg after a short delay and records the highest
// number of concurrent calls it has seen.
type gaugeBackend struct {
	delay time.Duration

	mu  sync.Mutex
	cur int
	max int
}

func (b *gaugeBackend) ExecuteLeg(ctx context.Context, leg domain.ExecutionLeg) (domain.LegResult, error) {
	b.mu.Lock()
	b.cur++
	if b.cur > b.max {
		b.max = b.cur
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.cur--
		b.mu.Unlock()
	}()

	select {
	case <-time.After(b.delay):
	case <-ctx.Done():
		return domain.LegResult{}, ctx.Err()
	}
	return fill(leg), nil
}

func (b *gaugeBackend) maxSeen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max
}

// blockingBackend parks every leg until its context is cancelled. started
// receives one token per leg call so tests can wait for an execution to be
// in flight.
type blockingBackend struct {
	started chan struct{}
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{started: make(chan struct{}, 16)}
}

func (b *blockingBackend) ExecuteLeg(ctx context.Context, leg domain.ExecutionLeg) (domain.LegResult, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return domain.LegResult{}, ctx.Err()
}

func TestEngineFailedLegKeepsPartialResults(t *testing.T) {
	be := &scriptedBackend{failFrom: 2, err: errors.New("insufficient balance")}
	eng, registry, _ := newTestEngineWith(t, defaultEngineConfig(), defaultRiskConfig(), be)
	stop := startEngine(t, eng)

	require.NoError(t, registry.Insert(testOpp("partial-1")))

	rec, err := eng.ManualExecute(context.Background(), "partial-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecFailed, rec.Status)

	// Both attempted legs are on the record: the filled first leg and the
	// rejected second one.
	require.Len(t, rec.Legs, 2)
	assert.True(t, rec.Legs[0].Success)
	assert.Equal(t, 0, rec.Legs[0].Index)
	assert.False(t, rec.Legs[1].Success)
	assert.Equal(t, 1, rec.Legs[1].Index)
	assert.Equal(t, "leg 2 failed: insufficient balance", rec.Legs[1].Reason)
	assert.Equal(t, rec.Legs[1].Reason, rec.FailureReason)

	// Only the filled buy leg moved money.
	assert.InDelta(t, -100.0, rec.ActualProfit, 1e-9)

	got, err := registry.Get("partial-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OppCancelled, got.Status)

	require.NoError(t, stop())
}

func TestEngineFailedLegReleasesSlot(t *testing.T) {
	cfg := defaultEngineConfig()
	cfg.MaxConcurrent = 1
	be := &scriptedBackend{failFrom: 1, err: errors.New("venue offline")}
	eng, registry, _ := newTestEngineWith(t, cfg, defaultRiskConfig(), be)
	stop := startEngine(t, eng)

	// With a single slot, a leaked slot would park the second execution
	// until its context expired.
	for _, id := range []string{"slot-1", "slot-2"} {
		require.NoError(t, registry.Insert(testOppPair(id, "PAIR-"+id)))
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		rec, err := eng.ManualExecute(ctx, id)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, domain.ExecFailed, rec.Status)
	}

	assert.Zero(t, eng.Status().RunningExecutions)
	require.NoError(t, stop())
}

func TestEngineDeniedOpportunityStaysActive(t *testing.T) {
	rcfg := defaultRiskConfig()
	rcfg.TotalCapital = 50 // below the 100 the opportunity needs
	eng, registry, governor := newTestEngineWith(t, defaultEngineConfig(), rcfg, &scriptedBackend{failFrom: 1, err: errors.New("unreachable")})
	stop := startEngine(t, eng)

	require.NoError(t, registry.Insert(testOpp("denied-1")))

	_, err := eng.ManualExecute(context.Background(), "denied-1")
	require.ErrorIs(t, err, risk.ErrInsufficientCapital)

	// The denial leaves the opportunity live for a later attempt and holds
	// no reservation.
	got, err := registry.Get("denied-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OppActive, got.Status)
	assert.Zero(t, governor.Snapshot().OpenPositions)

	require.NoError(t, stop())
}

func TestEngineDeniedOpportunityRetriedWhenCapitalFrees(t *testing.T) {
	cfg := defaultEngineConfig()
	cfg.AutoExecute = true
	cfg.DispatchInterval = 10 * time.Millisecond
	rcfg := defaultRiskConfig()
	rcfg.TotalCapital = 100 // room for exactly one execution at a time

	eng, registry, _ := newTestEngineWith(t, cfg, rcfg, &gaugeBackend{delay: 50 * time.Millisecond})
	stop := startEngine(t, eng)

	require.NoError(t, registry.Insert(testOppPair("cap-1", "AAATWD")))
	require.NoError(t, registry.Insert(testOppPair("cap-2", "BBBTWD")))

	// The second opportunity is denied while the first holds the capital,
	// then admitted once the first settles.
	require.Eventually(t, func() bool {
		a, errA := registry.Get("cap-1")
		b, errB := registry.Get("cap-2")
		return errA == nil && errB == nil &&
			a.Status == domain.OppExecuted && b.Status == domain.OppExecuted
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, stop())
}

func TestEngineConcurrencyBound(t *testing.T) {
	cfg := defaultEngineConfig()
	cfg.AutoExecute = true
	cfg.MaxConcurrent = 2
	cfg.DispatchInterval = 10 * time.Millisecond
	be := &gaugeBackend{delay: 30 * time.Millisecond}
	eng, registry, _ := newTestEngineWith(t, cfg, defaultRiskConfig(), be)
	stop := startEngine(t, eng)

	ids := []string{"cb-1", "cb-2", "cb-3", "cb-4", "cb-5"}
	for i, id := range ids {
		require.NoError(t, registry.Insert(testOppPair(id, "PAIR"+string(rune('A'+i)))))
	}

	require.Eventually(t, func() bool {
		return len(eng.History(0)) == len(ids)
	}, 5*time.Second, 10*time.Millisecond)

	assert.Greater(t, be.maxSeen(), 0)
	assert.LessOrEqual(t, be.maxSeen(), cfg.MaxConcurrent)
	require.NoError(t, stop())
}

func TestEngineExecutionTimeout(t *testing.T) {
	cfg := defaultEngineConfig()
	cfg.MaxConcurrent = 1
	cfg.ExecutionTimeout = 50 * time.Millisecond
	eng, registry, _ := newTestEngineWith(t, cfg, defaultRiskConfig(), newBlockingBackend())
	stop := startEngine(t, eng)

	require.NoError(t, registry.Insert(testOpp("to-1")))
	rec, err := eng.ManualExecute(context.Background(), "to-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecFailed, rec.Status)
	assert.Equal(t, "timeout", rec.FailureReason)
	require.Len(t, rec.Legs, 1)
	assert.False(t, rec.Legs[0].Success)
	assert.Equal(t, "timeout", rec.Legs[0].Reason)

	// The timed-out execution gave its slot back; a second run on the
	// single-slot pool must not block.
	require.NoError(t, registry.Insert(testOppPair("to-2", "ETHTWD")))
	rec, err = eng.ManualExecute(context.Background(), "to-2")
	require.NoError(t, err)
	assert.Equal(t, "timeout", rec.FailureReason)

	require.NoError(t, stop())
}

func TestEngineShutdownTerminatesInFlight(t *testing.T) {
	cfg := defaultEngineConfig()
	cfg.AutoExecute = true
	cfg.DispatchInterval = 10 * time.Millisecond
	cfg.ShutdownGrace = 50 * time.Millisecond
	be := newBlockingBackend()
	eng, registry, _ := newTestEngineWith(t, cfg, defaultRiskConfig(), be)
	stop := startEngine(t, eng)

	require.NoError(t, registry.Insert(testOpp("sd-1")))
	select {
	case <-be.started:
	case <-time.After(2 * time.Second):
		t.Fatal("execution never started")
	}

	require.NoError(t, stop())

	hist := eng.History(0)
	require.Len(t, hist, 1)
	assert.Equal(t, domain.ExecFailed, hist[0].Status)
	assert.Equal(t, "terminated on shutdown", hist[0].FailureReason)

	got, err := registry.Get("sd-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OppCancelled, got.Status)
}
