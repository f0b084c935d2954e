// Package engine contains the execution scheduler: the state machine that
// drives detection, admission, and bounded-concurrency execution of
// arbitrage opportunities.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/winyoulife/arbengine/internal/arbitrage"
	"github.com/winyoulife/arbengine/internal/domain"
	"github.com/winyoulife/arbengine/internal/risk"
)

// eventChannel is the signal-bus channel engine events are published on.
const eventChannel = "arbengine.events"

// Notifier pushes engine events to external channels. The notify package
// provides the production implementation.
type Notifier interface {
	Notify(ctx context.Context, ev domain.Event)
}

// Config holds scheduler parameters.
type Config struct {
	AutoExecute      bool
	MaxConcurrent    int
	ExecutionTimeout time.Duration
	LegRetries       int
	RetryDelay       time.Duration
	ShutdownGrace    time.Duration
	HistoryLimit     int
	DispatchInterval time.Duration
	SweepInterval    time.Duration
}

// Deps are the engine's collaborators. Store, OppStore, Bus, and Notifier
// are optional; the engine runs fully in-memory without them.
type Deps struct {
	Scanner  *arbitrage.Scanner
	Registry *arbitrage.Registry
	Governor *risk.Governor
	Backend  domain.ExecutionBackend
	Store    domain.ExecutionStore
	OppStore domain.OpportunityStore
	Bus      domain.SignalBus
	Notifier Notifier
	Audit    domain.AuditStore
}

// Engine owns the scheduler state machine. One Run call corresponds to one
// stopped-to-stopped lifecycle; executions run on a bounded slot pool whose
// size never exceeds MaxConcurrent.
type Engine struct {
	cfg    Config
	deps   Deps
	stats  *Stats
	hist   *historyRing
	logger *slog.Logger

	slots chan struct{}

	mu         sync.Mutex
	state      domain.EngineState
	startedAt  time.Time
	runCancel  context.CancelFunc
	execCancel context.CancelFunc
	inflight   map[string]domain.ArbitrageOpportunity
	execWG     sync.WaitGroup
}

// New creates an engine in the stopped state.
func New(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = 500 * time.Millisecond
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	e := &Engine{
		cfg:      cfg,
		deps:     deps,
		stats:    NewStats(),
		hist:     newHistoryRing(cfg.HistoryLimit),
		logger:   logger.With(slog.String("component", "engine")),
		slots:    make(chan struct{}, cfg.MaxConcurrent),
		state:    domain.EngineStopped,
		inflight: make(map[string]domain.ArbitrageOpportunity),
	}
	deps.Governor.OnEmergencyStop(func(reason string) {
		e.logger.Error("stopping engine", slog.String("reason", reason))
		e.publishEvent(context.Background(), domain.Event{
			Type:      domain.EventEmergencyStop,
			Timestamp: time.Now(),
			Detail:    map[string]any{"reason": reason},
		})
		e.Stop()
	})
	return e
}

// SetScanner wires the detection loop. The scanner's detected callback
// points back at the engine, so it is attached after construction and must
// be set before Run.
func (e *Engine) SetScanner(s *arbitrage.Scanner) { e.deps.Scanner = s }

// Stats exposes the engine's counters.
func (e *Engine) Stats() *Stats { return e.stats }

// State returns the current lifecycle state.
func (e *Engine) State() domain.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run starts the engine loops and blocks until ctx is cancelled or Stop is
// called, then drains in-flight executions within the shutdown grace.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state != domain.EngineStopped && e.state != domain.EngineError {
		e.mu.Unlock()
		return fmt.Errorf("engine: run from state %s: %w", e.state, domain.ErrInvalidState)
	}
	e.state = domain.EngineStarting
	e.startedAt = time.Now()

	runCtx, runCancel := context.WithCancel(ctx)
	// Executions deliberately do not inherit runCtx: shutdown gives them a
	// grace period before execCancel forces them down.
	execCtx, execCancel := context.WithCancel(context.Background())
	e.runCancel = runCancel
	e.execCancel = execCancel
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "engine starting",
		slog.Int("max_concurrent", e.cfg.MaxConcurrent),
		slog.Bool("auto_execute", e.cfg.AutoExecute),
	)

	e.setState(ctx, domain.EngineRunning)

	g, loopCtx := errgroup.WithContext(runCtx)
	g.Go(func() error { return e.deps.Scanner.Run(loopCtx) })
	g.Go(func() error { return e.dispatchLoop(loopCtx, execCtx) })
	g.Go(func() error { return e.sweepLoop(loopCtx) })

	err := g.Wait()
	e.shutdown(execCancel)

	if err != nil && !errors.Is(err, context.Canceled) {
		e.setState(context.Background(), domain.EngineError)
		return fmt.Errorf("engine: %w", err)
	}
	e.setState(context.Background(), domain.EngineStopped)
	return nil
}

// Stop requests a shutdown of a running engine. Safe to call from any
// goroutine and idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.runCancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Pause suspends admission of new executions. In-flight executions finish
// normally.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	if e.state != domain.EngineRunning {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("engine: pause from state %s: %w", state, domain.ErrInvalidState)
	}
	e.state = domain.EnginePaused
	e.mu.Unlock()
	e.announceState(ctx, domain.EnginePaused)
	return nil
}

// Resume lifts a pause.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	if e.state != domain.EnginePaused {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("engine: resume from state %s: %w", state, domain.ErrInvalidState)
	}
	e.state = domain.EngineRunning
	e.mu.Unlock()
	e.announceState(ctx, domain.EngineRunning)
	return nil
}

// ManualDetect runs one detection cycle immediately and returns the active
// opportunities, best first.
func (e *Engine) ManualDetect(ctx context.Context) ([]domain.ArbitrageOpportunity, error) {
	if _, err := e.deps.Scanner.ScanOnce(ctx); err != nil {
		return nil, fmt.Errorf("engine: manual detect: %w", err)
	}
	return e.deps.Registry.ListActive(domain.SortByProfitPct, time.Now()), nil
}

// ManualExecute executes one registered opportunity by ID, blocking until a
// slot is free and the execution finishes. It works while running or
// paused.
func (e *Engine) ManualExecute(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	if state != domain.EngineRunning && state != domain.EnginePaused {
		return domain.ExecutionRecord{}, fmt.Errorf("engine: execute from state %s: %w", state, domain.ErrInvalidState)
	}

	opp, err := e.deps.Registry.MarkExecuting(id, time.Now())
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	if err := e.deps.Governor.Admit(ctx, opp); err != nil {
		// A denial is not terminal: the opportunity stays active and may be
		// admitted on a later pass once exposure frees up, or expire.
		_ = e.deps.Registry.SetStatus(id, domain.OppActive)
		return domain.ExecutionRecord{}, fmt.Errorf("engine: admission denied: %w", err)
	}

	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		e.deps.Governor.ApplyResult(ctx, opp, 0)
		_ = e.deps.Registry.SetStatus(id, domain.OppActive)
		return domain.ExecutionRecord{}, ctx.Err()
	}

	e.mu.Lock()
	e.execWG.Add(1)
	e.inflight[opp.ID] = opp
	e.mu.Unlock()

	defer func() {
		<-e.slots
		e.mu.Lock()
		delete(e.inflight, opp.ID)
		e.mu.Unlock()
		e.execWG.Done()
	}()

	return e.execute(ctx, opp), nil
}

// Status returns the operator-facing summary.
func (e *Engine) Status() domain.EngineStatus {
	e.mu.Lock()
	state := e.state
	started := e.startedAt
	running := len(e.inflight)
	e.mu.Unlock()

	var uptime time.Duration
	if state != domain.EngineStopped && !started.IsZero() {
		uptime = time.Since(started)
	}
	return domain.EngineStatus{
		State:               state,
		ActiveOpportunities: e.deps.Registry.CountActive(time.Now()),
		RunningExecutions:   running,
		Uptime:              uptime,
		Risk:                e.deps.Governor.Snapshot(),
		Stats:               e.stats.Snapshot(),
	}
}

// History returns up to limit recent execution records, newest first.
func (e *Engine) History(limit int) []domain.ExecutionRecord {
	return e.hist.recent(limit)
}

// Opportunities returns active opportunities ordered by the given key.
func (e *Engine) Opportunities(key domain.SortKey) []domain.ArbitrageOpportunity {
	return e.deps.Registry.ListActive(key, time.Now())
}

// OnDetected is the scanner callback: counts the detection, persists it, and
// publishes the detection event. Wire this into the scanner at construction.
func (e *Engine) OnDetected(opp domain.ArbitrageOpportunity) {
	e.stats.OpportunityDetected(opp.Kind)
	ctx := context.Background()
	if e.deps.OppStore != nil {
		if err := e.deps.OppStore.Insert(ctx, opp); err != nil {
			e.logger.Warn("opportunity persist failed", slog.String("error", err.Error()))
		}
	}
	e.publishEvent(ctx, domain.Event{
		Type:      domain.EventOpportunityDetected,
		Timestamp: time.Now(),
		Detail: map[string]any{
			"opportunity_id": opp.ID,
			"kind":           string(opp.Kind),
			"profit_pct":     opp.ProfitPct,
			"confidence":     opp.Confidence,
		},
	})
}

// dispatchLoop admits and launches the best active opportunities whenever
// slots are free. Paused engines keep scanning but dispatch nothing.
func (e *Engine) dispatchLoop(ctx context.Context, execCtx context.Context) error {
	ticker := time.NewTicker(e.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !e.cfg.AutoExecute || e.State() != domain.EngineRunning {
				continue
			}
			e.dispatchBest(ctx, execCtx)
		}
	}
}

// dispatchBest walks the current best-first listing and launches every
// opportunity that wins a slot and passes admission.
func (e *Engine) dispatchBest(ctx context.Context, execCtx context.Context) {
	now := time.Now()
	for _, opp := range e.deps.Registry.ListActive(domain.SortByProfitPct, now) {
		select {
		case e.slots <- struct{}{}:
		default:
			return // pool exhausted, try next tick
		}

		claimed, err := e.deps.Registry.MarkExecuting(opp.ID, now)
		if err != nil {
			<-e.slots
			continue
		}
		if err := e.deps.Governor.Admit(ctx, claimed); err != nil {
			<-e.slots
			// Denied, not dead: release the executing claim so the next pass
			// can retry once exposure frees up.
			_ = e.deps.Registry.SetStatus(claimed.ID, domain.OppActive)
			continue
		}

		e.mu.Lock()
		e.execWG.Add(1)
		e.inflight[claimed.ID] = claimed
		e.mu.Unlock()

		go func(opp domain.ArbitrageOpportunity) {
			defer func() {
				<-e.slots
				e.mu.Lock()
				delete(e.inflight, opp.ID)
				e.mu.Unlock()
				e.execWG.Done()
			}()
			e.execute(execCtx, opp)
		}(claimed)
	}
}

// sweepLoop expires stale registry entries.
func (e *Engine) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := e.deps.Registry.Sweep(time.Now()); n > 0 {
				e.logger.DebugContext(ctx, "swept expired opportunities", slog.Int("count", n))
			}
		}
	}
}

// shutdown waits out the grace period for in-flight executions, then forces
// the stragglers down.
func (e *Engine) shutdown(execCancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		e.execWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownGrace):
		e.mu.Lock()
		n := len(e.inflight)
		e.mu.Unlock()
		e.logger.Warn("shutdown grace elapsed, terminating executions", slog.Int("in_flight", n))
		execCancel()
		<-done
	}
	execCancel()
}

// setState records and announces a lifecycle transition.
func (e *Engine) setState(ctx context.Context, state domain.EngineState) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
	e.announceState(ctx, state)
}

func (e *Engine) announceState(ctx context.Context, state domain.EngineState) {
	e.logger.InfoContext(ctx, "engine state changed", slog.String("state", string(state)))
	if e.deps.Audit != nil {
		_ = e.deps.Audit.Log(ctx, "engine.state", map[string]any{"state": string(state)})
	}
	e.publishEvent(ctx, domain.Event{
		Type:      domain.EventStateChanged,
		Timestamp: time.Now(),
		Detail:    map[string]any{"state": string(state)},
	})
}

// publishEvent fans an event out to the signal bus and the notifier. Both
// are best effort.
func (e *Engine) publishEvent(ctx context.Context, ev domain.Event) {
	if e.deps.Bus != nil {
		if payload, err := json.Marshal(ev); err == nil {
			if err := e.deps.Bus.Publish(ctx, eventChannel, payload); err != nil {
				e.logger.Debug("event publish failed", slog.String("error", err.Error()))
			}
		}
	}
	if e.deps.Notifier != nil {
		e.deps.Notifier.Notify(ctx, ev)
	}
}
