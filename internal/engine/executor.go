package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/winyoulife/arbengine/internal/domain"
)

// shutdownReason is recorded when an execution is forced down during engine
// shutdown.
const shutdownReason = "terminated on shutdown"

// execute runs one admitted opportunity end to end and settles its outcome:
// stats, risk accounting, registry status, history, persistence, and events.
// It always returns a record, even on panic.
func (e *Engine) execute(ctx context.Context, opp domain.ArbitrageOpportunity) domain.ExecutionRecord {
	e.stats.ExecutionStarted()

	rec := e.runLegs(ctx, opp)
	rec.CompletedAt = time.Now()

	e.settle(ctx, opp, rec)
	return rec
}

// runLegs places each leg in order within the execution timeout. A leg that
// keeps failing after the configured retries aborts the attempt; results of
// already-completed legs are preserved on the record. Panics from the
// backend are contained here so the slot and reservation are still settled.
func (e *Engine) runLegs(ctx context.Context, opp domain.ArbitrageOpportunity) (rec domain.ExecutionRecord) {
	rec = domain.ExecutionRecord{
		ID:             uuid.Must(uuid.NewRandom()).String(),
		OpportunityID:  opp.ID,
		Kind:           opp.Kind,
		Status:         domain.ExecFailed,
		ExpectedProfit: opp.ExpectedProfit,
		StartedAt:      time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			rec.Status = domain.ExecFailed
			rec.FailureReason = fmt.Sprintf("panic: %v", r)
			e.logger.Error("execution panicked",
				slog.String("opportunity_id", opp.ID),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	legCtx, cancel := context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
	defer cancel()

	for i, leg := range opp.Legs {
		res, err := e.placeLeg(legCtx, leg)
		if err != nil {
			reason := e.failureReason(legCtx, i, err)
			rec.Legs = append(rec.Legs, domain.LegResult{
				Leg:        leg,
				Index:      i,
				Reason:     reason,
				ExecutedAt: time.Now(),
			})
			rec.FailureReason = reason
			return rec
		}
		res.Index = i
		res.Success = true
		rec.Legs = append(rec.Legs, res)
		rec.ActualProfit += res.CashFlow
		rec.TotalFees += res.Fee
	}

	rec.Status = domain.ExecCompleted
	return rec
}

// placeLeg attempts one leg with retries. Context errors are never retried.
func (e *Engine) placeLeg(ctx context.Context, leg domain.ExecutionLeg) (domain.LegResult, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.LegRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.LegResult{}, ctx.Err()
			case <-time.After(e.cfg.RetryDelay):
			}
		}
		res, err := e.deps.Backend.ExecuteLeg(ctx, leg)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return domain.LegResult{}, ctx.Err()
		}
		lastErr = err
		e.logger.Warn("leg attempt failed",
			slog.String("venue", leg.Venue),
			slog.String("pair", leg.Pair),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return domain.LegResult{}, lastErr
}

// failureReason distinguishes timeouts and shutdown from venue failures.
func (e *Engine) failureReason(ctx context.Context, legIndex int, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return shutdownReason
	default:
		return fmt.Sprintf("leg %d failed: %v", legIndex+1, err)
	}
}

// settle folds a finished execution back into every tracking surface.
func (e *Engine) settle(ctx context.Context, opp domain.ArbitrageOpportunity, rec domain.ExecutionRecord) {
	e.stats.ExecutionFinished(rec.Success(), rec.ActualProfit, rec.TotalFees, rec.Duration())
	e.deps.Governor.ApplyResult(ctx, opp, rec.ActualProfit)

	status := domain.OppExecuted
	if rec.Status != domain.ExecCompleted {
		status = domain.OppCancelled
	}
	if err := e.deps.Registry.SetStatus(opp.ID, status); err != nil {
		e.logger.Debug("registry status update failed", slog.String("error", err.Error()))
	}

	e.hist.add(rec)
	if e.deps.Store != nil {
		if err := e.deps.Store.Create(context.WithoutCancel(ctx), rec); err != nil {
			e.logger.Warn("execution persist failed", slog.String("error", err.Error()))
		}
	}
	if e.deps.OppStore != nil {
		if err := e.deps.OppStore.UpdateStatus(context.WithoutCancel(ctx), opp.ID, status); err != nil {
			e.logger.Debug("opportunity status persist failed", slog.String("error", err.Error()))
		}
	}

	// A completed execution whose realized profit strays far from the
	// estimate is worth surfacing, but it is not an error.
	if rec.Status == domain.ExecCompleted && rec.ExpectedProfit > 0 {
		deviation := math.Abs(rec.ActualProfit-rec.ExpectedProfit) / rec.ExpectedProfit
		if deviation > 0.5 {
			e.logger.Warn("execution deviated from expectation",
				slog.String("execution_id", rec.ID),
				slog.Float64("expected", rec.ExpectedProfit),
				slog.Float64("actual", rec.ActualProfit),
				slog.Float64("deviation", deviation),
			)
		}
	}

	evType := domain.EventExecutionCompleted
	if rec.Status != domain.ExecCompleted {
		evType = domain.EventExecutionFailed
	}
	var filled int
	for _, lr := range rec.Legs {
		if lr.Success {
			filled++
		}
	}
	e.publishEvent(ctx, domain.Event{
		Type:      evType,
		Timestamp: time.Now(),
		Detail: map[string]any{
			"execution_id":   rec.ID,
			"opportunity_id": rec.OpportunityID,
			"kind":           string(rec.Kind),
			"profit":         rec.ActualProfit,
			"fees":           rec.TotalFees,
			"legs_filled":    filled,
			"reason":         rec.FailureReason,
		},
	})

	e.logger.InfoContext(ctx, "execution finished",
		slog.String("execution_id", rec.ID),
		slog.String("opportunity_id", rec.OpportunityID),
		slog.String("status", string(rec.Status)),
		slog.Float64("profit", rec.ActualProfit),
		slog.Duration("took", rec.Duration()),
	)
}
