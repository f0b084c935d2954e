// Package risk implements pre-execution admission control and running
// profit/loss accounting for the engine.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/winyoulife/arbengine/internal/domain"
)

// Admission denial reasons. All wrap into the error returned by Admit so
// callers can branch with errors.Is.
var (
	ErrEmergencyStopped    = errors.New("emergency stop engaged")
	ErrDailyLossExceeded   = errors.New("daily loss limit exceeded")
	ErrRiskTooHigh         = errors.New("risk score above limit")
	ErrConfidenceTooLow    = errors.New("confidence below limit")
	ErrInsufficientCapital = errors.New("insufficient available capital")
	ErrExposureExceeded    = errors.New("total exposure limit exceeded")
	ErrTooManyPositions    = errors.New("open position limit reached")
)

// Config holds the governor's limits. MaxExposure caps the sum of reserved
// capital across in-flight executions; zero means TotalCapital.
type Config struct {
	TotalCapital       float64
	MaxExposure        float64
	MaxDailyLoss       float64
	MaxRiskScore       float64
	MinConfidence      float64
	MaxOpenPositions   int
	EmergencyStopRatio float64
}

// Governor is the single serialization point for capital and exposure
// accounting. Admit reserves capital for an execution; ApplyResult releases
// the reservation and folds the realized result into the daily and lifetime
// tallies. Daily tallies roll over at the local midnight boundary.
type Governor struct {
	cfg    Config
	logger *slog.Logger
	audit  domain.AuditStore // optional

	mu            sync.Mutex
	allocated     float64
	openPositions int
	dailyProfit   float64
	dailyLoss     float64
	totalProfit   float64
	totalLoss     float64
	day           time.Time
	stopped       bool
	onStop        func(reason string)
}

// NewGovernor creates a governor. audit may be nil.
func NewGovernor(cfg Config, audit domain.AuditStore, logger *slog.Logger) *Governor {
	return &Governor{
		cfg:    cfg,
		audit:  audit,
		logger: logger.With(slog.String("component", "risk_governor")),
		day:    startOfDay(time.Now()),
	}
}

// OnEmergencyStop registers the callback invoked exactly once when the
// lifetime loss ratio breaches the configured threshold.
func (g *Governor) OnEmergencyStop(fn func(reason string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onStop = fn
}

// Admit decides whether an opportunity may execute. On success the
// opportunity's required capital is reserved and an open position is
// counted; the caller must hand every admitted opportunity back through
// ApplyResult. A non-nil error is a denial, never a failure.
func (g *Governor) Admit(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	now := time.Now()
	g.mu.Lock()
	g.rollDayLocked(now)

	err := g.checkLocked(opp, now)
	if err == nil {
		g.allocated += opp.RequiredCapital
		g.openPositions++
	}
	g.mu.Unlock()

	if err != nil {
		g.logger.InfoContext(ctx, "opportunity denied",
			slog.String("opportunity_id", opp.ID),
			slog.String("kind", string(opp.Kind)),
			slog.String("reason", err.Error()),
		)
		if g.audit != nil {
			_ = g.audit.Log(ctx, "risk.denied", map[string]any{
				"opportunity_id": opp.ID,
				"kind":           string(opp.Kind),
				"reason":         err.Error(),
			})
		}
	}
	return err
}

func (g *Governor) checkLocked(opp domain.ArbitrageOpportunity, now time.Time) error {
	if g.stopped {
		return ErrEmergencyStopped
	}
	if opp.Expired(now) {
		return fmt.Errorf("risk: %s: %w", opp.ID, domain.ErrExpired)
	}
	if g.dailyLoss >= g.cfg.MaxDailyLoss {
		return fmt.Errorf("%w: %.2f >= %.2f", ErrDailyLossExceeded, g.dailyLoss, g.cfg.MaxDailyLoss)
	}
	if opp.RiskScore > g.cfg.MaxRiskScore {
		return fmt.Errorf("%w: %.3f > %.3f", ErrRiskTooHigh, opp.RiskScore, g.cfg.MaxRiskScore)
	}
	if opp.Confidence < g.cfg.MinConfidence {
		return fmt.Errorf("%w: %.3f < %.3f", ErrConfidenceTooLow, opp.Confidence, g.cfg.MinConfidence)
	}
	if g.openPositions >= g.cfg.MaxOpenPositions {
		return fmt.Errorf("%w: %d open", ErrTooManyPositions, g.openPositions)
	}
	if opp.RequiredCapital > g.cfg.TotalCapital-g.allocated {
		return fmt.Errorf("%w: need %.2f, available %.2f",
			ErrInsufficientCapital, opp.RequiredCapital, g.cfg.TotalCapital-g.allocated)
	}
	exposureCap := g.cfg.MaxExposure
	if exposureCap <= 0 {
		exposureCap = g.cfg.TotalCapital
	}
	if g.allocated+opp.RequiredCapital > exposureCap {
		return fmt.Errorf("%w: %.2f + %.2f > %.2f",
			ErrExposureExceeded, g.allocated, opp.RequiredCapital, exposureCap)
	}
	return nil
}

// ApplyResult releases the reservation made by Admit and applies the
// realized profit (negative for a loss). Breaching the lifetime loss ratio
// engages the emergency stop.
func (g *Governor) ApplyResult(ctx context.Context, opp domain.ArbitrageOpportunity, profit float64) {
	g.mu.Lock()
	g.rollDayLocked(time.Now())

	g.allocated -= opp.RequiredCapital
	if g.allocated < 0 {
		g.allocated = 0
	}
	if g.openPositions > 0 {
		g.openPositions--
	}

	if profit >= 0 {
		g.dailyProfit += profit
		g.totalProfit += profit
	} else {
		g.dailyLoss += -profit
		g.totalLoss += -profit
	}

	var stopCb func(string)
	var stopReason string
	if !g.stopped {
		if turnover := g.totalProfit + g.totalLoss; turnover > 0 {
			ratio := g.totalLoss / turnover
			if ratio > g.cfg.EmergencyStopRatio {
				g.stopped = true
				stopCb = g.onStop
				stopReason = fmt.Sprintf("loss ratio %.3f exceeds %.3f", ratio, g.cfg.EmergencyStopRatio)
			}
		}
	}
	g.mu.Unlock()

	if stopReason != "" {
		g.logger.ErrorContext(ctx, "emergency stop engaged", slog.String("reason", stopReason))
		if g.audit != nil {
			_ = g.audit.Log(ctx, "risk.emergency_stop", map[string]any{"reason": stopReason})
		}
		if stopCb != nil {
			stopCb(stopReason)
		}
	}
}

// EmergencyStopped reports whether the governor has latched the emergency
// stop.
func (g *Governor) EmergencyStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// Snapshot returns the current accounting state.
func (g *Governor) Snapshot() domain.RiskSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked(time.Now())
	return domain.RiskSnapshot{
		TotalCapital:     g.cfg.TotalCapital,
		AllocatedCapital: g.allocated,
		DailyProfit:      g.dailyProfit,
		DailyLoss:        g.dailyLoss,
		TotalProfit:      g.totalProfit,
		TotalLoss:        g.totalLoss,
		OpenPositions:    g.openPositions,
		Day:              g.day,
		EmergencyStopped: g.stopped,
	}
}

// rollDayLocked resets the daily tallies when the calendar day changes.
// Reservations and lifetime tallies survive the rollover.
func (g *Governor) rollDayLocked(now time.Time) {
	day := startOfDay(now)
	if day.Equal(g.day) {
		return
	}
	g.day = day
	g.dailyProfit = 0
	g.dailyLoss = 0
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
