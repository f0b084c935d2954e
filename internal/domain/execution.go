package domain

import (
	"context"
	"time"
)

// ExecutionStatus is the terminal state of an execution attempt.
type ExecutionStatus string

const (
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
)

// LegResult is the outcome of one execution leg attempt. Failed legs carry
// a zero fill and the reason; Index is the leg's position in the path.
type LegResult struct {
	Leg          ExecutionLeg
	Index        int
	Success      bool
	FilledPrice  float64
	FilledVolume float64
	Fee          float64
	// CashFlow is the signed net cash movement of the leg: negative for
	// buys (cost plus fee), positive for sells (proceeds minus fee).
	CashFlow   float64
	Reason     string
	ExecutedAt time.Time
}

// ExecutionRecord is the durable account of one execution attempt. Legs
// holds one result per attempted leg, including the failed one that aborted
// the path; legs never attempted are absent.
type ExecutionRecord struct {
	ID             string
	OpportunityID  string
	Kind           StrategyKind
	Status         ExecutionStatus
	Legs           []LegResult
	ExpectedProfit float64
	ActualProfit   float64
	TotalFees      float64
	FailureReason  string
	StartedAt      time.Time
	CompletedAt    time.Time
}

// Duration returns the wall time the execution took.
func (r ExecutionRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Success reports whether the execution completed with positive profit.
func (r ExecutionRecord) Success() bool {
	return r.Status == ExecCompleted && r.ActualProfit > 0
}

// ExecutionBackend places individual legs at a venue. Implementations must
// honor ctx cancellation and deadlines; a leg that cannot be filled returns
// an error and a zero-value result.
type ExecutionBackend interface {
	ExecuteLeg(ctx context.Context, leg ExecutionLeg) (LegResult, error)
}
