package domain

import "time"

// EngineState is the scheduler's lifecycle state.
type EngineState string

const (
	EngineStopped  EngineState = "stopped"
	EngineStarting EngineState = "starting"
	EngineRunning  EngineState = "running"
	EnginePaused   EngineState = "paused"
	EngineError    EngineState = "error"
)

// RiskSnapshot is a point-in-time view of the risk governor's accounting.
type RiskSnapshot struct {
	TotalCapital     float64
	AllocatedCapital float64
	DailyProfit      float64
	DailyLoss        float64
	TotalProfit      float64
	TotalLoss        float64
	OpenPositions    int
	Day              time.Time
	EmergencyStopped bool
}

// Available returns the capital not currently reserved by in-flight
// executions.
func (s RiskSnapshot) Available() float64 {
	return s.TotalCapital - s.AllocatedCapital
}

// EngineStatus is the operator-facing summary served by the status API.
type EngineStatus struct {
	State               EngineState
	ActiveOpportunities int
	RunningExecutions   int
	Uptime              time.Duration
	Risk                RiskSnapshot
	Stats               StatsSnapshot
}

// StatsSnapshot is a point-in-time view of engine counters.
type StatsSnapshot struct {
	OpportunitiesDetected int64
	DetectedByKind        map[StrategyKind]int64
	ExecutionsStarted     int64
	ExecutionsSucceeded   int64
	ExecutionsFailed      int64
	TotalProfit           float64
	TotalFees             float64
	AvgExecutionTime      time.Duration
	SuccessRate           float64
	StartedAt             time.Time
}
