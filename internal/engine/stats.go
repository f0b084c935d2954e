package engine

import (
	"sync"
	"time"

	"github.com/winyoulife/arbengine/internal/domain"
)

// durationWindow bounds the rolling execution-time sample.
const durationWindow = 256

// Stats tracks engine counters. Safe for concurrent use; Snapshot returns a
// consistent copy.
type Stats struct {
	mu                    sync.Mutex
	opportunitiesDetected int64
	detectedByKind        map[domain.StrategyKind]int64
	executionsStarted     int64
	executionsSucceeded   int64
	executionsFailed      int64
	totalProfit           float64
	totalFees             float64
	durations             []time.Duration
	startedAt             time.Time
}

// NewStats returns zeroed stats anchored at now.
func NewStats() *Stats {
	return &Stats{
		detectedByKind: make(map[domain.StrategyKind]int64),
		startedAt:      time.Now(),
	}
}

// OpportunityDetected counts one detection for the given strategy.
func (s *Stats) OpportunityDetected(kind domain.StrategyKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opportunitiesDetected++
	s.detectedByKind[kind]++
}

// ExecutionStarted counts one execution attempt.
func (s *Stats) ExecutionStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executionsStarted++
}

// ExecutionFinished records the outcome of one execution attempt. An
// execution is a success only when it completed with positive profit.
func (s *Stats) ExecutionFinished(success bool, profit, fees float64, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.executionsSucceeded++
	} else {
		s.executionsFailed++
	}
	s.totalProfit += profit
	s.totalFees += fees
	s.durations = append(s.durations, took)
	if len(s.durations) > durationWindow {
		s.durations = s.durations[len(s.durations)-durationWindow:]
	}
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() domain.StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKind := make(map[domain.StrategyKind]int64, len(s.detectedByKind))
	for k, v := range s.detectedByKind {
		byKind[k] = v
	}

	var avgTime time.Duration
	if len(s.durations) > 0 {
		var sum time.Duration
		for _, d := range s.durations {
			sum += d
		}
		avgTime = sum / time.Duration(len(s.durations))
	}

	finished := s.executionsSucceeded + s.executionsFailed
	var successRate float64
	if finished > 0 {
		successRate = float64(s.executionsSucceeded) / float64(finished)
	}

	return domain.StatsSnapshot{
		OpportunitiesDetected: s.opportunitiesDetected,
		DetectedByKind:        byKind,
		ExecutionsStarted:     s.executionsStarted,
		ExecutionsSucceeded:   s.executionsSucceeded,
		ExecutionsFailed:      s.executionsFailed,
		TotalProfit:           s.totalProfit,
		TotalFees:             s.totalFees,
		AvgExecutionTime:      avgTime,
		SuccessRate:           successRate,
		StartedAt:             s.startedAt,
	}
}
