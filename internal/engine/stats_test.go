package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/winyoulife/arbengine/internal/domain"
)

func TestStatsCounters(t *testing.T) {
	s := NewStats()
	s.OpportunityDetected(domain.StrategyCrossVenue)
	s.OpportunityDetected(domain.StrategyCrossVenue)
	s.OpportunityDetected(domain.StrategyTriangular)

	s.ExecutionStarted()
	s.ExecutionFinished(true, 150, 3, 20*time.Millisecond)
	s.ExecutionStarted()
	s.ExecutionFinished(false, -40, 2, 40*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap.OpportunitiesDetected)
	assert.Equal(t, int64(2), snap.DetectedByKind[domain.StrategyCrossVenue])
	assert.Equal(t, int64(1), snap.DetectedByKind[domain.StrategyTriangular])
	assert.Equal(t, int64(2), snap.ExecutionsStarted)
	assert.Equal(t, int64(1), snap.ExecutionsSucceeded)
	assert.Equal(t, int64(1), snap.ExecutionsFailed)
	assert.Equal(t, 110.0, snap.TotalProfit)
	assert.Equal(t, 5.0, snap.TotalFees)
	assert.Equal(t, 0.5, snap.SuccessRate)
	assert.Equal(t, 30*time.Millisecond, snap.AvgExecutionTime)
}

func TestStatsSnapshotIsACopy(t *testing.T) {
	s := NewStats()
	s.OpportunityDetected(domain.StrategyCrossVenue)

	snap := s.Snapshot()
	snap.DetectedByKind[domain.StrategyCrossVenue] = 99

	assert.Equal(t, int64(1), s.Snapshot().DetectedByKind[domain.StrategyCrossVenue])
}
