package engine

import (
	"sync"

	"github.com/winyoulife/arbengine/internal/domain"
)

// historyRing keeps the most recent execution records in memory so the
// status API can serve history without a database round trip. When the
// bound is exceeded the oldest half is dropped.
type historyRing struct {
	mu      sync.RWMutex
	records []domain.ExecutionRecord
	limit   int
}

func newHistoryRing(limit int) *historyRing {
	if limit < 2 {
		limit = 2
	}
	return &historyRing{limit: limit}
}

func (h *historyRing) add(rec domain.ExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	if len(h.records) > h.limit {
		h.records = h.records[len(h.records)-h.limit/2:]
	}
}

// recent returns up to limit records, newest first.
func (h *historyRing) recent(limit int) []domain.ExecutionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || limit > len(h.records) {
		limit = len(h.records)
	}
	out := make([]domain.ExecutionRecord, 0, limit)
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.records[i])
	}
	return out
}
