package arbitrage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/winyoulife/arbengine/internal/domain"
)

// Registry holds detected opportunities and owns their status transitions.
// Insertion deduplicates against live entries; a sweep expires entries past
// their validity window and trims terminal history.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]domain.ArbitrageOpportunity
	order      []string // insertion order, oldest first
	maxEntries int
}

// NewRegistry returns an empty registry. maxEntries bounds total retained
// entries; when exceeded, the oldest terminal entries are evicted down to
// half the bound.
func NewRegistry(maxEntries int) *Registry {
	if maxEntries < 2 {
		maxEntries = 2
	}
	return &Registry{
		entries:    make(map[string]domain.ArbitrageOpportunity),
		maxEntries: maxEntries,
	}
}

// dedupKey identifies an opportunity by its strategy kind plus its pair and
// venue sets, order-independent.
func dedupKey(opp domain.ArbitrageOpportunity) string {
	pairs := append([]string(nil), opp.Pairs...)
	venues := append([]string(nil), opp.Venues...)
	sort.Strings(pairs)
	sort.Strings(venues)
	return string(opp.Kind) + "|" + strings.Join(pairs, ",") + "|" + strings.Join(venues, ",")
}

// live reports whether a status still occupies its dedup slot.
func live(status domain.OpportunityStatus) bool {
	return status == domain.OppActive || status == domain.OppExecuting
}

// Insert adds a new opportunity. Returns domain.ErrDuplicate when a live
// entry with the same kind, pair set, and venue set already exists.
func (r *Registry) Insert(opp domain.ArbitrageOpportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dedupKey(opp)
	for _, id := range r.order {
		e := r.entries[id]
		if live(e.Status) && dedupKey(e) == key {
			return fmt.Errorf("registry: %s: %w", key, domain.ErrDuplicate)
		}
	}

	r.entries[opp.ID] = opp
	r.order = append(r.order, opp.ID)
	r.trimLocked()
	return nil
}

// Get returns the opportunity by ID.
func (r *Registry) Get(id string) (domain.ArbitrageOpportunity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	opp, ok := r.entries[id]
	if !ok {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("registry: %s: %w", id, domain.ErrNotFound)
	}
	return opp, nil
}

// ListActive returns non-expired active opportunities ordered by the given
// sort key. Risk sorts ascending, everything else descending; confidence
// breaks profit ties.
func (r *Registry) ListActive(key domain.SortKey, now time.Time) []domain.ArbitrageOpportunity {
	r.mu.RLock()
	out := make([]domain.ArbitrageOpportunity, 0)
	for _, id := range r.order {
		e := r.entries[id]
		if e.Status == domain.OppActive && !e.Expired(now) {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch key {
		case domain.SortByRiskScore:
			return a.RiskScore < b.RiskScore
		case domain.SortByExpectedProfit:
			return a.ExpectedProfit > b.ExpectedProfit
		case domain.SortByConfidence:
			return a.Confidence > b.Confidence
		default: // SortByProfitPct
			if a.ProfitPct != b.ProfitPct {
				return a.ProfitPct > b.ProfitPct
			}
			return a.Confidence > b.Confidence
		}
	})
	return out
}

// MarkExecuting transitions an opportunity from active to executing. Only
// one caller can win the transition; losers get ErrInvalidState. Expired
// entries are refused with ErrExpired.
func (r *Registry) MarkExecuting(id string, now time.Time) (domain.ArbitrageOpportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	opp, ok := r.entries[id]
	if !ok {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("registry: %s: %w", id, domain.ErrNotFound)
	}
	if opp.Status != domain.OppActive {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("registry: %s is %s: %w", id, opp.Status, domain.ErrInvalidState)
	}
	if opp.Expired(now) {
		opp.Status = domain.OppExpired
		r.entries[id] = opp
		return domain.ArbitrageOpportunity{}, fmt.Errorf("registry: %s: %w", id, domain.ErrExpired)
	}
	opp.Status = domain.OppExecuting
	r.entries[id] = opp
	return opp, nil
}

// SetStatus records a terminal (or reverted) status for an opportunity.
func (r *Registry) SetStatus(id string, status domain.OpportunityStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	opp, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("registry: %s: %w", id, domain.ErrNotFound)
	}
	opp.Status = status
	r.entries[id] = opp
	return nil
}

// Sweep marks every expired active entry and returns how many were expired.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for id, e := range r.entries {
		if e.Status == domain.OppActive && e.Expired(now) {
			e.Status = domain.OppExpired
			r.entries[id] = e
			n++
		}
	}
	r.trimLocked()
	return n
}

// CountActive returns the number of live, non-expired entries.
func (r *Registry) CountActive(now time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int
	for _, e := range r.entries {
		if e.Status == domain.OppActive && !e.Expired(now) {
			n++
		}
	}
	return n
}

// ListRecent returns up to limit entries of any status, newest first.
func (r *Registry) ListRecent(limit int) []domain.ArbitrageOpportunity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ArbitrageOpportunity, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[r.order[i]])
	}
	return out
}

// trimLocked evicts the oldest terminal entries once the registry exceeds
// its bound, keeping at most half the bound. Live entries are never evicted.
func (r *Registry) trimLocked() {
	if len(r.order) <= r.maxEntries {
		return
	}
	target := r.maxEntries / 2
	keep := make([]string, 0, len(r.order))
	excess := len(r.order) - target
	for _, id := range r.order {
		e := r.entries[id]
		if excess > 0 && !live(e.Status) {
			delete(r.entries, id)
			excess--
			continue
		}
		keep = append(keep, id)
	}
	r.order = keep
}
