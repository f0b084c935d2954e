package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/winyoulife/arbengine/internal/domain"
)

// fakeOppStore scripts the history side of the opportunity endpoints.
type fakeOppStore struct {
	recent []domain.ArbitrageOpportunity
	err    error
	limit  int
}

func (s *fakeOppStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	return nil
}

func (s *fakeOppStore) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	return nil
}

func (s *fakeOppStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	s.limit = limit
	return s.recent, s.err
}

func (s *fakeOppStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	return nil, nil
}

func TestOpportunitiesListDefaultSort(t *testing.T) {
	eng := &fakeEngine{live: []domain.ArbitrageOpportunity{
		{ID: "o1", ProfitPct: 0.01},
	}}
	h := NewOpportunityHandler(eng, nil, testLogger())

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.SortByProfitPct, eng.sortKey)
	assert.Equal(t, float64(1), decodeBody(t, rr)["count"])
}

func TestOpportunitiesListSortKeys(t *testing.T) {
	for _, key := range []domain.SortKey{
		domain.SortByProfitPct,
		domain.SortByExpectedProfit,
		domain.SortByRiskScore,
		domain.SortByConfidence,
	} {
		eng := &fakeEngine{}
		h := NewOpportunityHandler(eng, nil, testLogger())

		rr := httptest.NewRecorder()
		h.List(rr, httptest.NewRequest(http.MethodGet, "/api/opportunities?sort="+string(key), nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, key, eng.sortKey)
	}
}

func TestOpportunitiesListUnknownSortKey(t *testing.T) {
	h := NewOpportunityHandler(&fakeEngine{}, nil, testLogger())

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/opportunities?sort=alphabetical", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "unknown sort key")
}

func TestOpportunitiesRecentWithoutStore(t *testing.T) {
	h := NewOpportunityHandler(&fakeEngine{}, nil, testLogger())

	rr := httptest.NewRecorder()
	h.ListRecent(rr, httptest.NewRequest(http.MethodGet, "/api/opportunities/recent", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOpportunitiesRecent(t *testing.T) {
	store := &fakeOppStore{recent: []domain.ArbitrageOpportunity{
		{ID: "o1", Status: domain.OppExecuted},
		{ID: "o2", Status: domain.OppExpired},
	}}
	h := NewOpportunityHandler(&fakeEngine{}, store, testLogger())

	rr := httptest.NewRecorder()
	h.ListRecent(rr, httptest.NewRequest(http.MethodGet, "/api/opportunities/recent?limit=25", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 25, store.limit)
	assert.Equal(t, float64(2), decodeBody(t, rr)["count"])
}

func TestOpportunitiesRecentStoreError(t *testing.T) {
	store := &fakeOppStore{err: errors.New("db down")}
	h := NewOpportunityHandler(&fakeEngine{}, store, testLogger())

	rr := httptest.NewRecorder()
	h.ListRecent(rr, httptest.NewRequest(http.MethodGet, "/api/opportunities/recent", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
