package handler

import (
	"log/slog"
	"net/http"

	"github.com/winyoulife/arbengine/internal/domain"
)

// OpportunityHandler serves live and historical opportunity listings.
type OpportunityHandler struct {
	engine Engine
	store  domain.OpportunityStore // optional
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. store may be nil when
// running without Postgres; the history endpoint then returns 404.
func NewOpportunityHandler(engine Engine, store domain.OpportunityStore, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		engine: engine,
		store:  store,
		logger: logHandler(logger, "opportunities"),
	}
}

// List returns the live opportunity set, sorted by the requested key
// (default profit_pct).
// GET /api/opportunities?sort=profit_pct
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	key := domain.SortKey(r.URL.Query().Get("sort"))
	if key == "" {
		key = domain.SortByProfitPct
	}
	switch key {
	case domain.SortByProfitPct, domain.SortByExpectedProfit, domain.SortByRiskScore, domain.SortByConfidence:
	default:
		writeError(w, http.StatusBadRequest, "unknown sort key: "+string(key))
		return
	}

	opps := h.engine.Opportunities(key)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":         len(opps),
		"opportunities": opps,
	})
}

// ListRecent returns recently detected opportunities from the database,
// including ones that already left the live set.
// GET /api/opportunities/recent?limit=50
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "opportunity history not configured")
		return
	}

	opts := parseListOpts(r)
	opps, err := h.store.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list recent failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "list recent opportunities failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":         len(opps),
		"opportunities": opps,
	})
}
