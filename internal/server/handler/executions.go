package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/winyoulife/arbengine/internal/domain"
)

// ExecutionHandler serves execution history.
type ExecutionHandler struct {
	engine Engine
	store  domain.ExecutionStore // optional
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler. store may be nil; the
// by-ID endpoint then falls back to the in-memory ring only.
func NewExecutionHandler(engine Engine, store domain.ExecutionStore, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		engine: engine,
		store:  store,
		logger: logHandler(logger, "executions"),
	}
}

// List returns recent executions, newest first. Served from the in-memory
// ring so it works in every mode.
// GET /api/executions?limit=50
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	recs := h.engine.History(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(recs),
		"executions": recs,
	})
}

// Get returns one execution record with its legs.
// GET /api/executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing execution id")
		return
	}

	if h.store != nil {
		rec, err := h.store.GetByID(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, rec)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.ErrorContext(r.Context(), "get execution failed",
				slog.String("id", id), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "get execution failed")
			return
		}
	}

	for _, rec := range h.engine.History(0) {
		if rec.ID == id {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeError(w, http.StatusNotFound, "execution not found")
}
