package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/winyoulife/arbengine/internal/domain"
)

// Engine is the slice of the engine's API the HTTP layer drives.
type Engine interface {
	State() domain.EngineState
	Status() domain.EngineStatus
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop()
	ManualDetect(ctx context.Context) ([]domain.ArbitrageOpportunity, error)
	ManualExecute(ctx context.Context, id string) (domain.ExecutionRecord, error)
	History(limit int) []domain.ExecutionRecord
	Opportunities(key domain.SortKey) []domain.ArbitrageOpportunity
}

// EngineHandler serves engine lifecycle and manual-control endpoints.
type EngineHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(engine Engine, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{
		engine: engine,
		logger: logHandler(logger, "engine"),
	}
}

// Pause suspends dispatching of new executions.
// POST /api/engine/pause
func (h *EngineHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Pause(r.Context()); err != nil {
		writeStateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.engine.State())})
}

// Resume restarts dispatching after a pause.
// POST /api/engine/resume
func (h *EngineHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Resume(r.Context()); err != nil {
		writeStateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.engine.State())})
}

// Stop initiates engine shutdown. In-flight executions get the configured
// grace period before their contexts are cancelled.
// POST /api/engine/stop
func (h *EngineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"state": string(h.engine.State())})
}

// Detect triggers one synchronous scan cycle and returns the live
// opportunity set.
// POST /api/engine/detect
func (h *EngineHandler) Detect(w http.ResponseWriter, r *http.Request) {
	opps, err := h.engine.ManualDetect(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "manual detect failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "detect failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":         len(opps),
		"opportunities": opps,
	})
}

// Execute runs one opportunity by ID, bypassing the automatic dispatcher.
// POST /api/engine/execute/{id}
func (h *EngineHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}

	rec, err := h.engine.ManualExecute(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "opportunity not found")
		case errors.Is(err, domain.ErrExpired):
			writeError(w, http.StatusGone, "opportunity expired")
		case errors.Is(err, domain.ErrInvalidState):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeStateError maps lifecycle transition errors to HTTP statuses.
func writeStateError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidState) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
