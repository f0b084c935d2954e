package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the engine status snapshot for dashboards.
type StatusHandler struct {
	engine Engine
	mode   string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(engine Engine, mode string) *StatusHandler {
	return &StatusHandler{engine: engine, mode: mode}
}

// GetStatus responds with the engine state, risk snapshot, and counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":                 h.mode,
		"state":                string(status.State),
		"active_opportunities": status.ActiveOpportunities,
		"running_executions":   status.RunningExecutions,
		"uptime":               status.Uptime.Round(time.Second).String(),
		"risk":                 status.Risk,
		"stats":                status.Stats,
	})
}
