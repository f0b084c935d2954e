package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks connectivity of one backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	engine Engine
	checks map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks maps a service name
// ("postgres", "redis") to its connectivity probe; nil entries are skipped.
func NewHealthHandler(engine Engine, checks map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		engine: engine,
		checks: checks,
		logger: logHandler(logger, "health"),
	}
}

// HealthCheck reports liveness plus the engine state and the reachability of
// each backing service. Returns 503 when any probe fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	healthy := true
	for name, p := range h.checks {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			services[name] = "down"
			healthy = false
			h.logger.WarnContext(ctx, "health probe failed",
				slog.String("service", name), slog.String("error", err.Error()))
			continue
		}
		services[name] = "up"
	}

	status := http.StatusOK
	text := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		text = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status":    text,
		"state":     string(h.engine.State()),
		"services":  services,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
