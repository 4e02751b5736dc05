package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/queryguard/queryguard/internal/models"
)

const version = "1.0.0"

// Pinger is implemented by dependencies that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles GET /health with dependency checks.
type HealthHandler struct {
	db               Pinger
	generatorEnabled bool
}

func NewHealthHandler(db Pinger, generatorEnabled bool) *HealthHandler {
	return &HealthHandler{db: db, generatorEnabled: generatorEnabled}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"server": "ok"}
	status := "healthy"

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "unavailable: " + err.Error()
			status = "degraded"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "disabled"
	}

	if h.generatorEnabled {
		checks["generator"] = "ok"
	} else {
		checks["generator"] = "disabled"
	}

	code := http.StatusOK
	if status == "degraded" {
		code = http.StatusServiceUnavailable
	}

	models.WriteJSON(w, code, models.HealthResponse{
		Status:  status,
		Version: version,
		Checks:  checks,
	})
}
