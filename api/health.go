package api

import (
	"context"
	"net/http"
	"time"

	"github.com/studyhall/ragchat/internal/log"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 5 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports dependency health. Always answers 200, load
// balancers read the body.
type HealthHandler struct {
	database    Pinger
	vectorStore Pinger
	generation  Pinger
	logger      log.Logger
}

// NewHealthHandler creates a new health handler over the three dependencies.
func NewHealthHandler(database, vectorStore, generation Pinger, logger log.Logger) *HealthHandler {
	return &HealthHandler{
		database:    database,
		vectorStore: vectorStore,
		generation:  generation,
		logger:      logger,
	}
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status   string          `json:"status"`
	Services map[string]bool `json:"services"`
}

func (h *HealthHandler) handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	services := map[string]bool{
		"database":     h.check(ctx, "database", h.database),
		"vector_store": h.check(ctx, "vector_store", h.vectorStore),
		"generation":   h.check(ctx, "generation", h.generation),
	}

	status := "healthy"
	for _, ok := range services {
		if !ok {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: status, Services: services})
}

func (h *HealthHandler) check(ctx context.Context, name string, p Pinger) bool {
	if p == nil {
		return false
	}
	if err := p.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed", "service", name, "error", err)
		return false
	}
	return true
}
