package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/storagehub/pkg/provision/store"
)

// HealthCheckTimeout is the maximum time allowed for health check
// operations, so a slow database cannot block probes indefinitely.
const HealthCheckTimeout = 5 * time.Second

// healthResponse is the response body for health endpoints.
type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the entity registry reachable?
type HealthHandler struct {
	store     store.Store
	backend   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(s store.Store, backend string) *HealthHandler {
	return &HealthHandler{
		store:     s,
		backend:   backend,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running; designed for
// Kubernetes liveness probes.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSONOK(w, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"service":    "storagehub",
			"backend":    h.backend,
			"started_at": h.startTime.UTC().Format(time.RFC3339),
			"uptime":     uptime.Round(time.Second).String(),
		},
	})
}

// Readiness handles GET /health/ready - readiness probe.
// Returns 200 OK if the entity registry database is reachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Error:     "entity registry unreachable: " + err.Error(),
		})
		return
	}

	WriteJSONOK(w, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"backend": h.backend},
	})
}
