// Package api implements the StorageHub REST API server: routing,
// middleware and the HTTP server lifecycle.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/storagehub/internal/api/handlers"
	apiMiddleware "github.com/marmos91/storagehub/internal/api/middleware"
	"github.com/marmos91/storagehub/internal/logger"
	"github.com/marmos91/storagehub/pkg/provision"
	"github.com/marmos91/storagehub/pkg/provision/models"
	"github.com/marmos91/storagehub/pkg/provision/store"
)

// RouterDeps carries the wired components the router needs.
type RouterDeps struct {
	Orchestrator *provision.Orchestrator
	Tracker      *provision.UsageTracker
	Store        store.Store

	// Backend is the active backend name, reported by health endpoints.
	Backend string

	// APIKey is the shared secret enforced on /api/v1 routes.
	APIKey string

	// MetricsHandler serves GET /metrics when non-nil.
	MetricsHandler http.Handler
}

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// Routes:
//   - GET  /health - Liveness probe (unauthenticated)
//   - GET  /health/ready - Readiness probe (unauthenticated)
//   - GET  /metrics - Prometheus metrics (unauthenticated, if enabled)
//   - /api/v1/users/* - User storage management (X-API-Key)
//   - /api/v1/groups/* - Group storage management (X-API-Key)
//   - GET  /api/v1/storages - Aggregate listing with usage (X-API-Key)
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health routes - unauthenticated
	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Backend)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	userHandler := handlers.NewEntityHandler(models.KindUser, deps.Orchestrator, deps.Tracker)
	groupHandler := handlers.NewEntityHandler(models.KindGroup, deps.Orchestrator, deps.Tracker)
	storageHandler := handlers.NewStorageHandler(deps.Tracker)

	// API v1 routes - shared-secret authenticated
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiMiddleware.APIKeyAuth(deps.APIKey))

		mountEntityRoutes := func(r chi.Router, h *handlers.EntityHandler) {
			r.Post("/", h.Create)
			r.Get("/", h.List)
			r.Get("/{name}", h.Get)
			r.Delete("/{name}", h.Delete)
			r.Put("/{name}/quota", h.UpdateQuota)
			r.Post("/{name}/rename", h.Rename)
			r.Get("/{name}/usage", h.Usage)
			r.Post("/{name}/reset", h.Reset)
		}

		r.Route("/users", func(r chi.Router) { mountEntityRoutes(r, userHandler) })
		r.Route("/groups", func(r chi.Router) { mountEntityRoutes(r, groupHandler) })

		r.Get("/storages", storageHandler.List)
	})

	return r
}

// isHealthPath returns true if the request path is a healthcheck
// endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs requests using the internal logger.
//
// Request start is logged at DEBUG, completion at INFO. Healthcheck
// requests complete at DEBUG to keep probe noise out of the logs.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
