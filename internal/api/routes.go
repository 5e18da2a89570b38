package api

import (
	"net/http"

	"sortruns/internal/health"
	"sortruns/internal/observability"
	"sortruns/internal/run"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	RunService    *run.Service
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.RunService, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Run endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /api/runs", authMiddleware(http.HandlerFunc(handler.SubmitRun)))
	mux.Handle("GET /api/runs", authMiddleware(http.HandlerFunc(handler.ListRuns)))
	mux.Handle("GET /api/runs/{identifier}", authMiddleware(http.HandlerFunc(handler.GetRun)))
	mux.Handle("DELETE /api/runs/{identifier}", authMiddleware(http.HandlerFunc(handler.DeleteRun)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
