package routes

import (
	"encoding/json"
	"net/http"

	"github.com/claimlens/backend/internal/api/handlers"
	"github.com/claimlens/backend/internal/api/middleware"
	"github.com/claimlens/backend/internal/infrastructure/observability"
	"github.com/claimlens/backend/internal/resilience"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	analysisHandler *handlers.AnalysisHandler

	registry *resilience.Registry
	metrics  *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	analysisHandler *handlers.AnalysisHandler,
	registry *resilience.Registry,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		analysisHandler: analysisHandler,
		registry:        registry,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint, includes per-backend circuit state
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		payload := map[string]interface{}{"status": "ok"}
		if r.registry != nil {
			backends := map[string]string{}
			for _, name := range r.registry.Names() {
				backends[name] = r.registry.Get(name).CircuitState()
			}
			payload["backends"] = backends
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(payload)
	})

	// Analysis endpoints
	r.mux.HandleFunc("POST /api/analyze", r.analysisHandler.AnalyzeVideo)
	r.mux.HandleFunc("GET /api/analyses", r.analysisHandler.ListAnalyses)
	r.mux.HandleFunc("GET /api/analyses/{video_id}", r.analysisHandler.GetAnalysis)
	r.mux.HandleFunc("POST /api/analyses/{video_id}/{tier}/rating", r.analysisHandler.SubmitRating)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// CORS wraps everything so preflight requests never hit a handler
	handler = middleware.CORSMiddleware(handler)

	return handler
}
