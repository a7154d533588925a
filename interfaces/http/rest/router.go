// Package rest wires the HTTP surface: routing, middleware, health and
// metrics endpoints.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"knowmap-backend/application/services"
	"knowmap-backend/infrastructure/config"
	"knowmap-backend/interfaces/http/rest/handlers"
	"knowmap-backend/interfaces/http/rest/middleware"
	"knowmap-backend/pkg/common"
	"knowmap-backend/pkg/observability"
)

// Router creates and configures the HTTP router
type Router struct {
	manager  *services.SessionManager
	combined *services.CombinedViewService
	cfg      *config.Config
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	manager *services.SessionManager,
	combined *services.CombinedViewService,
	cfg *config.Config,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Router {
	return &Router{
		manager:  manager,
		combined: combined,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.metrics != nil {
		router.Use(middleware.Metrics(rt.metrics))
	}

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.metrics != nil && rt.cfg.EnableMetrics {
		router.Handle("/metrics", promhttp.HandlerFor(rt.metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	router.Route("/api/v1", func(r chi.Router) {
		sessionHandler := handlers.NewSessionHandler(rt.manager, rt.logger)

		r.Get("/memos", sessionHandler.ListMemos)
		r.Post("/sessions", sessionHandler.OpenSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", sessionHandler.GetSession)
			r.Delete("/", sessionHandler.CloseSession)
			r.Post("/memo", sessionHandler.CreateMemo)
			r.Get("/map", sessionHandler.GetMap)
			r.Post("/select", sessionHandler.SelectNode)
			r.Post("/panel/close", sessionHandler.ClosePanel)
			r.Post("/panel/back", sessionHandler.BackToDetail)
			r.Post("/suggestions", sessionHandler.FetchSuggestions)
			r.Post("/suggestions/accept", sessionHandler.AcceptSuggestion)
			r.Post("/connect", sessionHandler.Connect)
			r.Post("/nodes", sessionHandler.CreateNode)
			r.Put("/nodes/{nodeID}/position", sessionHandler.MoveNode)
			r.Post("/temporal/preview", sessionHandler.TemporalPreview)
			r.Post("/temporal/apply", sessionHandler.ApplyTemporal)
			r.Post("/layout", sessionHandler.RequestLayout)
			r.Post("/save", sessionHandler.Save)
			r.Get("/notifications", sessionHandler.Notifications)
		})

		if rt.combined != nil {
			combinedHandler := handlers.NewCombinedHandler(rt.combined, rt.logger)
			r.Get("/combined", combinedHandler.GetCombined)
		}
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
