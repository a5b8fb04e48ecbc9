// Package http assembles the chi route tree and the HTTP server.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/prometheus"
	"github.com/colinvwood/taxa-barplot/internal/interfaces/http/handlers"
	"github.com/colinvwood/taxa-barplot/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree. Nil members are not mounted.
type RouterConfig struct {
	ViewHandler   *handlers.ViewHandler
	HealthHandler *handlers.HealthHandler

	CORSOrigins []string
	Logging     middleware.LoggingConfig
	Requests    middleware.RequestRecorder

	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
	// MetricsPath defaults to /metrics.
	MetricsPath string
}

// NewRouter builds the route tree: probes and /metrics at the root, the view
// API under /api/v1.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging, cfg.Requests))
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		registerViewRoutes(api, cfg.ViewHandler)
	})
	return r
}

func registerViewRoutes(r chi.Router, h *handlers.ViewHandler) {
	if h == nil {
		return
	}
	r.Route("/view", func(vr chi.Router) {
		vr.Get("/", h.GetView)
		vr.Post("/render", h.Render)
		vr.Put("/depth", h.SetDepth)
		vr.Post("/reset", h.Reset)

		vr.Post("/expansions", h.RequestExpansion)
		vr.Delete("/expansions", h.ClearExpansion)
		vr.Post("/collapses", h.RequestCollapse)
		vr.Delete("/collapses", h.ClearCollapse)

		vr.Get("/schemes", h.Schemes)
		vr.Put("/scheme", h.SetScheme)
		vr.Put("/colors", h.SetColor)
	})
	r.Get("/taxa", h.DescribeTaxon)
}
