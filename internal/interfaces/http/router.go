// Package http serves the attribution API: report runs, ad-hoc charts, the
// run ledger, probes and the Prometheus scrape endpoint.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Attribution/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-Attribution/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree. Nil handlers leave their routes unmounted.
type RouterConfig struct {
	ReportHandler *handlers.ReportHandler
	HealthHandler *handlers.HealthHandler

	// MetricsHandler serves the scrape endpoint at MetricsPath ("/metrics"
	// when empty).
	MetricsHandler http.Handler
	MetricsPath    string
	HTTPMetrics    middleware.HTTPRecorder

	Logger  logging.Logger
	Logging middleware.LoggingConfig
}

// NewRouter constructs the route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger.Named("http"), cfg.Logging))
	}
	if cfg.HTTPMetrics != nil {
		r.Use(middleware.Metrics(cfg.HTTPMetrics))
	}
	r.Use(chimw.Recoverer)

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsHandler)
	}

	if cfg.ReportHandler != nil {
		r.Route("/api/v1", func(api chi.Router) {
			registerReportRoutes(api, cfg.ReportHandler)
		})
	}

	return r
}

// registerReportRoutes mounts the reporting endpoints.
func registerReportRoutes(r chi.Router, h *handlers.ReportHandler) {
	r.Post("/reports", h.Run)
	r.Post("/charts", h.BuildChart)
	r.Get("/runs", h.ListRuns)
}
