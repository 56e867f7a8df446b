package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ryanbastic/go-docsync/internal/metrics"
	"github.com/ryanbastic/go-docsync/internal/session"
	"github.com/ryanbastic/go-docsync/internal/storage"
)

// NewServer creates an HTTP server with all routes configured. backends
// are pinged by the readiness probe.
func NewServer(logger *slog.Logger, catalog storage.Catalog, sessions *session.Manager, backends map[string]Pinger) http.Handler {
	mux := chi.NewRouter()

	mux.Use(RequestID)
	mux.Use(metrics.Metrics)
	mux.Use(Logging(logger))
	mux.Use(Recovery(logger))

	health := NewHealthHandler(backends, logger)
	mux.Get("/v1/livez", health.Livez)
	mux.Get("/v1/readyz", health.Readyz)
	mux.Handle("/metrics", promhttp.Handler())

	api := humachi.New(mux, huma.DefaultConfig("docsync", "1.0.0"))

	registerCatalogRoutes(api, NewCatalogHandler(catalog, logger))
	registerSessionRoutes(api, NewSessionHandler(sessions, logger))
	registerGridRoutes(api, NewGridHandler(sessions, logger))
	registerMutationRoutes(api, NewMutationHandler(sessions, logger))

	return mux
}
