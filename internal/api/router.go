// Package api assembles the HTTP surface: public read endpoints, the
// admin mutation endpoints, and the scrape/stream entry points. All of
// them are thin adapters over the ingestion core.
package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/api/handlers"
	"github.com/citylore/server/internal/api/middleware"
	"github.com/citylore/server/internal/auth"
	"github.com/citylore/server/internal/config"
	"github.com/citylore/server/internal/imagery"
	"github.com/citylore/server/internal/metrics"
	"github.com/citylore/server/internal/storage"
)

// Dependencies carries everything the router wires together. The serve
// command constructs them once at startup; tests swap in fakes.
type Dependencies struct {
	Config config.Config
	Logger zerolog.Logger
	Store  storage.Repository

	Engine     handlers.Merger
	Dispatcher handlers.ScrapeRunner
	Extractor  *imagery.Extractor
	Expander   handlers.RecurringExpander
	JWT        *auth.JWTManager

	// PingDB backs the readiness probe. Nil skips the database check.
	PingDB func(context.Context) error

	// Build metadata for /version, stamped via ldflags in cmd.
	Version   string
	GitCommit string
	BuildDate string
}

// NewRouter builds the full route table with the shared middleware
// stack applied outermost-first.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	env := cfg.Environment
	logger := deps.Logger

	proxy := handlers.NewImageProxy()

	citiesHandler := handlers.NewCitiesHandler(deps.Store.Cities(), env)
	venuesHandler := handlers.NewVenuesHandler(deps.Store.Venues(), env)
	sourcesHandler := handlers.NewSourcesHandler(deps.Store.Sources(), env)
	eventsHandler := handlers.NewEventsHandler(deps.Store, deps.Engine, proxy, env)
	scrapeHandler := handlers.NewScrapeHandler(deps.Dispatcher, deps.Store, proxy, env)
	imagesHandler := handlers.NewImagesHandler(deps.Extractor, proxy, env)
	recurringHandler := handlers.NewRecurringHandler(deps.Expander, deps.Store.Venues(), deps.Engine, proxy, env)
	authHandler := handlers.NewAuthHandler(deps.Store.Admins(), deps.JWT, cfg.Auth.JWTExpiry, env)

	adminOnly := middleware.AdminAuth(deps.JWT)
	loginTier := middleware.WithRateLimitTierHandler(middleware.TierLogin)
	adminTier := middleware.WithRateLimitTierHandler(middleware.TierAdmin)

	// Body limits nest inside: MaxBytesReader wraps are not undone by a
	// larger limit further in, so each group applies exactly one.
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.AdminRequestSize()(adminTier(adminOnly(h)))
	}
	adminUpload := func(h http.HandlerFunc) http.Handler {
		return middleware.UploadRequestSize()(adminTier(adminOnly(h)))
	}

	mux := http.NewServeMux()

	// Liveness, metrics, build info.
	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", handlers.Readyz(deps.PingDB))
	mux.Handle("GET /version", VersionHandler(deps.Version, deps.GitCommit, deps.BuildDate))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Public reads.
	mux.Handle("GET /api/cities", http.HandlerFunc(citiesHandler.List))
	mux.Handle("GET /api/venues", http.HandlerFunc(venuesHandler.List))
	mux.Handle("GET /api/events", http.HandlerFunc(eventsHandler.List))
	mux.Handle("GET /api/events/{id}", http.HandlerFunc(eventsHandler.Get))
	mux.Handle("GET /api/events/{id}/calendar", http.HandlerFunc(eventsHandler.Calendar))
	mux.Handle("GET /api/sources", http.HandlerFunc(sourcesHandler.List))
	mux.Handle("GET /api/image-proxy", http.HandlerFunc(imagesHandler.Proxy))

	// Scraping. Both entry points mutate the store, so they sit behind
	// the admin guard.
	mux.Handle("POST /api/scrape", admin(scrapeHandler.Run))
	mux.Handle("POST /api/scrape-stream", admin(scrapeHandler.RunStream))

	// Admin surface.
	mux.Handle("POST /api/admin/login", middleware.PublicRequestSize()(loginTier(http.HandlerFunc(authHandler.Login))))
	mux.Handle("POST /api/admin/add-city", admin(citiesHandler.Create))
	mux.Handle("PUT /api/admin/cities/{id}", admin(citiesHandler.Update))
	mux.Handle("DELETE /api/admin/cities/{id}", admin(citiesHandler.Delete))
	mux.Handle("POST /api/admin/add-venue", admin(venuesHandler.Create))
	mux.Handle("PUT /api/admin/venues/{id}", admin(venuesHandler.Update))
	mux.Handle("DELETE /api/admin/venues/{id}", admin(venuesHandler.Delete))
	mux.Handle("POST /api/admin/add-source", admin(sourcesHandler.Create))
	mux.Handle("PUT /api/admin/sources/{id}", admin(sourcesHandler.Update))
	mux.Handle("DELETE /api/admin/sources/{id}", admin(sourcesHandler.Delete))
	mux.Handle("POST /api/admin/add-event", admin(eventsHandler.Create))
	mux.Handle("PUT /api/admin/events/{id}", admin(eventsHandler.Update))
	mux.Handle("DELETE /api/admin/events/{id}", admin(eventsHandler.Delete))
	mux.Handle("POST /api/admin/clear-past-events", admin(eventsHandler.ClearPast))
	mux.Handle("POST /api/admin/create-event-from-data", admin(eventsHandler.CreateFromData))
	mux.Handle("POST /api/admin/upload-event-image", adminUpload(imagesHandler.Upload))
	mux.Handle("POST /api/admin/expand-recurring", admin(recurringHandler.Expand))

	// Outermost first: security headers and CORS run before anything
	// else; visit logging sees the request after correlation ids exist.
	chain := []func(http.Handler) http.Handler{
		middleware.SecurityHeaders(env == "production"),
		middleware.CORS(cfg.CORS, logger),
		middleware.CorrelationID(logger),
		middleware.RequestLogging(logger),
		middleware.Tracing,
		metrics.HTTPMiddleware,
		middleware.RateLimit(cfg.RateLimit),
		middleware.VisitLogging(deps.Store.Visits(), logger),
	}

	var handler http.Handler = mux
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}
	return handler
}
