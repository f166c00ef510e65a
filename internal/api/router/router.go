package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicflow/scheduling-ai/internal/http/handlers"
	httpmiddleware "github.com/clinicflow/scheduling-ai/internal/http/middleware"
	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	SessionsHandler *handlers.SessionsHandler
	BookingsHandler *handlers.BookingsHandler
	MetricsHandler  http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.SessionsHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", cfg.SessionsHandler.Start)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", cfg.SessionsHandler.Get)
			r.Post("/messages", cfg.SessionsHandler.Message)
		})
	})

	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.Delete("/{id}", cfg.BookingsHandler.Cancel)
	})

	return r
}
