package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/beaconhq/beacon/internal/api/alerts"
	"github.com/beaconhq/beacon/internal/api/channels"
	"github.com/beaconhq/beacon/internal/api/events"
	"github.com/beaconhq/beacon/internal/api/middleware"
	"github.com/beaconhq/beacon/internal/api/response"
	"github.com/beaconhq/beacon/internal/api/senders"
	"github.com/beaconhq/beacon/internal/outbound"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()
	store := s.deps.Storage

	// Global middleware
	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))
	r.Use(middleware.PrometheusMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.JSONError(w, response.ErrNotFound)
	})

	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	channelHandler := channels.NewHandler(store, s.logger)
	eventHandler := events.NewHandler(store, s.deps.Dispatcher, s.logger)
	alertHandler := alerts.NewHandler(store, s.deps.Registry, s.logger)
	senderHandler := senders.NewHandler(s.deps.Registry)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/channels", func(r chi.Router) {
			r.Get("/", channelHandler.List)
			r.Post("/", channelHandler.Create)

			r.Route("/{channelID}", func(r chi.Router) {
				r.Get("/", channelHandler.GetByID)
				r.Put("/", channelHandler.Update)
				r.Delete("/", channelHandler.Delete)
				r.Get("/stats", channelHandler.Stats)

				r.Get("/events", eventHandler.ListByChannel)
				r.With(
					middleware.RateLimit(s.config.IngestRate, s.config.IngestBurst),
					outbound.Middleware(s.config.Outbound, s.deps.Drainer),
				).Post("/events", eventHandler.Create)

				r.Get("/alerts", alertHandler.ListByChannel)
				r.Post("/alerts", alertHandler.Create)
			})
		})

		r.Route("/events/{id}", func(r chi.Router) {
			r.Get("/", eventHandler.GetByID)
			r.Get("/history", eventHandler.History)
		})

		r.Route("/alerts/{id}", func(r chi.Router) {
			r.Get("/", alertHandler.GetByID)
			r.Put("/", alertHandler.Update)
			r.Delete("/", alertHandler.Delete)
			r.Post("/enable", alertHandler.Enable)
			r.Post("/disable", alertHandler.Disable)
			r.Get("/history", alertHandler.History)
		})

		r.Get("/senders", senderHandler.List)
		r.Get("/senders/{type}", senderHandler.Get)
	})

	return r
}
