package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/facegate/internal/web/handlers"
	"github.com/kozaktomas/facegate/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	var pinger handlers.Pinger
	if s.deps.Store != nil {
		pinger = s.deps.Store
	}
	healthHandler := handlers.NewHealthHandler(pinger)
	statusHandler := handlers.NewStatusHandler(s.deps.DeviceID, s.deps.Session, s.deps.Link)
	trainHandler := handlers.NewTrainHandler(s.deps.Session)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)
		r.Get("/status", statusHandler.Get)

		if s.deps.Store != nil {
			r.Get("/identities", handlers.NewIdentitiesHandler(s.deps.Store).List)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.config.APIToken))
			r.Post("/train", trainHandler.Train)
		})
	})

	if s.deps.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}
}
