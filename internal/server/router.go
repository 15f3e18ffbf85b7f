package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Post("/decode", s.handleDecode)
	r.Post("/encode", s.handleEncode)
	r.Get("/course", s.handleCourse)

	r.Route("/telemetry", func(r chi.Router) {
		r.Get("/", s.handleTelemetry)
		r.Get("/{board}", s.handleBoardTelemetry)
	})
	r.Get("/stream", s.handleStream)
	return r
}
