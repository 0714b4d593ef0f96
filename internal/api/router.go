package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/courts", s.handleListCourts)

		r.Route("/automation", func(r chi.Router) {
			r.Post("/", s.handleStartAutomation)
			r.Post("/stop", s.handleStopAutomation)
			r.Get("/status", s.handleStatus)

			// Scheduled triggers arrive as GETs from cron services; POST is
			// for everything else. Both run the same idempotent tick.
			r.Get("/tick", s.handleTick)
			r.Post("/tick", s.handleTick)

			r.Get("/history", s.handleHistory)
			r.Get("/history/{sessionID}", s.handleHistoryBySession)
		})
	})

	return r
}
