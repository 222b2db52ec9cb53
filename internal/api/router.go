package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter mounts the local API under /api/v1.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/config", s.handleGetConfig)
		r.Get("/variables", s.handleGetVariables)
		r.Get("/diagnostics", s.handleGetDiagnostics)
		r.Post("/commands", s.handleCommand)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports liveness. With a persistent cloud link the status
// is "degraded" while the link is down; the endpoint itself still answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, link := "ok", "none"
	if s.link != nil {
		link = "up"
		if !s.link.IsConnected() {
			status, link = "degraded", "down"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"link":           link,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}
