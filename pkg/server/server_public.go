package server

import (
	"net/http"
)

// =============================================================================
// Public Endpoints
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Liveness only; engine reachability shows up on the API endpoints.
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.Stats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "running",
		"server": map[string]any{
			"uptime_seconds":  stats.Uptime.Seconds(),
			"requests":        stats.RequestCount,
			"errors":          stats.ErrorCount,
			"active_requests": stats.ActiveRequests,
		},
	})
}
