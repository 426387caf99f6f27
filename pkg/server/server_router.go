package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Router Setup
// =============================================================================

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	s.registerHealthRoutes(mux)
	s.registerGraphRoutes(mux)
	if s.config.EnableDocs {
		s.registerDocsRoutes(mux)
	}

	return s.wrapWithMiddleware(mux)
}

func (s *Server) registerHealthRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.config.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
}

func (s *Server) registerGraphRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/graph/query", s.handleQuery)
	mux.HandleFunc("GET /api/graph/nodes/{id}", s.handleNodeDetail)
	mux.HandleFunc("GET /api/graph/summary", s.handleSummary)
	mux.HandleFunc("GET /api/filters/options", s.handleFilterOptions)
	mux.HandleFunc("POST /api/graph/expand", s.handleExpand)
	mux.HandleFunc("POST /api/filters/cascading", s.handleCascadingOptions)
	mux.HandleFunc("POST /api/graph/paths", s.handleFindPaths)
	mux.HandleFunc("POST /api/graph/influence", s.handleInfluence)
}

func (s *Server) wrapWithMiddleware(mux *http.ServeMux) http.Handler {
	// Order matters: the last wrapper runs first. Metrics sit next to the
	// mux so the matched route pattern is visible after routing.
	var handler http.Handler = s.metricsMiddleware(mux)
	handler = s.corsMiddleware(handler)
	handler = s.securityHeadersMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.requestIDMiddleware(handler)
	return handler
}
