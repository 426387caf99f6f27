// Package server exposes the graph service over HTTP.
//
// Endpoints:
//
//	POST /api/graph/query        filtered bulk query {filters, limit, offset}
//	GET  /api/graph/nodes/{id}   entity detail
//	GET  /api/graph/summary      whole-graph counts
//	GET  /api/filters/options    selectable filter values
//	POST /api/graph/expand       neighborhood {node_ids, depth}
//	POST /api/filters/cascading  filter values within a filter
//	POST /api/graph/paths        shortest paths {source_ids, target_ids, max_depth}
//	POST /api/graph/influence    influence network {professional_ids}
//	GET  /health                 liveness
//	GET  /metrics                Prometheus metrics
//	GET  /openapi.yaml           OpenAPI 3 document
//	GET  /docs                   Swagger UI
//
// Errors are JSON objects {error, message, code, request_id}. Invalid filters
// map to 400, unknown entities to 404, an unreachable engine to 503 and any
// other engine failure to 500. Engine failure messages never include query
// text; the request id links the response to the server log.
//
// Example:
//
//	srv := server.New(svc, server.DefaultConfig(), logger)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer srv.Stop(context.Background())
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/advisorgraph/pkg/service"
)

// Errors returned by the server lifecycle.
var (
	ErrServerClosed = fmt.Errorf("server closed")
	ErrInternal     = fmt.Errorf("internal server error")
)

// Config holds HTTP server settings.
type Config struct {
	Address      string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// MaxRequestSize caps request bodies in bytes.
	MaxRequestSize int64
	// EnableMetrics serves /metrics.
	EnableMetrics bool
	// EnableDocs serves the OpenAPI document and a Swagger UI page.
	EnableDocs bool
	// EnableCORS answers cross-origin requests from CORSOrigins ("*" allows
	// any origin).
	EnableCORS  bool
	CORSOrigins []string
}

// DefaultConfig returns listener defaults: all interfaces, port 8080.
func DefaultConfig() *Config {
	return &Config{
		Address:        "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 1 << 20,
		EnableMetrics:  true,
		EnableDocs:     true,
	}
}

// Server is the HTTP front end.
type Server struct {
	config *Config
	graph  service.Graph
	logger *zap.Logger

	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener

	closed  atomic.Bool
	started time.Time

	requestCount   atomic.Int64
	errorCount     atomic.Int64
	activeRequests atomic.Int64
}

// New builds a server around graph. Nil config uses DefaultConfig; nil logger
// discards output.
func New(graph service.Graph, config *Config, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{config: config, graph: graph, logger: logger, started: time.Now()}
	s.handler = s.buildRouter()
	return s
}

// Handler returns the fully wrapped router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the listen address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stats returns runtime counters maintained by the middleware.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Uptime:         time.Since(s.started),
		RequestCount:   s.requestCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		ActiveRequests: s.activeRequests.Load(),
	}
}

// ServerStats holds server metrics.
type ServerStats struct {
	Uptime         time.Duration `json:"uptime"`
	RequestCount   int64         `json:"request_count"`
	ErrorCount     int64         `json:"error_count"`
	ActiveRequests int64         `json:"active_requests"`
}
