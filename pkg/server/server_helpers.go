package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/orneryd/advisorgraph/pkg/graph"
	"github.com/orneryd/advisorgraph/pkg/service"
)

// =============================================================================
// Helper Functions
// =============================================================================

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// readJSON decodes a bounded request body into v and rejects unknown fields.
// An empty body leaves v untouched. Decoding problems are invalid filters.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", graph.ErrInvalidFilter, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", graph.ErrInvalidFilter, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after request object", graph.ErrInvalidFilter)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response", zap.Error(err))
	}
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error     bool   `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.errorCount.Add(1)
	s.writeJSON(w, status, ErrorResponse{
		Error:     true,
		Message:   message,
		Code:      status,
		RequestID: service.RequestIDFrom(r.Context()),
	})
}

// writeServiceError maps a service error onto a status code. Caller errors
// keep their message; engine errors are reduced to their class.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, graph.ErrInvalidFilter):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, graph.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, graph.ErrEngineUnavailable):
		s.writeError(w, r, http.StatusServiceUnavailable, graph.ErrEngineUnavailable.Error())
	default:
		s.writeError(w, r, http.StatusInternalServerError, graph.ErrEngineError.Error())
	}
}
