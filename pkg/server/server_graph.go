package server

import (
	"net/http"

	"github.com/orneryd/advisorgraph/pkg/graph"
	"github.com/orneryd/advisorgraph/pkg/service"
)

// =============================================================================
// Graph API Handlers
// =============================================================================

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.graph.Query(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleNodeDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := s.graph.Detail(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.graph.Summary(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.graph.FilterOptions(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req service.ExpandRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.graph.Expand(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleCascadingOptions takes a bare filter object, not a query request.
func (s *Server) handleCascadingOptions(w http.ResponseWriter, r *http.Request) {
	var f graph.Filter
	if err := s.readJSON(w, r, &f); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	opts, err := s.graph.CascadingOptions(r.Context(), &f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleFindPaths(w http.ResponseWriter, r *http.Request) {
	var req service.PathRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.graph.FindPaths(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInfluence(w http.ResponseWriter, r *http.Request) {
	var req service.InfluenceRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.graph.Influence(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
