package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/manifold-labs/knowledgebase/internal/apierr"
	"github.com/manifold-labs/knowledgebase/internal/index"
)

// searchRequest is spec §6's SearchQuery.
type searchRequest struct {
	Query      string `json:"query"`
	TopK       int    `json:"top_k"`
	SourceType string `json:"source_type"`
	Project    string `json:"project"`
	DateFrom   string `json:"date_from"`
	DateTo     string `json:"date_to"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.Validation("invalid request body", err))
		return
	}
	if req.Query == "" {
		writeError(w, r, apierr.Validation("query is required", nil))
		return
	}
	if req.TopK == 0 {
		req.TopK = 10
	}
	if req.TopK < 1 || req.TopK > 50 {
		writeError(w, r, apierr.Validation("top_k must be between 1 and 50", nil))
		return
	}

	vectors, err := s.Embedder.EmbedBatch(r.Context(), []string{req.Query})
	if err != nil {
		writeError(w, r, apierr.Transient("embedding the query failed", err))
		return
	}

	filter := index.Filter{SourceType: req.SourceType, Project: req.Project}
	if req.DateFrom != "" {
		filter.UpdatedAfter = &req.DateFrom
	}
	if req.DateTo != "" {
		filter.UpdatedBefore = &req.DateTo
	}
	filterKey := map[string]string{"source_type": req.SourceType, "project": req.Project, "date_from": req.DateFrom, "date_to": req.DateTo}

	items, err := s.Retriever.Search(r.Context(), req.Query, vectors[0], req.TopK, filter, filterKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
