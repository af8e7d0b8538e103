package httpapi

import (
	"net/http"

	"github.com/manifold-labs/knowledgebase/internal/apierr"
)

type statsResponse struct {
	TotalDocuments int            `json:"total_documents"`
	TotalSegments  int            `json:"total_segments"`
	BySourceType   map[string]int `json:"by_source_type"`
	LastIngestedAt *string        `json:"last_ingested_at,omitempty"`
	RecentTasks    []any          `json:"recent_tasks"`
}

// handleStats implements GET /stats: the relstore.Stats aggregate (including
// the by_source_type breakdown SPEC_FULL.md adds) plus recent_tasks, which
// reuses the same keyset-listing ListTasks that already backs /ingest/tasks.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")

	stats, err := s.Rel.Stats(r.Context(), projectID)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}

	recent, err := s.Rel.ListTasks(r.Context(), "", 5)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}

	resp := statsResponse{
		TotalDocuments: stats.TotalDocuments,
		TotalSegments:  stats.TotalSegments,
		BySourceType:   stats.BySourceType,
		LastIngestedAt: stats.LastIngestedAt,
		RecentTasks:    make([]any, len(recent.Items)),
	}
	for i, t := range recent.Items {
		resp.RecentTasks[i] = t
	}
	writeJSON(w, http.StatusOK, resp)
}
