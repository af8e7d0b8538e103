package httpapi

import (
	"net/http"

	"github.com/manifold-labs/knowledgebase/internal/apierr"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	cursor := r.URL.Query().Get("cursor")
	projectID := r.URL.Query().Get("project_id")

	result, err := s.Rel.ListDocuments(r.Context(), projectID, cursor, limit)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, page{Items: result.Items, Total: result.Total, Cursor: result.Cursor})
}

// segmentResponse is spec §6's "segment + parent document info" shape for
// GET /segments/{id}.
type segmentResponse struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	SegmentType string            `json:"segment_type"`
	SectionPath string            `json:"section_path,omitempty"`
	Position    int               `json:"position"`
	Version     int               `json:"version"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Document    struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		SourceType string `json:"source_type"`
		SourceURL  string `json:"source_url"`
	} `json:"document"`
}

func (s *Server) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	seg, err := s.Rel.GetSegment(r.Context(), id)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	if seg == nil {
		writeError(w, r, apierr.NotFound("segment not found", nil))
		return
	}

	doc, err := s.Rel.GetDocument(r.Context(), seg.DocumentID)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	if doc == nil {
		writeError(w, r, apierr.NotFound("parent document not found", nil))
		return
	}

	resp := segmentResponse{
		ID:          seg.ID,
		Content:     seg.Content,
		SegmentType: string(seg.SegmentType),
		SectionPath: seg.SectionPath,
		Position:    seg.Position,
		Version:     seg.Version,
		Metadata:    seg.Metadata,
	}
	resp.Document.ID = doc.ID
	resp.Document.Title = doc.Title
	resp.Document.SourceType = doc.SourceType
	resp.Document.SourceURL = doc.SourceURL

	writeJSON(w, http.StatusOK, resp)
}
