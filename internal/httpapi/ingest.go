package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/manifold-labs/knowledgebase/internal/apierr"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
)

type ingestFolderRequest struct {
	FolderPath string `json:"folder_path"`
	ProjectID  string `json:"project_id"`
}

type ingestTaskAcceptedResponse struct {
	TaskID string               `json:"task_id"`
	Status relstore.TaskStatus `json:"status"`
}

// handleIngestFolder starts a background folder-ingestion job, spec §4.12,
// and returns immediately with the pending task's id — the caller polls
// GET /ingest/tasks/{id} for progress.
func (s *Server) handleIngestFolder(w http.ResponseWriter, r *http.Request) {
	var req ingestFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.Validation("invalid request body", err))
		return
	}
	if req.FolderPath == "" {
		writeError(w, r, apierr.Validation("folder_path is required", nil))
		return
	}

	// Start already returns connector.PathEscape (KindForbidden) for an
	// escaping folder_path; writeError maps it through the apierr taxonomy.
	task, err := s.Tasks.Start(r.Context(), req.FolderPath, req.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, ingestTaskAcceptedResponse{TaskID: task.ID, Status: task.Status})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	cursor := r.URL.Query().Get("cursor")

	result, err := s.Rel.ListTasks(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, page{Items: result.Items, Total: result.Total, Cursor: result.Cursor})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := s.Rel.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	if task == nil {
		writeError(w, r, apierr.NotFound("task not found", nil))
		return
	}
	writeJSON(w, http.StatusOK, task)
}
