package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/manifold-labs/knowledgebase/internal/apiauth"
	"github.com/manifold-labs/knowledgebase/internal/apierr"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
)

// requireAdmin enforces that the authenticated principal holds
// relstore.RoleAdmin on at least one project. When auth is disabled
// (s.Settings.AuthRequired == false) there is no principal to check and the
// admin surface is left open, matching the rest of the transport surface's
// auth-optional posture.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !s.Settings.AuthRequired {
		return true
	}
	userID := apiauth.UserID(r.Context())
	roles, err := s.Rel.GetRoles(r.Context(), userID)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return false
	}
	for _, ra := range roles {
		if ra.Role.AtLeast(relstore.RoleAdmin) {
			return true
		}
	}
	writeError(w, r, apierr.Forbidden("admin role required", nil))
	return false
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	limit := queryInt(r, "limit", 20)
	cursor := r.URL.Query().Get("cursor")

	result, err := s.Rel.ListUsers(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, page{Items: result.Items, Total: result.Total, Cursor: result.Cursor})
}

func (s *Server) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	id := r.PathValue("id")
	user, err := s.Rel.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	if user == nil {
		writeError(w, r, apierr.NotFound("user not found", nil))
		return
	}

	roles, err := s.Rel.GetRoles(r.Context(), id)
	if err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "roles": roles})
}

type assignRoleRequest struct {
	UserID    string         `json:"user_id"`
	ProjectID string         `json:"project_id"`
	Role      relstore.Role `json:"role"`
}

func (s *Server) handleAdminAssignRole(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.Validation("invalid request body", err))
		return
	}
	if req.UserID == "" || req.ProjectID == "" {
		writeError(w, r, apierr.Validation("user_id and project_id are required", nil))
		return
	}
	switch req.Role {
	case relstore.RoleViewer, relstore.RoleEditor, relstore.RoleAdmin:
	default:
		writeError(w, r, apierr.Validation("role must be one of viewer, editor, admin", nil))
		return
	}

	if err := s.Rel.AssignRole(r.Context(), req.UserID, req.ProjectID, req.Role); err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (s *Server) handleAdminRevokeRole(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	userID := r.PathValue("user_id")
	projectID := r.PathValue("project_id")

	if err := s.Rel.RevokeRole(r.Context(), userID, projectID); err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) handleAdminDeactivateUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	id := r.PathValue("id")
	if err := s.Rel.DeactivateUser(r.Context(), id); err != nil {
		writeError(w, r, apierr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
