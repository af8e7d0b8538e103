// Package httpapi implements the transport surface spec §6: the full set of
// HTTP endpoints over the engine's core packages. Grounded on the teacher's
// cmd/agentd/main.go ServeMux (method+path patterns, one handler func per
// route, SSE via http.Flusher for the streaming endpoint) generalized from
// the teacher's single /agent/run route to this spec's full document,
// search, chat, ingestion, admin and health surface.
package httpapi

import (
	"net/http"

	"github.com/manifold-labs/knowledgebase/internal/agent"
	"github.com/manifold-labs/knowledgebase/internal/apiauth"
	"github.com/manifold-labs/knowledgebase/internal/cache"
	"github.com/manifold-labs/knowledgebase/internal/config"
	"github.com/manifold-labs/knowledgebase/internal/embedder"
	"github.com/manifold-labs/knowledgebase/internal/graphstore"
	"github.com/manifold-labs/knowledgebase/internal/index"
	"github.com/manifold-labs/knowledgebase/internal/obs"
	"github.com/manifold-labs/knowledgebase/internal/pathguard"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
	"github.com/manifold-labs/knowledgebase/internal/retrieve"
	"github.com/manifold-labs/knowledgebase/internal/task"
)

// Server holds every collaborator a transport handler needs. The store and
// backend fields (Rel, Cache, Graph, Embedder, Metrics, and Index, which
// composes two) are interfaces, so cmd/server is the only place concrete
// backends (memory/postgres/qdrant/redis) get chosen; the remaining fields
// are concrete service types.
type Server struct {
	Settings  *config.Settings
	Rel       relstore.RelStore
	Index     *index.HybridIndex
	Cache     cache.Cache
	Graph     graphstore.GraphStore // nil when graph_backend=none
	Embedder  embedder.Embedder
	Retriever *retrieve.Retriever
	Engine    *agent.Engine
	Tasks     *task.Manager
	Guard     *pathguard.Guard
	Metrics   obs.Metrics
}

// NewRouter builds the full spec §6 surface over s, wrapped with
// correlation-id propagation and (when s.Settings.AuthRequired) JWT
// enforcement. Order matters: correlation id must be attached before auth
// so an auth failure is still logged under a request id.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/stream", s.handleChatStream)

	mux.HandleFunc("POST /ingest/folder", s.handleIngestFolder)
	mux.HandleFunc("GET /ingest/tasks", s.handleListTasks)
	mux.HandleFunc("GET /ingest/tasks/{id}", s.handleGetTask)

	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("GET /segments/{id}", s.handleGetSegment)

	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /admin/users", s.handleAdminListUsers)
	mux.HandleFunc("GET /admin/users/{id}", s.handleAdminGetUser)
	mux.HandleFunc("POST /admin/roles", s.handleAdminAssignRole)
	mux.HandleFunc("DELETE /admin/roles/{user_id}/{project_id}", s.handleAdminRevokeRole)
	mux.HandleFunc("PATCH /admin/users/{id}/deactivate", s.handleAdminDeactivateUser)

	var h http.Handler = mux
	h = apiauth.Middleware(s.Settings)(h)
	h = correlationMiddleware(h)
	return h
}
