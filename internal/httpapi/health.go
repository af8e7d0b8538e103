package httpapi

import (
	"net/http"

	"github.com/manifold-labs/knowledgebase/internal/index"
)

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// handleHealth implements GET /health's "down dependency -> 503" contract.
// The graph backend is optional (spec §4.7); when disabled its key is
// omitted entirely rather than reported down, since an absent optional
// dependency is not a failure.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	services := make(map[string]string)
	healthy := true

	check := func(name string, err error) {
		if err != nil {
			services[name] = "down"
			healthy = false
			return
		}
		services[name] = "up"
	}

	_, err := s.Rel.Stats(ctx, "")
	check("relstore", err)

	_, err = s.Index.SearchText(ctx, "", index.Filter{}, 1)
	check("index", err)

	_, _, err = s.Cache.Get(ctx, "healthcheck")
	check("cache", err)

	if s.Graph != nil {
		_, err = s.Graph.Search(ctx, "", 1)
		check("graph", err)
	}

	if err := s.Embedder.Ping(ctx); err != nil {
		check("embedder", err)
	} else {
		services["embedder"] = "up"
	}

	status := http.StatusOK
	statusLabel := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusLabel = "degraded"
	}
	writeJSON(w, status, healthResponse{Status: statusLabel, Services: services})
}
