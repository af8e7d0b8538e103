package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/manifold-labs/knowledgebase/internal/apierr"
	"github.com/manifold-labs/knowledgebase/internal/obs"
)

// page is the keyset-paginated response envelope spec §6 names:
// {items, total, cursor}.
type page struct {
	Items  any    `json:"items"`
	Total  int    `json:"total"`
	Cursor string `json:"cursor"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err through apierr's taxonomy to an HTTP status, per spec
// §7's propagation policy. An InternalError's cause is logged under the
// request's correlation id but never serialized to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apierr.KindOf(err)
	status := apierr.HTTPStatus(kind)

	log := obs.Logger(r.Context()).WithField("kind", string(kind))
	if status >= 500 {
		log.WithError(err).Error("request failed")
	} else {
		log.WithError(err).Warn("request rejected")
	}

	message := err.Error()
	if kind == apierr.KindInternal {
		message = "an internal error occurred"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
