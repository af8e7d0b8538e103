package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/manifold-labs/knowledgebase/internal/obs"
)

const correlationHeader = "X-Correlation-ID"

// correlationMiddleware implements spec §6's "X-Correlation-ID (in: used,
// out: echoed; generated if absent)" contract and attaches the id to the
// request context so every log line for this request carries it (spec §5).
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		ctx := obs.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
