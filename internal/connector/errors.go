package connector

import "github.com/manifold-labs/knowledgebase/internal/apierr"

// NotFound wraps cause as a NotFoundError for a missing document.
func NotFound(sourceID string, cause error) error {
	return apierr.NotFound("document not found: "+sourceID, cause)
}

// Unauthorized wraps cause as an AuthError for a rejected credential.
func Unauthorized(cause error) error {
	return apierr.Auth("connector credential rejected", cause)
}

// Transient wraps cause as a TransientUpstreamError for a retryable fetch failure.
func Transient(cause error) error {
	return apierr.Transient("connector upstream error", cause)
}

// PathEscape returns a ForbiddenError for a path outside the
// configured ingestion root.
func PathEscape(path string) error {
	return apierr.Forbidden("path escapes configured ingestion root: "+path, nil)
}
