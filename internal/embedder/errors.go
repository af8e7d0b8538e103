package embedder

import "github.com/manifold-labs/knowledgebase/internal/apierr"

// Rate wraps cause as a TransientUpstreamError for a rate-limited embedding
// call; callers apply backoff before retrying.
func Rate(cause error) error {
	return apierr.Transient("embedding backend rate-limited the request", cause)
}

// Transient wraps cause as a TransientUpstreamError for a retryable failure.
func Transient(cause error) error {
	return apierr.Transient("embedding backend transient error", cause)
}

// Permanent wraps cause as a ValidationError for a non-retryable failure
// (malformed input, dimension mismatch).
func Permanent(cause error) error {
	return apierr.Validation("embedding request rejected", cause)
}
