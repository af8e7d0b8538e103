package docparse

import "github.com/manifold-labs/knowledgebase/internal/apierr"

// UnsupportedType returns a ValidationError for a content type no
// registered parser declares support for.
func UnsupportedType(contentType string) error {
	return apierr.Validation("unsupported content type: "+contentType, nil)
}

// Corrupt wraps cause as a ValidationError for bytes that a parser could not
// make sense of.
func Corrupt(cause error) error {
	return apierr.Validation("document content could not be parsed", cause)
}
