package relstore

import (
	"fmt"

	"github.com/manifold-labs/knowledgebase/internal/apierr"
)

func errNotFound(kind, id string) error {
	return apierr.NotFound(fmt.Sprintf("%s %q not found", kind, id), nil)
}

func errConflict(msg string) error {
	return apierr.Conflict(msg, nil)
}
