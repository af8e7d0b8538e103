package relstore

import (
	"encoding/base64"
	"encoding/json"

	"github.com/manifold-labs/knowledgebase/internal/apierr"
)

// EncodeCursor produces the opaque base64url cursor token described in spec
// §6's pagination contract: a JSON object with "id" and "sv" (sort value),
// base64url-encoded so it can travel as a query parameter untouched.
func EncodeCursor(c Cursor) string {
	b, _ := json.Marshal(struct {
		ID string `json:"id"`
		SV string `json:"sv"`
	}{ID: c.ID, SV: c.SortValue})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor reverses EncodeCursor. An empty token decodes to the zero
// Cursor, representing "start from the beginning".
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, apierr.Validation("invalid pagination cursor", err)
	}
	var v struct {
		ID string `json:"id"`
		SV string `json:"sv"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return Cursor{}, apierr.Validation("invalid pagination cursor", err)
	}
	return Cursor{ID: v.ID, SortValue: v.SV}, nil
}
