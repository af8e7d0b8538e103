// Package connector defines the narrow capability interface for enumerating
// a document source and fetching individual documents by source id, plus a
// local filesystem implementation. Grounded on the teacher's directory-walk
// in internal/sefii/pathingest.go, generalized into a polymorphic interface
// per spec §4.1 (one implementation per provider, composed not inherited).
package connector

import (
	"context"
	"time"
)

// ListedDocument is one entry returned by Connector.List.
type ListedDocument struct {
	SourceID   string
	Title      string
	Owner      string
	SourceURL  string
	ModifiedAt time.Time
}

// FetchedDocument is the raw content and provenance metadata for one
// document, as returned by Connector.Fetch.
type FetchedDocument struct {
	Content     []byte
	ContentType string
	SourceID    string
	Title       string
	SourceURL   string
	Owner       string
	Metadata    map[string]string
}

// Connector enumerates a source and fetches individual documents. A
// concrete type implements exactly one variant (local filesystem, Google
// Drive, ...); the variant is chosen at construction from config.
type Connector interface {
	// SourceType identifies the connector kind stamped onto Document.source_type.
	SourceType() string
	// List enumerates every document currently visible through this connector.
	List(ctx context.Context) ([]ListedDocument, error)
	// Fetch retrieves one document's bytes and metadata by source id.
	Fetch(ctx context.Context, sourceID string) (FetchedDocument, error)
	// CheapHash returns a cheap change-detection hash for sourceID — the
	// provider's own checksum where available, otherwise SHA-256 of the
	// fetched content.
	CheapHash(ctx context.Context, sourceID string) (string, error)
}
