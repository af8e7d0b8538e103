// Package index implements the vector/lexical index per spec §4.6: a
// segment-keyed store with an inverted text index and a dense-vector index,
// queried independently (SearchText/SearchVector) or fused (SearchHybrid).
// Grounded on the teacher's internal/persistence/databases split between
// FullTextSearch and VectorStore — generalized from the teacher's
// free-text/metadata shape to this spec's segment/filter shape, and composed
// into one HybridIndex rather than left as two independently wired fields,
// since spec §4.13 always drives both sides of a query together.
package index

import "context"

// Filter is the conjunction-of-equality (+ updated_at range) predicate spec
// §4.6 defines. Empty fields are not applied.
type Filter struct {
	SourceType string
	SourceID   string
	Project    string
	Owner      string
	Tags       []string

	UpdatedAfter  *string // RFC3339; inclusive
	UpdatedBefore *string // RFC3339; exclusive
}

// IndexedSegment is the unit bulk_upsert operates on.
type IndexedSegment struct {
	SegmentID   string
	DocumentID  string
	Content     string
	Embedding   []float32
	SourceType  string
	SourceID    string
	Project     string
	Owner       string
	Tags        []string
	UpdatedAt   string // RFC3339
}

// Result is one hit from any of the search operations.
type Result struct {
	SegmentID string
	Score     float64
	Metadata  map[string]string
}

// LexicalIndex is the inverted-text half of the index.
type LexicalIndex interface {
	EnsureIndex(ctx context.Context) error
	BulkUpsert(ctx context.Context, segments []IndexedSegment) (int, error)
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	SearchText(ctx context.Context, query string, filter Filter, k int) ([]Result, error)
}

// VectorIndex is the dense-vector half of the index.
type VectorIndex interface {
	EnsureIndex(ctx context.Context, dimensions int) error
	BulkUpsert(ctx context.Context, segments []IndexedSegment) (int, error)
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	SearchVector(ctx context.Context, vector []float32, filter Filter, k, numCandidates int) ([]Result, error)
}

// HybridIndex composes a LexicalIndex and a VectorIndex behind the single
// ensure_index/bulk_upsert/delete_by_document/search_hybrid surface spec
// §4.6 names, fanning writes out to both and fusing reads with Fuse (§4.13).
type HybridIndex struct {
	Lexical LexicalIndex
	Vector  VectorIndex
}

func (h *HybridIndex) EnsureIndex(ctx context.Context, dimensions int) error {
	if err := h.Lexical.EnsureIndex(ctx); err != nil {
		return err
	}
	return h.Vector.EnsureIndex(ctx, dimensions)
}

// BulkUpsert writes to both backends. "Wait for refresh" per spec §4.6 means
// both backends must make the write visible to a subsequent query on return,
// which both the memory and Postgres backends satisfy synchronously; Qdrant's
// default write consistency does too for the single-node deployment profile
// this system targets.
func (h *HybridIndex) BulkUpsert(ctx context.Context, segments []IndexedSegment) (int, error) {
	if _, err := h.Lexical.BulkUpsert(ctx, segments); err != nil {
		return 0, err
	}
	return h.Vector.BulkUpsert(ctx, segments)
}

func (h *HybridIndex) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	n, err := h.Lexical.DeleteByDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if _, err := h.Vector.DeleteByDocument(ctx, documentID); err != nil {
		return 0, err
	}
	return n, nil
}

func (h *HybridIndex) SearchText(ctx context.Context, query string, filter Filter, k int) ([]Result, error) {
	return h.Lexical.SearchText(ctx, query, filter, k)
}

func (h *HybridIndex) SearchVector(ctx context.Context, vector []float32, filter Filter, k, numCandidates int) ([]Result, error) {
	return h.Vector.SearchVector(ctx, vector, filter, k, numCandidates)
}

// SearchHybrid runs both retrievers over a window-sized candidate set and
// fuses them with Reciprocal Rank Fusion, per spec §4.13.
func (h *HybridIndex) SearchHybrid(ctx context.Context, query string, vector []float32, filter Filter, k, window int) ([]Result, error) {
	if window <= 0 {
		window = k * 4
	}
	textResults, err := h.Lexical.SearchText(ctx, query, filter, window)
	if err != nil {
		return nil, err
	}
	vectorResults, err := h.Vector.SearchVector(ctx, vector, filter, window, window*4)
	if err != nil {
		return nil, err
	}
	return Fuse(textResults, vectorResults, k, 60), nil
}
