// Package diffengine computes the chunk-level diff driving re-ingestion per
// spec §4.9. There is no teacher precedent for this exact algorithm (the
// teacher's RAG pipeline always fully replaces a document's chunks rather
// than diffing them), so this package is grounded directly on spec §4.9's
// own definition rather than an adapted teacher file.
package diffengine

import (
	"github.com/manifold-labs/knowledgebase/internal/chunker"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
)

// Diff is the result of comparing a document's existing segments against a
// freshly chunked version of the re-fetched content.
type Diff struct {
	Added     []chunker.Chunk
	Removed   []relstore.Segment
	Unchanged []Carried
}

// Carried is a new chunk whose content_hash matches an existing segment: the
// old segment's id and metadata are forwarded so downstream stores (vector
// index, graph store) can recognize it as unchanged rather than re-create it.
type Carried struct {
	Chunk       chunker.Chunk
	OldID       string
	OldMetadata map[string]string
}

// Compute matches new chunks against existing segments by content_hash,
// preserving the new chunk list's ordering for Added and Unchanged, per
// spec §4.9.
func Compute(existing []relstore.Segment, chunks []chunker.Chunk) Diff {
	// A queue per hash, not a single value, so documents with repeated
	// identical chunks (e.g. a boilerplate disclaimer appearing twice) match
	// one old segment per new chunk rather than collapsing onto one id.
	byHash := make(map[string][]relstore.Segment, len(existing))
	for _, s := range existing {
		byHash[s.ContentHash] = append(byHash[s.ContentHash], s)
	}

	matched := make(map[string]bool, len(existing))
	var diff Diff
	for _, c := range chunks {
		queue := byHash[c.ContentHash]
		if len(queue) > 0 {
			old := queue[0]
			byHash[c.ContentHash] = queue[1:]
			diff.Unchanged = append(diff.Unchanged, Carried{Chunk: c, OldID: old.ID, OldMetadata: old.Metadata})
			matched[old.ID] = true
			continue
		}
		diff.Added = append(diff.Added, c)
	}

	for _, s := range existing {
		if !matched[s.ID] {
			diff.Removed = append(diff.Removed, s)
		}
	}

	return diff
}
