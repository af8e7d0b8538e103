// Package ingest implements the per-document ingestion pipeline, spec §4.10:
// connector → parser → chunker → embedder → rel store (transactional) →
// vector index (compensating) → graph store (compensating) → cache
// invalidation. Grounded on the teacher's internal/rag/ingest orchestrator,
// which wires the same connector/parser/embedder/store collaborators behind
// one Ingest call; generalized here from the teacher's single-pass "replace
// everything" write to this spec's chunk-level diff and carried-id discipline.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/manifold-labs/knowledgebase/internal/cache"
	"github.com/manifold-labs/knowledgebase/internal/chunker"
	"github.com/manifold-labs/knowledgebase/internal/connector"
	"github.com/manifold-labs/knowledgebase/internal/diffengine"
	"github.com/manifold-labs/knowledgebase/internal/docparse"
	"github.com/manifold-labs/knowledgebase/internal/embedder"
	"github.com/manifold-labs/knowledgebase/internal/fingerprint"
	"github.com/manifold-labs/knowledgebase/internal/graphstore"
	"github.com/manifold-labs/knowledgebase/internal/index"
	"github.com/manifold-labs/knowledgebase/internal/obs"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
)

// episodeIDKey is the Segment.Metadata key the graph store's episode id is
// carried under, so a carried (unchanged) chunk keeps pointing at its
// existing episode and a removed chunk's episode can be found for cleanup.
const episodeIDKey = "episode_id"

// Result is what one call to Pipeline.IngestDocument reports back to its
// caller (an HTTP handler or the folder-ingestion task manager).
type Result struct {
	DocumentID      string
	Skipped         bool
	SegmentsCreated int
	Error           string
}

// Config holds the tunables spec §4.10 leaves to deployment: chunk size,
// whether the graph store is wired in at all (it is optional per §4.7), and
// MaxGraphRetries. The pipeline does not read MaxGraphRetries: a failed graph
// sync sets graph_synced=false and increments graph_sync_retries, and nothing
// retries it.
type Config struct {
	MaxTokens       int
	GraphEnabled    bool
	MaxGraphRetries int
}

// Pipeline wires one document's worth of collaborators together. The store
// fields (Rel, Graph, Cache, Metrics, and the backends inside Index and
// Embedder) are interfaces, so a caller can substitute in-memory test doubles
// for every store.
type Pipeline struct {
	Parser   *docparse.Registry
	Embedder *embedder.Caching
	Rel      relstore.RelStore
	Index    *index.HybridIndex
	Graph    graphstore.GraphStore // nil when Config.GraphEnabled is false
	Cache    cache.Cache
	Metrics  obs.Metrics
	Config   Config
}

// IngestDocument runs spec §4.10's twelve steps for one document fetched
// from conn by sourceID. projectID is stamped onto the document for
// multi-tenant filtering; it is not part of source identity.
func (p *Pipeline) IngestDocument(ctx context.Context, conn connector.Connector, sourceID, projectID string) Result {
	log := obs.Logger(ctx).WithFields(map[string]any{
		"source_type": conn.SourceType(),
		"source_id":   sourceID,
	})

	// Step 1: fetch + hash.
	raw, err := conn.Fetch(ctx, sourceID)
	if err != nil {
		return Result{Error: fmt.Sprintf("fetch: %v", err)}
	}
	newHash := fingerprint.Document(string(raw.Content), conn.SourceType(), sourceID)

	// Step 2: look up existing document.
	existing, err := p.Rel.GetDocumentBySource(ctx, conn.SourceType(), sourceID)
	if err != nil {
		return Result{Error: fmt.Sprintf("lookup: %v", err)}
	}

	// Step 3: short-circuit on unchanged content.
	if existing != nil && existing.ContentHash == newHash {
		if err := p.Rel.LogSync(ctx, existing.ID, relstore.SyncSkipped, 0, nil); err != nil {
			return Result{DocumentID: existing.ID, Error: fmt.Sprintf("log_sync: %v", err)}
		}
		p.count(ctx, "ingest_skipped_total", 1, conn.SourceType())
		return Result{DocumentID: existing.ID, Skipped: true}
	}

	// Step 4: parse.
	parsed, err := p.Parser.Parse(ctx, raw.Content, raw.ContentType)
	if err != nil {
		return Result{Error: fmt.Sprintf("parse: %v", err)}
	}

	// Step 5: chunk.
	chunks := chunker.Chunk(parsed, p.Config.MaxTokens)
	if len(chunks) == 0 {
		docID := ""
		if existing != nil {
			docID = existing.ID
			_ = p.Rel.LogSync(ctx, docID, relstore.SyncSkipped, 0, map[string]any{"reason": "no_chunks"})
		}
		log.Warn("document produced no chunks")
		return Result{DocumentID: docID, SegmentsCreated: 0}
	}

	// Step 7: chunk-level diff against whatever segments currently exist.
	var existingSegments []relstore.Segment
	if existing != nil {
		existingSegments, err = p.Rel.ListSegments(ctx, existing.ID)
		if err != nil {
			return Result{DocumentID: existing.ID, Error: fmt.Sprintf("list_segments: %v", err)}
		}
	}
	diff := diffengine.Compute(existingSegments, chunks)

	// Step 8: embed every chunk, carried ones included, by content hash.
	texts := make([]string, len(chunks))
	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		hashes[i] = c.ContentHash
	}
	vectors, err := p.Embedder.EmbedWithCache(ctx, texts, hashes)
	if err != nil {
		return Result{Error: fmt.Sprintf("embed: %v", err)}
	}

	// diff.Unchanged carries one entry per new chunk position that matched an
	// old segment; index it by position for O(1) lookup while building
	// newSegments below.
	carriedByPosition := make(map[int]diffengine.Carried, len(diff.Unchanged))
	for _, c := range diff.Unchanged {
		carriedByPosition[c.Chunk.Position] = c
	}

	newSegments := make([]relstore.Segment, len(chunks))
	for i, c := range chunks {
		id := uuid.New().String()
		meta := map[string]string{}
		if carried, ok := carriedByPosition[c.Position]; ok {
			id = carried.OldID
			for k, v := range carried.OldMetadata {
				meta[k] = v
			}
		}
		newSegments[i] = relstore.Segment{
			ID:          id,
			Content:     c.Content,
			ContentHash: c.ContentHash,
			SegmentType: relstore.SegmentType(c.SegmentType),
			SectionPath: c.SectionPath,
			Position:    c.Position,
			Metadata:    meta,
		}
	}

	action := relstore.SyncCreated
	if existing != nil {
		action = relstore.SyncUpdated
	}

	// Step 9: upsert_document, replace_segments, log_sync. These are three
	// separate rel-store calls, each committed on its own; a failure after
	// UpsertDocument leaves the new document row with the previous segments.
	doc := relstore.Document{
		SourceType:  conn.SourceType(),
		SourceID:    sourceID,
		SourceURL:   raw.SourceURL,
		Title:       raw.Title,
		Owner:       raw.Owner,
		ProjectID:   projectID,
		ContentHash: newHash,
		Status:      relstore.DocumentActive,
	}
	if existing != nil {
		doc.ID = existing.ID
	}
	saved, err := p.Rel.UpsertDocument(ctx, doc)
	if err != nil {
		return Result{Error: fmt.Sprintf("upsert_document: %v", err)}
	}
	for i := range newSegments {
		newSegments[i].DocumentID = saved.ID
	}
	if _, err := p.Rel.ReplaceSegments(ctx, saved.ID, newSegments); err != nil {
		return Result{DocumentID: saved.ID, Error: fmt.Sprintf("replace_segments: %v", err)}
	}
	details := map[string]any{
		"added_hashes":   hashesOf(diff.Added),
		"removed_hashes": removedHashesOf(diff.Removed),
	}
	if err := p.Rel.LogSync(ctx, saved.ID, action, len(newSegments), details); err != nil {
		return Result{DocumentID: saved.ID, Error: fmt.Sprintf("log_sync: %v", err)}
	}
	p.count(ctx, "ingest_segments_total", int64(len(newSegments)), conn.SourceType())

	// Step 10: best-effort post-commit index reconciliation.
	indexed := make([]index.IndexedSegment, len(newSegments))
	for i, s := range newSegments {
		indexed[i] = index.IndexedSegment{
			SegmentID:  s.ID,
			DocumentID: saved.ID,
			Content:    s.Content,
			Embedding:  vectors[i],
			SourceType: saved.SourceType,
			SourceID:   saved.SourceID,
			Project:    saved.ProjectID,
			Owner:      saved.Owner,
			UpdatedAt:  time.Now().UTC().Format(time.RFC3339),
		}
	}
	if _, err := p.Index.DeleteByDocument(ctx, saved.ID); err != nil {
		log.WithError(err).Error("index delete_by_document failed; next re-ingest will reconcile")
	} else if _, err := p.Index.BulkUpsert(ctx, indexed); err != nil {
		log.WithError(err).Error("index bulk_upsert failed; next re-ingest will reconcile")
	}

	// Step 11: best-effort, feature-flagged graph reconciliation.
	if p.Config.GraphEnabled && p.Graph != nil {
		p.syncGraph(ctx, saved, diff, newSegments)
	}

	// Step 12: invalidate the hybrid-retrieval cache.
	if p.Cache != nil {
		if _, err := p.Cache.InvalidateByPrefix(ctx, cache.SearchPrefix); err != nil {
			log.WithError(err).Warn("cache invalidation failed")
		}
	}

	return Result{DocumentID: saved.ID, SegmentsCreated: len(newSegments)}
}

// syncGraph removes episodes for diff.Removed and adds episodes for
// diff.Added, persisting each new episode id back onto its segment's
// metadata, per spec §4.10 step 11. Unchanged segments keep their previous
// episode_id untouched. Any failure here only flips the document's
// graph_synced flag; it never affects the already-committed rel store write.
func (p *Pipeline) syncGraph(ctx context.Context, doc relstore.Document, diff diffengine.Diff, segments []relstore.Segment) {
	log := obs.Logger(ctx).WithField("document_id", doc.ID)

	for _, removed := range diff.Removed {
		if episodeID, ok := removed.Metadata[episodeIDKey]; ok && episodeID != "" {
			if err := p.Graph.RemoveEpisode(ctx, episodeID); err != nil {
				log.WithError(err).Warn("graph remove_episode failed")
				p.markGraphFailure(ctx, doc)
				return
			}
		}
	}

	addedByPosition := make(map[int]chunker.Chunk, len(diff.Added))
	for _, added := range diff.Added {
		addedByPosition[added.Position] = added
	}

	for i := range segments {
		added, ok := addedByPosition[segments[i].Position]
		if !ok {
			continue
		}
		result, err := p.Graph.AddEpisode(ctx, segments[i].ID, added.Content, time.Now().UTC(), doc.ProjectID, nil)
		if err != nil {
			log.WithError(err).Warn("graph add_episode failed")
			p.markGraphFailure(ctx, doc)
			return
		}
		if segments[i].Metadata == nil {
			segments[i].Metadata = map[string]string{}
		}
		segments[i].Metadata[episodeIDKey] = result.EpisodeID
	}

	if _, err := p.Rel.ReplaceSegments(ctx, doc.ID, segments); err != nil {
		log.WithError(err).Warn("persisting episode ids back to rel store failed")
		p.markGraphFailure(ctx, doc)
		return
	}
	if err := p.Rel.MarkGraphSynced(ctx, doc.ID, true); err != nil {
		log.WithError(err).Warn("mark_graph_synced failed")
	}
}

func (p *Pipeline) markGraphFailure(ctx context.Context, doc relstore.Document) {
	if err := p.Rel.MarkGraphSynced(ctx, doc.ID, false); err != nil {
		obs.Logger(ctx).WithError(err).Error("mark_graph_synced(false) failed")
	}
}

func (p *Pipeline) count(ctx context.Context, name string, n int64, sourceType string) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.Count(ctx, name, n, map[string]string{"source_type": sourceType})
}

func hashesOf(chunks []chunker.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ContentHash
	}
	return out
}

func removedHashesOf(segments []relstore.Segment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.ContentHash
	}
	return out
}
