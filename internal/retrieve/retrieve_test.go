package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manifold-labs/knowledgebase/internal/cache"
	"github.com/manifold-labs/knowledgebase/internal/index"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
)

func seedDocument(t *testing.T, rel relstore.RelStore, idx *index.HybridIndex, sourceID, content string) relstore.Segment {
	t.Helper()
	ctx := context.Background()
	doc, err := rel.UpsertDocument(ctx, relstore.Document{SourceType: "local_file", SourceID: sourceID, Title: "Doc " + sourceID, ContentHash: content})
	require.NoError(t, err)
	seg := relstore.Segment{Content: content, ContentHash: content, SegmentType: relstore.SegmentText}
	n, err := rel.ReplaceSegments(ctx, doc.ID, []relstore.Segment{seg})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	segs, err := rel.ListSegments(ctx, doc.ID)
	require.NoError(t, err)

	_, err = idx.BulkUpsert(ctx, []index.IndexedSegment{{
		SegmentID:  segs[0].ID,
		DocumentID: doc.ID,
		Content:    content,
		Embedding:  []float32{1, 0, 0},
		SourceType: doc.SourceType,
		SourceID:   doc.SourceID,
	}})
	require.NoError(t, err)
	return segs[0]
}

func newTestRetriever() (*Retriever, relstore.RelStore, *index.HybridIndex) {
	rel := relstore.NewMemory()
	idx := &index.HybridIndex{Lexical: index.NewMemoryLexical(), Vector: index.NewMemoryVector()}
	return &Retriever{Index: idx, Rel: rel, Cache: cache.NewMemory()}, rel, idx
}

func TestSearch_HydratesFusedResultsFromRelStore(t *testing.T) {
	r, rel, idx := newTestRetriever()
	seedDocument(t, rel, idx, "/a.md", "revenue grew substantially")

	items, err := r.Search(context.Background(), "revenue", []float32{1, 0, 0}, 5, index.Filter{}, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "revenue grew substantially", items[0].Content)
	require.Equal(t, "Doc /a.md", items[0].DocumentTitle)
	require.Equal(t, "/a.md", items[0].SourceID)
}

func TestSearch_CachesResultWhenNoRerankerActive(t *testing.T) {
	r, rel, idx := newTestRetriever()
	seedDocument(t, rel, idx, "/a.md", "revenue grew substantially")

	ctx := context.Background()
	first, err := r.Search(ctx, "revenue", []float32{1, 0, 0}, 5, index.Filter{}, nil)
	require.NoError(t, err)

	key := cache.SearchKey("revenue", 5, nil)
	cached, ok, err := r.Cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok, "a successful search with no reranker must populate the cache")
	require.Contains(t, cached, first[0].SegmentID)
}

type fakeReranker struct {
	scores []float64
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, texts []string) ([]float64, error) {
	return f.scores, nil
}

func TestSearch_WithRerankerActive_SkipsCacheAndReorders(t *testing.T) {
	r, rel, idx := newTestRetriever()
	seedDocument(t, rel, idx, "/a.md", "alpha document")
	seedDocument(t, rel, idx, "/b.md", "beta document")

	r.Reranker = &fakeReranker{scores: []float64{0.1, 0.9}}
	ctx := context.Background()
	items, err := r.Search(ctx, "document", []float32{1, 0, 0}, 2, index.Filter{}, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.True(t, items[0].Score >= items[1].Score)

	key := cache.SearchKey("document", 2, nil)
	_, ok, err := r.Cache.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok, "a reranker-active search must never populate the cache")
}
