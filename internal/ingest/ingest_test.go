package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manifold-labs/knowledgebase/internal/cache"
	"github.com/manifold-labs/knowledgebase/internal/connector"
	"github.com/manifold-labs/knowledgebase/internal/docparse"
	"github.com/manifold-labs/knowledgebase/internal/embedder"
	"github.com/manifold-labs/knowledgebase/internal/index"
	"github.com/manifold-labs/knowledgebase/internal/obs"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
)

// fakeConnector serves a single fixed document by source id, with content
// swappable between test steps to simulate a re-ingest.
type fakeConnector struct {
	sourceType string
	content    string
	title      string
}

func (f *fakeConnector) SourceType() string { return f.sourceType }
func (f *fakeConnector) List(_ context.Context) ([]connector.ListedDocument, error) {
	return nil, nil
}
func (f *fakeConnector) Fetch(_ context.Context, sourceID string) (connector.FetchedDocument, error) {
	return connector.FetchedDocument{
		Content:     []byte(f.content),
		ContentType: "text/markdown",
		SourceID:    sourceID,
		Title:       f.title,
	}, nil
}
func (f *fakeConnector) CheapHash(_ context.Context, _ string) (string, error) { return "", nil }

func newTestPipeline() (*Pipeline, *fakeConnector) {
	conn := &fakeConnector{sourceType: "local_fs", content: "# A\n\nhello", title: "doc"}
	return &Pipeline{
		Parser:   docparse.NewRegistry(),
		Embedder: embedder.NewCaching(embedder.NewDeterministic(16, true, 1), 100),
		Rel:      relstore.NewMemory(),
		Index: &index.HybridIndex{
			Lexical: index.NewMemoryLexical(),
			Vector:  index.NewMemoryVector(),
		},
		Cache:  cache.NewMemory(),
		Metrics: obs.NewMockMetrics(),
		Config: Config{MaxTokens: 512},
	}, conn
}

func TestIngestDocument_FirstIngest_CreatesOneSegmentAndSyncLog(t *testing.T) {
	p, conn := newTestPipeline()
	ctx := context.Background()

	res := p.IngestDocument(ctx, conn, "/a.md", "proj-1")
	require.Empty(t, res.Error)
	require.False(t, res.Skipped)
	require.Equal(t, 1, res.SegmentsCreated)

	logs, err := p.Rel.ListSyncLogs(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, relstore.SyncCreated, logs[0].Action)
}

func TestIngestDocument_SecondIngestOfIdenticalContent_Skips(t *testing.T) {
	p, conn := newTestPipeline()
	ctx := context.Background()

	first := p.IngestDocument(ctx, conn, "/a.md", "proj-1")
	require.False(t, first.Skipped)

	segsBefore, err := p.Rel.ListSegments(ctx, first.DocumentID)
	require.NoError(t, err)

	second := p.IngestDocument(ctx, conn, "/a.md", "proj-1")
	require.True(t, second.Skipped)
	require.Equal(t, 0, second.SegmentsCreated)
	require.Equal(t, first.DocumentID, second.DocumentID)

	segsAfter, err := p.Rel.ListSegments(ctx, first.DocumentID)
	require.NoError(t, err)
	require.Equal(t, segsBefore[0].ID, segsAfter[0].ID, "segment id must be stable across a skipped re-ingest")

	logs, err := p.Rel.ListSyncLogs(ctx, first.DocumentID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, relstore.SyncSkipped, logs[1].Action)
}

func TestIngestDocument_ChangedContent_PreservesUnchangedSegmentIDs(t *testing.T) {
	p, conn := newTestPipeline()
	ctx := context.Background()

	first := p.IngestDocument(ctx, conn, "/a.md", "proj-1")
	require.False(t, first.Skipped)
	before, err := p.Rel.ListSegments(ctx, first.DocumentID)
	require.NoError(t, err)
	require.Len(t, before, 1)
	oldID := before[0].ID

	conn.content = "# A\n\nhello\n\n# B\n\nworld"
	second := p.IngestDocument(ctx, conn, "/a.md", "proj-1")
	require.Empty(t, second.Error)
	require.False(t, second.Skipped)
	require.Equal(t, 2, second.SegmentsCreated)

	after, err := p.Rel.ListSegments(ctx, first.DocumentID)
	require.NoError(t, err)
	require.Len(t, after, 2)

	var foundCarried bool
	for _, s := range after {
		if s.ID == oldID {
			foundCarried = true
		}
	}
	require.True(t, foundCarried, "unchanged chunk must keep its prior segment id")

	logs, err := p.Rel.ListSyncLogs(ctx, first.DocumentID)
	require.NoError(t, err)
	require.Equal(t, relstore.SyncUpdated, logs[len(logs)-1].Action)
}

func TestIngestDocument_IndexReflectsReplacedSegments(t *testing.T) {
	p, conn := newTestPipeline()
	ctx := context.Background()

	res := p.IngestDocument(ctx, conn, "/a.md", "proj-1")
	require.Empty(t, res.Error)

	hits, err := p.Index.SearchText(ctx, "hello", index.Filter{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}

func TestIngestDocument_CacheInvalidatedAfterSuccessfulRun(t *testing.T) {
	p, conn := newTestPipeline()
	ctx := context.Background()
	require.NoError(t, p.Cache.Set(ctx, cache.SearchPrefix+"stale", "x", 60))

	res := p.IngestDocument(ctx, conn, "/a.md", "proj-1")
	require.Empty(t, res.Error)

	_, ok, err := p.Cache.Get(ctx, cache.SearchPrefix+"stale")
	require.NoError(t, err)
	require.False(t, ok, "search cache must be invalidated after a successful ingest")
}
