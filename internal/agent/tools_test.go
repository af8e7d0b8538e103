package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manifold-labs/knowledgebase/internal/embedder"
	"github.com/manifold-labs/knowledgebase/internal/index"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
	"github.com/manifold-labs/knowledgebase/internal/retrieve"
)

func seedSearchableDocument(t *testing.T, rel relstore.RelStore, idx *index.HybridIndex, emb embedder.Embedder, sourceID, title, content string) {
	t.Helper()
	ctx := context.Background()
	doc, err := rel.UpsertDocument(ctx, relstore.Document{SourceType: "local_file", SourceID: sourceID, Title: title, ContentHash: content})
	require.NoError(t, err)
	n, err := rel.ReplaceSegments(ctx, doc.ID, []relstore.Segment{{Content: content, ContentHash: content, SegmentType: relstore.SegmentText, Position: 0}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	segs, err := rel.ListSegments(ctx, doc.ID)
	require.NoError(t, err)
	vecs, err := emb.EmbedBatch(ctx, []string{content})
	require.NoError(t, err)
	_, err = idx.BulkUpsert(ctx, []index.IndexedSegment{{
		SegmentID: segs[0].ID, DocumentID: doc.ID, Content: content, Embedding: vecs[0],
		SourceType: doc.SourceType, SourceID: doc.SourceID,
	}})
	require.NoError(t, err)
}

func TestSearchKnowledgeTool_ReturnsResultsWithCitations(t *testing.T) {
	rel := relstore.NewMemory()
	idx := &index.HybridIndex{Lexical: index.NewMemoryLexical(), Vector: index.NewMemoryVector()}
	emb := embedder.NewDeterministic(16, true, 1)
	seedSearchableDocument(t, rel, idx, emb, "/q1.md", "Report", "Q1 revenue grew to four point two million")

	tool := &searchKnowledgeTool{Embedder: emb, Retriever: &retrieve.Retriever{Index: idx, Rel: rel}}
	res, err := tool.Call(context.Background(), json.RawMessage(`{"query":"Q1 revenue"}`))
	require.NoError(t, err)
	require.Contains(t, res.Text, "Report")
	require.Len(t, res.Citations, 1)
	require.Equal(t, "Report", res.Citations[0].DocumentTitle)
}

func TestSearchKnowledgeTool_EmptyQueryFailsGracefully(t *testing.T) {
	tool := &searchKnowledgeTool{}
	res, err := tool.Call(context.Background(), json.RawMessage(`{"query":""}`))
	require.NoError(t, err)
	require.Equal(t, "query is required", res.Text)
}

func TestGetDocumentContextTool_ConcatenatesSegmentsInOrder(t *testing.T) {
	rel := relstore.NewMemory()
	ctx := context.Background()
	doc, err := rel.UpsertDocument(ctx, relstore.Document{SourceType: "local_file", SourceID: "/handbook.md", Title: "Handbook", ContentHash: "h"})
	require.NoError(t, err)
	_, err = rel.ReplaceSegments(ctx, doc.ID, []relstore.Segment{
		{Content: "second", ContentHash: "s2", SegmentType: relstore.SegmentText, Position: 1},
		{Content: "first", ContentHash: "s1", SegmentType: relstore.SegmentText, Position: 0},
	})
	require.NoError(t, err)

	tool := &getDocumentContextTool{Rel: rel}
	res, err := tool.Call(ctx, json.RawMessage(`{"document_title":"Handbook"}`))
	require.NoError(t, err)
	require.Equal(t, "first\n\nsecond", res.Text)
	require.Len(t, res.Citations, 1)
	require.Equal(t, "Handbook", res.Citations[0].DocumentTitle)
}

func TestGetDocumentContextTool_NotFoundFailsGracefully(t *testing.T) {
	tool := &getDocumentContextTool{Rel: relstore.NewMemory()}
	res, err := tool.Call(context.Background(), json.RawMessage(`{"document_title":"nope"}`))
	require.NoError(t, err)
	require.Equal(t, "document not found", res.Text)
}

func TestGetChangeHistoryTool_ReturnsRecentEntries(t *testing.T) {
	rel := relstore.NewMemory()
	ctx := context.Background()
	doc, err := rel.UpsertDocument(ctx, relstore.Document{SourceType: "local_file", SourceID: "/a.md", Title: "Alpha", ContentHash: "1"})
	require.NoError(t, err)
	require.NoError(t, rel.LogSync(ctx, doc.ID, relstore.SyncCreated, 3, nil))

	tool := &getChangeHistoryTool{Rel: rel}
	res, err := tool.Call(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Contains(t, res.Text, "created")
}

func TestGetChangeHistoryTool_NoHistoryFailsGracefully(t *testing.T) {
	tool := &getChangeHistoryTool{Rel: relstore.NewMemory()}
	res, err := tool.Call(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, "no sync history found", res.Text)
}

func TestSearchEntitiesTool_MatchesPayloadSubstring(t *testing.T) {
	rel := relstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, rel.UpsertEntities(ctx, "seg-1", []relstore.ExtractedEntity{
		{EntityType: relstore.EntityMetricDefinition, EntityData: map[string]any{"name": "monthly_active_users"}, SourceSegmentID: "seg-1"},
	}))

	tool := &searchEntitiesTool{Rel: rel}
	res, err := tool.Call(ctx, json.RawMessage(`{"search_term":"monthly_active_users"}`))
	require.NoError(t, err)
	require.Contains(t, res.Text, "metric_definition")
}

func TestSearchEntitiesTool_NoMatchFailsGracefully(t *testing.T) {
	tool := &searchEntitiesTool{Rel: relstore.NewMemory()}
	res, err := tool.Call(context.Background(), json.RawMessage(`{"search_term":"nothing"}`))
	require.NoError(t, err)
	require.Equal(t, "no matching entities found", res.Text)
}

type fakeSandbox struct {
	columns   []string
	rows      [][]any
	truncated bool
	tables    []string
	err       error
}

func (f *fakeSandbox) Run(_ context.Context, _ string) ([]string, [][]any, bool, error) {
	return f.columns, f.rows, f.truncated, f.err
}
func (f *fakeSandbox) Tables() []string { return f.tables }

func TestQueryDatabaseTool_ListTables(t *testing.T) {
	tool := &queryDatabaseTool{Sandbox: &fakeSandbox{tables: []string{"revenue", "headcount"}}}
	res, err := tool.Call(context.Background(), json.RawMessage(`{"list_tables":true}`))
	require.NoError(t, err)
	require.Equal(t, "tables: revenue, headcount", res.Text)
}

func TestQueryDatabaseTool_RunsQuery(t *testing.T) {
	tool := &queryDatabaseTool{Sandbox: &fakeSandbox{
		columns: []string{"month", "amount"},
		rows:    [][]any{{"Jan", 100}, {"Feb", 120}},
	}}
	res, err := tool.Call(context.Background(), json.RawMessage(`{"sql":"SELECT * FROM revenue"}`))
	require.NoError(t, err)
	require.Contains(t, res.Text, "month | amount")
	require.Contains(t, res.Text, "Jan | 100")
}

func TestQueryDatabaseTool_FailureIsTextualNotError(t *testing.T) {
	tool := &queryDatabaseTool{Sandbox: &fakeSandbox{err: errBoom}}
	res, err := tool.Call(context.Background(), json.RawMessage(`{"sql":"DROP TABLE revenue"}`))
	require.NoError(t, err)
	require.Contains(t, res.Text, "query failed")
}

func TestRegistrySchemas_PreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry(
		&getChangeHistoryTool{Rel: relstore.NewMemory()},
		&searchEntitiesTool{Rel: relstore.NewMemory()},
	)
	schemas := r.Schemas()
	require.Len(t, schemas, 2)
	require.Equal(t, "get_change_history", schemas[0].Name)
	require.Equal(t, "search_entities", schemas[1].Name)
}
