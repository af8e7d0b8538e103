package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manifold-labs/knowledgebase/internal/cache"
	"github.com/manifold-labs/knowledgebase/internal/config"
	"github.com/manifold-labs/knowledgebase/internal/embedder"
	"github.com/manifold-labs/knowledgebase/internal/index"
	"github.com/manifold-labs/knowledgebase/internal/obs"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
	"github.com/manifold-labs/knowledgebase/internal/retrieve"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	rel := relstore.NewMemory()
	idx := &index.HybridIndex{Lexical: index.NewMemoryLexical(), Vector: index.NewMemoryVector()}
	emb := embedder.NewDeterministic(16, true, 1)
	return &Server{
		Settings:  &config.Settings{AuthRequired: false},
		Rel:       rel,
		Index:     idx,
		Cache:     cache.NewMemory(),
		Embedder:  emb,
		Retriever: &retrieve.Retriever{Index: idx, Rel: rel, Metrics: obs.NewMockMetrics()},
	}
}

func TestHandleSearch_RejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader([]byte(`{"query":""}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 422, rec.Code)
}

func TestHandleSearch_ReturnsHydratedResults(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	doc, err := s.Rel.UpsertDocument(ctx, relstore.Document{SourceType: "local_file", SourceID: "/a.md", Title: "Runbook", ContentHash: "h1"})
	require.NoError(t, err)
	_, err = s.Rel.ReplaceSegments(ctx, doc.ID, []relstore.Segment{{Content: "rotate the database credentials quarterly", ContentHash: "h1", SegmentType: relstore.SegmentText}})
	require.NoError(t, err)
	segs, err := s.Rel.ListSegments(ctx, doc.ID)
	require.NoError(t, err)
	vecs, err := s.Embedder.EmbedBatch(ctx, []string{"rotate the database credentials quarterly"})
	require.NoError(t, err)
	_, err = s.Index.BulkUpsert(ctx, []index.IndexedSegment{{SegmentID: segs[0].ID, DocumentID: doc.ID, Content: "rotate the database credentials quarterly", Embedding: vecs[0], SourceType: doc.SourceType, SourceID: doc.SourceID}})
	require.NoError(t, err)

	router := NewRouter(s)
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader([]byte(`{"query":"rotate database credentials"}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var items []retrieve.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	require.Equal(t, "Runbook", items[0].DocumentTitle)
}

func TestHandleHealth_OKWhenAllDependenciesUp(t *testing.T) {
	s := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "up", resp.Services["relstore"])
	require.NotContains(t, resp.Services, "graph")
}

func TestRouter_AssignsCorrelationID(t *testing.T) {
	s := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get(correlationHeader))
}

func TestRouter_EchoesProvidedCorrelationID(t *testing.T) {
	s := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(correlationHeader, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "req-123", rec.Header().Get(correlationHeader))
}

func TestRouter_RejectsMissingBearerTokenWhenAuthRequired(t *testing.T) {
	s := newTestServer(t)
	s.Settings = &config.Settings{AuthRequired: true, JWTSecret: "0123456789abcdef0123456789abcdef", JWTAlgorithm: "HS256"}
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 401, rec.Code)
}

func TestHandleListDocuments_PaginatesViaEnvelope(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.Rel.UpsertDocument(ctx, relstore.Document{SourceType: "local_file", SourceID: "/a.md", Title: "A", ContentHash: "h1"})
	require.NoError(t, err)

	router := NewRouter(s)
	req := httptest.NewRequest(http.MethodGet, "/documents?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
}
