// Command server runs the knowledgebase HTTP service: ingestion, hybrid
// retrieval, the agent chat loop and the admin surface, spec §6. Grounded on
// the teacher's cmd/agentd/main.go (env/.env config load, non-fatal otel
// init, one ServeMux, one ListenAndServe), generalized from the teacher's
// single /agent/run route to this system's full transport surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/manifold-labs/knowledgebase/internal/agent"
	"github.com/manifold-labs/knowledgebase/internal/cache"
	"github.com/manifold-labs/knowledgebase/internal/config"
	"github.com/manifold-labs/knowledgebase/internal/docparse"
	"github.com/manifold-labs/knowledgebase/internal/embedder"
	"github.com/manifold-labs/knowledgebase/internal/graphstore"
	"github.com/manifold-labs/knowledgebase/internal/httpapi"
	"github.com/manifold-labs/knowledgebase/internal/index"
	"github.com/manifold-labs/knowledgebase/internal/ingest"
	"github.com/manifold-labs/knowledgebase/internal/llm"
	"github.com/manifold-labs/knowledgebase/internal/obs"
	"github.com/manifold-labs/knowledgebase/internal/pathguard"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
	"github.com/manifold-labs/knowledgebase/internal/retrieve"
	"github.com/manifold-labs/knowledgebase/internal/sqlsandbox"
	"github.com/manifold-labs/knowledgebase/internal/task"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		obs.Log.WithError(err).Fatal("failed to load configuration")
	}

	ctx := context.Background()

	rel, pool, err := buildRelStore(ctx, settings)
	if err != nil {
		obs.Log.WithError(err).Fatal("failed to build relational store")
	}

	idx, err := buildIndex(ctx, settings, pool)
	if err != nil {
		obs.Log.WithError(err).Fatal("failed to build index")
	}

	c, err := buildCache(ctx, settings)
	if err != nil {
		obs.Log.WithError(err).Fatal("failed to build cache")
	}

	graph, err := buildGraph(settings, pool)
	if err != nil {
		obs.Log.WithError(err).Fatal("failed to build graph store")
	}

	emb := buildEmbedder(settings)
	cachingEmb := embedder.NewCaching(emb, 4096)
	if err := settings.CheckIndexDimensions(emb.Dimension()); err != nil {
		obs.Log.WithError(err).Fatal("embedding dimension mismatch")
	}

	provider, err := buildProvider(settings)
	if err != nil {
		obs.Log.WithError(err).Fatal("failed to build LLM provider")
	}

	metrics := buildMetrics()

	guard, err := pathguard.New(settings.IngestRoot)
	if err != nil {
		obs.Log.WithError(err).Fatal("failed to build ingestion path guard")
	}

	sandbox, err := sqlsandbox.New(settings.SQLSandboxDataDir, settings.SQLSandboxMaxRows)
	if err != nil {
		obs.Log.WithError(err).Fatal("failed to build SQL sandbox")
	}

	if settings.RerankEnabled {
		// No reranker is wired yet: this module's dependency pack carries no
		// cross-encoder or reranking-API client. A Reranker is a narrow
		// function-shaped interface (retrieve.Reranker), so one can be added
		// behind this flag without touching the retriever itself.
		obs.Log.Warn("RERANK_ENABLED=true but no Reranker implementation is wired; reranking is skipped")
	}

	retriever := &retrieve.Retriever{
		Index:   idx,
		Rel:     rel,
		Cache:   c,
		Metrics: metrics,
		Config: retrieve.Config{
			CacheTTLSeconds: settings.SearchCacheTTLSeconds,
		},
	}

	registry := agent.NewRegistry(
		agent.NewSearchKnowledgeTool(cachingEmb, retriever),
		agent.NewGetDocumentContextTool(rel),
		agent.NewGetChangeHistoryTool(rel),
		agent.NewSearchEntitiesTool(rel),
		agent.NewQueryDatabaseTool(sandbox),
	)

	engine := &agent.Engine{Provider: provider, Registry: registry, Model: settings.AgentModel}

	pipeline := &ingest.Pipeline{
		Parser:   docparse.NewRegistry(),
		Embedder: cachingEmb,
		Rel:      rel,
		Index:    idx,
		Graph:    graph,
		Cache:    c,
		Metrics:  metrics,
		Config: ingest.Config{
			MaxTokens:       settings.ChunkSizeTokens,
			GraphEnabled:    settings.GraphBackend != "none",
			MaxGraphRetries: 3,
		},
	}
	tasks := task.NewManager(rel, guard, pipeline, c, metrics)

	router := httpapi.NewRouter(&httpapi.Server{
		Settings:  settings,
		Rel:       rel,
		Index:     idx,
		Cache:     c,
		Graph:     graph,
		Embedder:  cachingEmb,
		Retriever: retriever,
		Engine:    engine,
		Tasks:     tasks,
		Guard:     guard,
		Metrics:   metrics,
	})

	addr := getenv("LISTEN_ADDR", ":8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obs.Log.WithField("addr", addr).Info("knowledgebase server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Log.WithError(err).Fatal("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.Log.WithError(err).Error("graceful shutdown failed")
	}
}

// buildRelStore also returns the pgx pool (nil for the memory backend) so
// the index and graph backends, which share the same Postgres database, can
// reuse the one connection pool instead of each opening their own.
func buildRelStore(ctx context.Context, s *config.Settings) (relstore.RelStore, *pgxpool.Pool, error) {
	// The relational store always needs a durable backend once any other
	// backend is Postgres-backed; memory is only valid when every other
	// backend is also memory/none, which is the all-local dev posture.
	if s.VectorBackend == "memory" && s.GraphBackend != "postgres" {
		return relstore.NewMemory(), nil, nil
	}
	pool, err := relstore.NewPostgresPool(ctx, s.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return relstore.NewPostgres(pool), pool, nil
}

func buildIndex(ctx context.Context, s *config.Settings, pool *pgxpool.Pool) (*index.HybridIndex, error) {
	switch s.VectorBackend {
	case "memory":
		idx := &index.HybridIndex{Lexical: index.NewMemoryLexical(), Vector: index.NewMemoryVector()}
		return idx, idx.EnsureIndex(ctx, s.EmbeddingDims)
	case "postgres":
		idx := &index.HybridIndex{
			Lexical: index.NewPostgresLexical(pool),
			Vector:  index.NewPostgresVector(pool, s.EmbeddingDims),
		}
		return idx, idx.EnsureIndex(ctx, s.EmbeddingDims)
	case "qdrant":
		vec, err := index.NewQdrantVector(s.QdrantURL, "segments", s.EmbeddingDims)
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		idx := &index.HybridIndex{Lexical: index.NewPostgresLexical(pool), Vector: vec}
		return idx, idx.EnsureIndex(ctx, s.EmbeddingDims)
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q", s.VectorBackend)
	}
}

func buildCache(ctx context.Context, s *config.Settings) (cache.Cache, error) {
	if s.RedisURL == "" {
		return cache.NewMemory(), nil
	}
	return cache.NewRedisFromURL(ctx, s.RedisURL)
}

func buildGraph(s *config.Settings, pool *pgxpool.Pool) (graphstore.GraphStore, error) {
	switch s.GraphBackend {
	case "none":
		return nil, nil
	case "memory":
		return graphstore.NewMemory(), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("GRAPH_BACKEND=postgres requires a postgres-backed relational store")
		}
		return graphstore.NewPostgres(pool), nil
	default:
		return nil, fmt.Errorf("unknown GRAPH_BACKEND %q", s.GraphBackend)
	}
}

func buildEmbedder(s *config.Settings) embedder.Embedder {
	switch s.EmbeddingProvider {
	case "deterministic":
		return embedder.NewDeterministic(s.EmbeddingDims, true, 0)
	default:
		return embedder.NewHTTP(embedder.HTTPConfig{
			BaseURL:   s.EmbeddingBaseURL,
			Path:      "/embeddings",
			Model:     s.EmbeddingModel,
			APIHeader: "Authorization",
			Dim:       s.EmbeddingDims,
		})
	}
}

func buildProvider(s *config.Settings) (llm.Provider, error) {
	switch s.LLMProvider {
	case "anthropic":
		return llm.NewAnthropic(s.AnthropicAPIKey, s.AnthropicBaseURL, s.AgentModel, http.DefaultClient), nil
	case "openai":
		return llm.NewOpenAI(s.OpenAIAPIKey, s.OpenAIBaseURL, s.AgentModel, http.DefaultClient), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", s.LLMProvider)
	}
}

// buildMetrics wires a real OpenTelemetry meter provider using the SDK's
// in-process aggregator; spec carries no exporter requirement, so readers
// (a Prometheus scrape handler, an OTLP exporter) are an operator's choice
// left out of this process's defaults.
func buildMetrics() obs.Metrics {
	mp := metric.NewMeterProvider()
	return obs.NewOtelMetrics(mp.Meter("knowledgebase"))
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
