// Package config builds the engine's immutable runtime Settings from
// environment variables, following the teacher's config.Config /
// LoadConfig shape but adapted to env-var + .env loading since this
// service is environment-driven rather than YAML-driven.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var insecureJWTSecrets = map[string]bool{
	"":                               true,
	"changeme":                       true,
	"secret":                         true,
	"password":                       true,
	"dev-secret-change-in-production-32b": true,
}

// Settings is the fully-resolved, read-only configuration for one process.
// Construct it once via Load at startup; pass it down by value or pointer,
// never re-read the environment after Load returns.
type Settings struct {
	DatabaseURL string
	RedisURL    string
	QdrantURL   string

	VectorBackend string // memory | postgres | qdrant
	GraphBackend  string // memory | postgres | none

	LLMProvider string // anthropic | openai
	AgentModel  string

	AnthropicAPIKey  string
	AnthropicBaseURL string // empty uses the SDK default

	OpenAIAPIKey  string
	OpenAIBaseURL string // empty uses the SDK default; set for self-hosted OpenAI-compatible servers

	EmbeddingProvider string // http | deterministic
	EmbeddingBaseURL  string
	EmbeddingModel    string
	EmbeddingDims     int

	RerankEnabled bool

	AuthRequired bool
	JWTSecret    string
	JWTAlgorithm string

	SearchCacheTTLSeconds  int
	SegmentCacheTTLSeconds int

	ChunkSizeTokens int
	IngestRoot      string

	SQLSandboxDataDir string
	SQLSandboxMaxRows int

	LogLevel string
}

// Load builds Settings from the process environment (after loading a .env
// file if one is present) and validates the fail-fast invariants. It never
// re-reads the environment after returning.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		DatabaseURL:            getenv("DATABASE_URL", "postgres://localhost:5432/knowledgebase"),
		RedisURL:               getenv("REDIS_URL", "redis://localhost:6379/0"),
		QdrantURL:              getenv("QDRANT_URL", ""),
		VectorBackend:          getenv("VECTOR_BACKEND", "memory"),
		GraphBackend:           getenv("GRAPH_BACKEND", "none"),
		LLMProvider:            getenv("LLM_PROVIDER", "anthropic"),
		AgentModel:             getenv("AGENT_MODEL", "claude-sonnet-4-5"),
		AnthropicAPIKey:        getenv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL:       getenv("ANTHROPIC_BASE_URL", ""),
		OpenAIAPIKey:           getenv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:          getenv("OPENAI_BASE_URL", ""),
		EmbeddingProvider:      getenv("EMBEDDING_PROVIDER", "http"),
		EmbeddingBaseURL:       getenv("EMBEDDING_BASE_URL", ""),
		EmbeddingModel:         getenv("EMBEDDING_MODEL", "text-embedding-3-large"),
		EmbeddingDims:          getenvInt("EMBEDDING_DIMS", 1536),
		RerankEnabled:          getenvBool("RERANK_ENABLED", false),
		AuthRequired:           getenvBool("AUTH_REQUIRED", false),
		JWTSecret:              getenv("JWT_SECRET", ""),
		JWTAlgorithm:           getenv("JWT_ALGORITHM", "HS256"),
		SearchCacheTTLSeconds:  getenvInt("SEARCH_CACHE_TTL_SECONDS", 900),
		SegmentCacheTTLSeconds: getenvInt("SEGMENT_CACHE_TTL_SECONDS", 3600),
		ChunkSizeTokens:        getenvInt("CHUNK_SIZE_TOKENS", 512),
		IngestRoot:             getenv("INGEST_ROOT", ""),
		SQLSandboxDataDir:      getenv("SQL_SANDBOX_DATA_DIR", ""),
		SQLSandboxMaxRows:      getenvInt("SQL_SANDBOX_MAX_ROWS", 1000),
		LogLevel:               getenv("LOG_LEVEL", "info"),
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.AuthRequired {
		if len(s.JWTSecret) < 32 {
			return fmt.Errorf("config: JWT_SECRET must be at least 32 characters when AUTH_REQUIRED=true")
		}
		if insecureJWTSecrets[strings.ToLower(s.JWTSecret)] {
			return fmt.Errorf("config: insecure JWT_SECRET detected with AUTH_REQUIRED=true, set a strong unique value")
		}
	}
	if s.IngestRoot != "" {
		abs, err := filepath.Abs(s.IngestRoot)
		if err != nil {
			return fmt.Errorf("config: resolving INGEST_ROOT: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("config: INGEST_ROOT %q does not exist: %w", s.IngestRoot, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("config: INGEST_ROOT %q is not a directory", s.IngestRoot)
		}
		s.IngestRoot = abs
	}
	if s.EmbeddingDims <= 0 {
		return fmt.Errorf("config: EMBEDDING_DIMS must be positive, got %d", s.EmbeddingDims)
	}
	return nil
}

// CheckIndexDimensions fails fast if the configured embedding dimension does
// not match the dimension the vector index reports once it is provisioned.
func (s *Settings) CheckIndexDimensions(indexDims int) error {
	if indexDims != s.EmbeddingDims {
		return fmt.Errorf("config: embedding dims %d do not match vector index dims %d", s.EmbeddingDims, indexDims)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
