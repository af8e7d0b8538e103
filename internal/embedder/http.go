package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// HTTPConfig configures the HTTP embedding backend. Grounded on the
// teacher's config.EmbeddingConfig field set (internal/embedding/client.go).
type HTTPConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string // "Authorization" sends "Bearer <key>"; any other name is sent verbatim
	Timeout   time.Duration
	Dim       int
	// BatchSize bounds how many texts are sent per request; spec §4.4 calls
	// for typical batches of 50-100.
	BatchSize int
}

// httpEmbedder calls a configured HTTP embedding endpoint, batching requests
// and retrying transient failures with jittered exponential backoff.
// Grounded on the teacher's internal/embedding/client.go EmbedText (request
// shape, header handling) composed with internal/rag/embedder.go's
// clientEmbedder (batching loop), replacing its single-item batchSize=1
// workaround with spec's 50-100 batch target since this spec names no
// llama.cpp-specific constraint.
type httpEmbedder struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTP constructs an Embedder backed by an HTTP embeddings endpoint.
func NewHTTP(cfg HTTPConfig) Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &httpEmbedder{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (h *httpEmbedder) Name() string   { return h.cfg.Model }
func (h *httpEmbedder) Dimension() int { return h.cfg.Dim }

func (h *httpEmbedder) Ping(ctx context.Context) error {
	_, err := h.callWithRetry(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}

func (h *httpEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out [][]float32
	for i := 0; i < len(texts); i += h.cfg.BatchSize {
		end := i + h.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := h.callWithRetry(ctx, texts[i:end])
		if err != nil {
			return out, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

const maxAttempts = 3

// callWithRetry retries transient failures with exponential backoff plus
// full jitter, per spec §4.4 (3 attempts, jittered).
func (h *httpEmbedder) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			base := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
			wait := time.Duration(rand.Int63n(int64(base) + 1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		vecs, retryable, err := h.call(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, Transient(lastErr)
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (h *httpEmbedder) call(ctx context.Context, texts []string) (vecs [][]float32, retryable bool, err error) {
	body, _ := json.Marshal(embedReq{Model: h.cfg.Model, Input: texts})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+h.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, false, Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	} else if h.cfg.APIHeader != "" {
		req.Header.Set(h.cfg.APIHeader, h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, true, Transient(err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, true, Transient(readErr)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, Rate(fmt.Errorf("status %s", resp.Status))
	}
	if resp.StatusCode >= 500 {
		return nil, true, Transient(fmt.Errorf("status %s: %s", resp.Status, respBody))
	}
	if resp.StatusCode/100 != 2 {
		return nil, false, Permanent(fmt.Errorf("status %s: %s", resp.Status, respBody))
	}

	var er embedResp
	if err := json.Unmarshal(respBody, &er); err != nil {
		return nil, false, Permanent(fmt.Errorf("parsing embedding response: %w", err))
	}
	if len(er.Data) != len(texts) {
		return nil, false, Permanent(fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), len(texts)))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, false, nil
}
