// Package retrieve implements the hybrid retriever, spec §4.13: Reciprocal
// Rank Fusion over a lexical and a vector search, an optional reranking
// stage over a wider candidate window, and a cache short-circuit that only
// applies when no reranker is active (a reranker's output depends on a
// model whose behavior a content-hash-keyed cache cannot safely capture as
// stable). Grounded on the teacher's internal/rag Service.Retrieve, which
// already composes a FullTextSearch and a VectorStore behind one call;
// generalized here to RRF fusion (the teacher's retriever is vector-only)
// per spec §4.13's own algorithm, since no pack repo does rank fusion.
package retrieve

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/manifold-labs/knowledgebase/internal/cache"
	"github.com/manifold-labs/knowledgebase/internal/index"
	"github.com/manifold-labs/knowledgebase/internal/obs"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
)

// Item is one hydrated hit returned to a caller (the HTTP /search handler or
// the agent's search_knowledge tool), per spec §4.13's output shape.
type Item struct {
	SegmentID     string  `json:"segment_id"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	SourceURL     string  `json:"source_url,omitempty"`
	SourceID      string  `json:"source_id,omitempty"`
	SectionPath   string  `json:"section_path,omitempty"`
	DocumentTitle string  `json:"document_title,omitempty"`
	SegmentType   string  `json:"segment_type"`
}

// Reranker scores (query, text) pairs. Local (cross-encoder) and remote
// implementations both satisfy this narrow function-shaped contract, per
// spec §4.13 step 5.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Config holds the retriever's tunables.
type Config struct {
	RankConstant int // RRF k, default 60
	RerankWindowMultiplier int // M in top_k·M, default 2
	CacheTTLSeconds int // default 300
}

func (c Config) rankConstant() int {
	if c.RankConstant <= 0 {
		return 60
	}
	return c.RankConstant
}

func (c Config) rerankMultiplier() int {
	if c.RerankWindowMultiplier <= 0 {
		return 2
	}
	return c.RerankWindowMultiplier
}

func (c Config) cacheTTL() int {
	if c.CacheTTLSeconds <= 0 {
		return 300
	}
	return c.CacheTTLSeconds
}

// Retriever fuses a HybridIndex's two retrievers and hydrates the fused
// segment ids into full Items via the rel store.
type Retriever struct {
	Index    *index.HybridIndex
	Rel      relstore.RelStore
	Cache    cache.Cache // optional; nil disables the cache entirely
	Reranker Reranker    // optional
	Metrics  obs.Metrics
	Config   Config
}

// Search runs spec §4.13 end to end: fuse, optionally rerank, hydrate,
// optionally serve/populate the cache.
func (r *Retriever) Search(ctx context.Context, query string, queryVector []float32, topK int, filter index.Filter, filterKey map[string]string) ([]Item, error) {
	if topK <= 0 {
		topK = 10
	}

	cacheable := r.Cache != nil && r.Reranker == nil
	key := ""
	if cacheable {
		key = cache.SearchKey(query, topK, filterKey)
		if cached, ok, err := r.Cache.Get(ctx, key); err == nil && ok {
			var items []Item
			if jsonErr := json.Unmarshal([]byte(cached), &items); jsonErr == nil {
				r.count(ctx, "retrieve_cache_hit_total", 1)
				return items, nil
			}
		}
	}

	// Widen the fused window when a reranker will further cut it down, per
	// spec §4.13 step 5 (top_k·M candidates feed the reranker).
	fetchK := topK
	if r.Reranker != nil {
		fetchK = topK * r.Config.rerankMultiplier()
	}

	lexical, err := r.Index.Lexical.SearchText(ctx, query, filter, topK*2)
	if err != nil {
		return nil, err
	}
	vector, err := r.Index.Vector.SearchVector(ctx, queryVector, filter, topK*2, topK*10)
	if err != nil {
		return nil, err
	}
	fused := index.Fuse(lexical, vector, fetchK, r.Config.rankConstant())

	items, err := r.hydrate(ctx, fused)
	if err != nil {
		return nil, err
	}

	if r.Reranker != nil {
		items, err = r.rerank(ctx, query, items, topK)
		if err != nil {
			return nil, err
		}
	} else if len(items) > topK {
		items = items[:topK]
	}

	if cacheable {
		if blob, err := json.Marshal(items); err == nil {
			if err := r.Cache.Set(ctx, key, string(blob), r.Config.cacheTTL()); err != nil {
				obs.Logger(ctx).WithError(err).Warn("search cache populate failed")
			}
		}
	}

	r.count(ctx, "retrieve_results_total", int64(len(items)))
	return items, nil
}

func (r *Retriever) hydrate(ctx context.Context, results []index.Result) ([]Item, error) {
	items := make([]Item, 0, len(results))
	for _, res := range results {
		seg, err := r.Rel.GetSegment(ctx, res.SegmentID)
		if err != nil {
			obs.Logger(ctx).WithError(err).Warn("dangling index result: segment missing from rel store")
			continue
		}
		doc, err := r.Rel.GetDocument(ctx, seg.DocumentID)
		if err != nil {
			obs.Logger(ctx).WithError(err).Warn("dangling segment: document missing from rel store")
			continue
		}
		items = append(items, Item{
			SegmentID:     seg.ID,
			Content:       seg.Content,
			Score:         res.Score,
			SourceURL:     doc.SourceURL,
			SourceID:      doc.SourceID,
			SectionPath:   seg.SectionPath,
			DocumentTitle: doc.Title,
			SegmentType:   string(seg.SegmentType),
		})
	}
	return items, nil
}

// rerank scores each item's content against query and keeps the top_k by
// reranker score, per spec §4.13 step 5.
func (r *Retriever) rerank(ctx context.Context, query string, items []Item, topK int) ([]Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Content
	}
	scores, err := r.Reranker.Rerank(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if i < len(scores) {
			items[i].Score = scores[i]
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > topK {
		items = items[:topK]
	}
	return items, nil
}

func (r *Retriever) count(ctx context.Context, name string, n int64) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.Count(ctx, name, n, nil)
}
