package embedder

import (
	"container/list"
	"context"
	"sync"
)

// Caching wraps an Embedder with a bounded LRU cache keyed by chunk content
// hash, per spec §4.4: the cache is consulted first, the miss subset is
// embedded and the cache populated. No pack repo carries a third-party LRU
// cache library (the teacher relies on Redis for all of its cross-process
// caching and has no in-process LRU anywhere) so this is a small hand-rolled
// map + container/list LRU, matching the pack's own bar for in-process
// caching rather than reaching for an unneeded dependency.
type Caching struct {
	next     Embedder
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type cacheEntry struct {
	hash   string
	vector []float32
}

// NewCaching wraps next with an LRU cache of the given capacity (spec
// default 10000; capacity<=0 uses that default).
func NewCaching(next Embedder, capacity int) *Caching {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Caching{
		next:     next,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *Caching) Name() string      { return c.next.Name() }
func (c *Caching) Dimension() int    { return c.next.Dimension() }
func (c *Caching) Ping(ctx context.Context) error { return c.next.Ping(ctx) }

// EmbedWithCache embeds texts keyed by their content hashes, consulting the
// cache first and populating it with fresh results. Every hash receives a
// vector, whether from cache or a fresh call, per spec §4.10 step 8.
func (c *Caching) EmbedWithCache(ctx context.Context, texts []string, hashes []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	c.mu.Lock()
	for i, h := range hashes {
		if el, ok := c.entries[h]; ok {
			c.order.MoveToFront(el)
			out[i] = el.Value.(*cacheEntry).vector
		} else {
			missTexts = append(missTexts, texts[i])
			missIdx = append(missIdx, i)
		}
	}
	c.mu.Unlock()

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return out, err
	}

	c.mu.Lock()
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		c.put(hashes[idx], vecs[j])
	}
	c.mu.Unlock()

	return out, nil
}

// EmbedBatch satisfies Embedder without caching (the cache is keyed by
// content hash, which callers outside the ingestion pipeline may not have);
// it delegates straight through.
func (c *Caching) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedBatch(ctx, texts)
}

// put must be called with c.mu held.
func (c *Caching) put(hash string, vec []float32) {
	if el, ok := c.entries[hash]; ok {
		el.Value.(*cacheEntry).vector = vec
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{hash: hash, vector: vec})
	c.entries[hash] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).hash)
		}
	}
}

// Len reports the current number of cached entries, for tests.
func (c *Caching) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
