package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministicEmbedBatch_StableAndDimensioned(t *testing.T) {
	e := NewDeterministic(32, true, 7)
	vecs, err := e.EmbedBatch(context.Background(), []string{"hello world", "hello world", "other text"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.Len(t, vecs[0], 32)
	require.Equal(t, vecs[0], vecs[1], "identical input must embed identically")
	require.NotEqual(t, vecs[0], vecs[2])
}

type countingEmbedder struct {
	calls int
	dim   int
}

func (c *countingEmbedder) Name() string   { return "counting" }
func (c *countingEmbedder) Dimension() int { return c.dim }
func (c *countingEmbedder) Ping(context.Context) error { return nil }
func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func TestCaching_EmbedWithCache_HitsSkipUpstreamCall(t *testing.T) {
	inner := &countingEmbedder{dim: 1}
	c := NewCaching(inner, 10)

	texts := []string{"a", "bb", "ccc"}
	hashes := []string{"h1", "h2", "h3"}

	out1, err := c.EmbedWithCache(context.Background(), texts, hashes)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Len(t, out1, 3)

	out2, err := c.EmbedWithCache(context.Background(), texts, hashes)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls, "second call should be served entirely from cache")
	require.Equal(t, out1, out2)
}

func TestCaching_EmbedWithCache_PartialHitEmbedsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{dim: 1}
	c := NewCaching(inner, 10)

	_, err := c.EmbedWithCache(context.Background(), []string{"a"}, []string{"h1"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	out, err := c.EmbedWithCache(context.Background(), []string{"a", "b"}, []string{"h1", "h2"})
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
	require.Len(t, out, 2)
}

func TestCaching_EvictsLeastRecentlyUsed(t *testing.T) {
	inner := &countingEmbedder{dim: 1}
	c := NewCaching(inner, 2)

	_, _ = c.EmbedWithCache(context.Background(), []string{"a"}, []string{"h1"})
	_, _ = c.EmbedWithCache(context.Background(), []string{"b"}, []string{"h2"})
	_, _ = c.EmbedWithCache(context.Background(), []string{"c"}, []string{"h3"})

	require.Equal(t, 2, c.Len())

	// h1 should have been evicted; re-requesting it costs another upstream call.
	callsBefore := inner.calls
	_, _ = c.EmbedWithCache(context.Background(), []string{"a"}, []string{"h1"})
	require.Equal(t, callsBefore+1, inner.calls)
}
