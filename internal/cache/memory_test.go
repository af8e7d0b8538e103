package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet_RoundTrips(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", "v1", 60))
	v, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)
}

func TestMemory_Get_MissingKey(t *testing.T) {
	c := NewMemory()
	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemory_Set_ExpiresAfterTTL(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	c.mu.Lock()
	c.entries["k1"] = memoryEntry{value: "v1", expires: time.Now().Add(-time.Second)}
	c.mu.Unlock()

	_, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok, "expired entry must not be returned")
}

func TestMemory_InvalidateByPrefix_RemovesMatchingKeysOnly(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "search:a", "1", 0))
	require.NoError(t, c.Set(ctx, "search:b", "2", 0))
	require.NoError(t, c.Set(ctx, "session:c", "3", 0))

	n, err := c.InvalidateByPrefix(ctx, SearchPrefix)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, ok, _ := c.Get(ctx, "session:c")
	require.True(t, ok)
}

func TestSearchKey_StableAcrossFilterOrdering(t *testing.T) {
	k1 := SearchKey("revenue", 5, map[string]string{"project": "p1", "owner": "alice"})
	k2 := SearchKey("revenue", 5, map[string]string{"owner": "alice", "project": "p1"})
	require.Equal(t, k1, k2)
	require.True(t, len(k1) > len(SearchPrefix))
}

func TestSearchKey_DiffersOnQueryChange(t *testing.T) {
	k1 := SearchKey("revenue", 5, nil)
	k2 := SearchKey("margin", 5, nil)
	require.NotEqual(t, k1, k2)
}
