package graphstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_AddEpisode_ExtractsEntitiesAndEdges(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	res, err := m.AddEpisode(ctx, "chunk-1", "Acme Corp acquired Beta Industries last year.", time.Now(), "grp", nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.EpisodeID)
	require.NotEmpty(t, res.Entities)
	require.NotEmpty(t, res.Edges)

	for _, e := range res.Edges {
		require.Equal(t, res.EpisodeID, e.EpisodeID)
		require.Nil(t, e.InvalidAt)
	}
}

func TestMemory_RemoveEpisode_ClosesEdgesInsteadOfDeleting(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	res, err := m.AddEpisode(ctx, "chunk-1", "Acme Corp acquired Beta Industries.", time.Now(), "grp", nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Edges)

	require.NoError(t, m.RemoveEpisode(ctx, res.EpisodeID))

	// Closed edges are excluded from live search...
	hits, err := m.Search(ctx, "Acme", 10)
	require.NoError(t, err)
	require.Empty(t, hits)

	// ...but preserved in entity_history, with invalid_at set.
	history, err := m.EntityHistory(ctx, res.Edges[0].SourceEntity, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	require.NotNil(t, history[0].InvalidAt)
}

func TestMemory_Neighborhood_FindsConnectedEntities(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.AddEpisode(ctx, "c1", "Acme Corp partners with Beta Industries and Gamma LLC.", time.Now(), "", nil)
	require.NoError(t, err)

	neighbors, err := m.Neighborhood(ctx, "Acme Corp", 1)
	require.NoError(t, err)
	require.NotEmpty(t, neighbors)
}

func TestMemory_EntityHistory_FiltersByAsOf(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	past := time.Now().Add(-48 * time.Hour)
	_, err := m.AddEpisode(ctx, "c1", "Acme Corp merged with Delta Inc.", past, "", nil)
	require.NoError(t, err)

	cutoff := time.Now().Add(-72 * time.Hour)
	history, err := m.EntityHistory(ctx, "Acme Corp", nil, &cutoff)
	require.NoError(t, err)
	require.Empty(t, history, "edge valid_at is after the as_of cutoff")
}
