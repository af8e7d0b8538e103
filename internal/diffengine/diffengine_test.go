package diffengine

import (
	"testing"

	"github.com/manifold-labs/knowledgebase/internal/chunker"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
	"github.com/stretchr/testify/require"
)

func TestCompute_ClassifiesAddedRemovedUnchanged(t *testing.T) {
	existing := []relstore.Segment{
		{ID: "seg-1", ContentHash: "h1", Metadata: map[string]string{"episode_id": "ep-1"}},
		{ID: "seg-2", ContentHash: "h2"},
	}
	chunks := []chunker.Chunk{
		{ContentHash: "h1", Content: "unchanged content"},
		{ContentHash: "h3", Content: "new content"},
	}

	diff := Compute(existing, chunks)

	require.Len(t, diff.Unchanged, 1)
	require.Equal(t, "seg-1", diff.Unchanged[0].OldID)
	require.Equal(t, "ep-1", diff.Unchanged[0].OldMetadata["episode_id"])

	require.Len(t, diff.Added, 1)
	require.Equal(t, "h3", diff.Added[0].ContentHash)

	require.Len(t, diff.Removed, 1)
	require.Equal(t, "seg-2", diff.Removed[0].ID)
}

func TestCompute_PreservesNewChunkOrdering(t *testing.T) {
	existing := []relstore.Segment{{ID: "seg-1", ContentHash: "h2"}}
	chunks := []chunker.Chunk{
		{ContentHash: "h1"},
		{ContentHash: "h2"},
		{ContentHash: "h3"},
	}

	diff := Compute(existing, chunks)
	require.Len(t, diff.Added, 2)
	require.Equal(t, "h1", diff.Added[0].ContentHash)
	require.Equal(t, "h3", diff.Added[1].ContentHash)
}

func TestCompute_DuplicateHashesMatchOneOldSegmentEach(t *testing.T) {
	existing := []relstore.Segment{
		{ID: "seg-1", ContentHash: "dup"},
		{ID: "seg-2", ContentHash: "dup"},
	}
	chunks := []chunker.Chunk{{ContentHash: "dup"}, {ContentHash: "dup"}}

	diff := Compute(existing, chunks)
	require.Len(t, diff.Unchanged, 2)
	require.Len(t, diff.Removed, 0)
	require.ElementsMatch(t, []string{"seg-1", "seg-2"}, []string{diff.Unchanged[0].OldID, diff.Unchanged[1].OldID})
}

func TestCompute_EmptyExisting_AllAdded(t *testing.T) {
	chunks := []chunker.Chunk{{ContentHash: "h1"}, {ContentHash: "h2"}}
	diff := Compute(nil, chunks)
	require.Len(t, diff.Added, 2)
	require.Empty(t, diff.Unchanged)
	require.Empty(t, diff.Removed)
}
