package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/manifold-labs/knowledgebase/internal/cache"
	"github.com/manifold-labs/knowledgebase/internal/docparse"
	"github.com/manifold-labs/knowledgebase/internal/embedder"
	"github.com/manifold-labs/knowledgebase/internal/index"
	"github.com/manifold-labs/knowledgebase/internal/ingest"
	"github.com/manifold-labs/knowledgebase/internal/obs"
	"github.com/manifold-labs/knowledgebase/internal/pathguard"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
)

func newTestManager(t *testing.T, root string) *Manager {
	t.Helper()
	guard, err := pathguard.New(root)
	require.NoError(t, err)

	pipe := &ingest.Pipeline{
		Parser:   docparse.NewRegistry(),
		Embedder: embedder.NewCaching(embedder.NewDeterministic(16, true, 1), 100),
		Rel:      relstore.NewMemory(),
		Index: &index.HybridIndex{
			Lexical: index.NewMemoryLexical(),
			Vector:  index.NewMemoryVector(),
		},
		Cache:   cache.NewMemory(),
		Metrics: obs.NewMockMetrics(),
		Config:  ingest.Config{MaxTokens: 512},
	}
	return NewManager(pipe.Rel, guard, pipe, pipe.Cache, pipe.Metrics)
}

func waitForTerminal(t *testing.T, m *Manager, taskID string) relstore.IngestionTask {
	t.Helper()
	var final relstore.IngestionTask
	require.Eventually(t, func() bool {
		task, err := m.Rel.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		if task.Status == relstore.TaskCompleted || task.Status == relstore.TaskFailed {
			final = *task
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return final
}

func TestManager_Start_IngestsEveryDocumentInFolder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("# A\n\nhello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.md"), []byte("# B\n\nworld"), 0o644))

	m := newTestManager(t, root)
	created, err := m.Start(context.Background(), root, "proj-1")
	require.NoError(t, err)
	require.Equal(t, relstore.TaskPending, created.Status)

	final := waitForTerminal(t, m, created.ID)
	require.Equal(t, relstore.TaskCompleted, final.Status)
	require.Equal(t, 2, final.TotalDocuments)
	require.Equal(t, 2, final.ProcessedDocuments)
	require.Equal(t, 2, final.Succeeded)
	require.Len(t, final.Results, 2)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)
}

func TestManager_Start_RejectsPathOutsideIngestRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	m := newTestManager(t, root)

	_, err := m.Start(context.Background(), outside, "proj-1")
	require.Error(t, err)
}

func TestManager_Start_SecondRunOfSameFolder_CountsUnchangedAsSkipped(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("# A\n\nhello"), 0o644))

	m := newTestManager(t, root)
	first, err := m.Start(context.Background(), root, "proj-1")
	require.NoError(t, err)
	waitForTerminal(t, m, first.ID)

	second, err := m.Start(context.Background(), root, "proj-1")
	require.NoError(t, err)
	final := waitForTerminal(t, m, second.ID)

	require.Equal(t, 1, final.Succeeded+final.Skipped)
	require.Equal(t, 1, final.Skipped, "re-ingesting identical content must count as skipped")
}
