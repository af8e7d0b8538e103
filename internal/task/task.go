// Package task implements the background folder-ingestion job manager, spec
// §4.11: pending → running → completed/failed, with per-document progress
// observable while each document's ingestion transaction is in flight.
// Grounded on the teacher's internal/rag/ingest task runner (a goroutine per
// background job, status transitions persisted through the same store the
// synchronous path writes through) generalized from the teacher's
// single-source ingestion job to this spec's folder-of-documents fan-out.
package task

import (
	"context"
	"sync"

	"github.com/manifold-labs/knowledgebase/internal/cache"
	"github.com/manifold-labs/knowledgebase/internal/connector"
	"github.com/manifold-labs/knowledgebase/internal/connector/localfs"
	"github.com/manifold-labs/knowledgebase/internal/ingest"
	"github.com/manifold-labs/knowledgebase/internal/obs"
	"github.com/manifold-labs/knowledgebase/internal/pathguard"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
)

// Manager owns the lifecycle of folder-ingestion background jobs. Each
// started task runs on its own goroutine with its own connector and its own
// sequence of rel-store transactions; tasks are not cancelled by their
// spawner (e.g. an HTTP handler) returning.
type Manager struct {
	Rel    relstore.RelStore
	Guard  *pathguard.Guard
	Pipe   *ingest.Pipeline
	Cache  cache.Cache
	Metrics obs.Metrics

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewManager builds a Manager. pipe is reused across all started tasks —
// ingest.Pipeline holds no per-call mutable state.
func NewManager(rel relstore.RelStore, guard *pathguard.Guard, pipe *ingest.Pipeline, c cache.Cache, metrics obs.Metrics) *Manager {
	return &Manager{
		Rel:     rel,
		Guard:   guard,
		Pipe:    pipe,
		Cache:   c,
		Metrics: metrics,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start resolves folderPath against the configured ingestion root (spec
// §4.12), creates a pending task row, and spawns the background worker. It
// returns as soon as the row exists; the caller does not wait for the job.
func (m *Manager) Start(ctx context.Context, folderPath, projectID string) (relstore.IngestionTask, error) {
	if _, err := m.Guard.Resolve(folderPath); err != nil {
		return relstore.IngestionTask{}, connector.PathEscape(folderPath)
	}
	conn, err := localfs.New(m.Guard, folderPath)
	if err != nil {
		return relstore.IngestionTask{}, err
	}

	created, err := m.Rel.CreateTask(ctx, relstore.IngestionTask{
		Status:     relstore.TaskPending,
		FolderPath: folderPath,
	})
	if err != nil {
		return relstore.IngestionTask{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	runCtx = obs.WithCorrelationID(runCtx, created.ID)
	m.mu.Lock()
	m.cancels[created.ID] = cancel
	m.mu.Unlock()

	go m.run(runCtx, created.ID, conn, projectID)

	return created, nil
}

// Cancel requests that task taskID stop at its next document boundary. It is
// a no-op if the task is not currently tracked (already finished, or never
// started by this Manager instance).
func (m *Manager) Cancel(taskID string) {
	m.mu.Lock()
	cancel, ok := m.cancels[taskID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

func (m *Manager) forget(taskID string) {
	m.mu.Lock()
	delete(m.cancels, taskID)
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, taskID string, conn connector.Connector, projectID string) {
	defer m.forget(taskID)
	log := obs.Logger(ctx).WithField("task_id", taskID)

	if _, err := m.Rel.UpdateTaskStatus(ctx, taskID, relstore.TaskRunning, nil); err != nil {
		log.WithError(err).Error("failed to mark task running")
		return
	}

	docs, err := conn.List(ctx)
	if err != nil {
		m.fail(ctx, taskID, err.Error())
		return
	}

	if _, err := m.Rel.UpdateTaskStatus(ctx, taskID, relstore.TaskRunning, func(t *relstore.IngestionTask) {
		t.TotalDocuments = len(docs)
	}); err != nil {
		log.WithError(err).Error("failed to record total_documents")
	}

	for _, doc := range docs {
		select {
		case <-ctx.Done():
			// Cancellation is honored at a document boundary, never mid-transaction.
			m.complete(ctx, taskID)
			return
		default:
		}

		res := m.Pipe.IngestDocument(ctx, conn, doc.SourceID, projectID)
		result := relstore.TaskResult{
			SourceID:        doc.SourceID,
			Title:           doc.Title,
			SegmentsCreated: res.SegmentsCreated,
			Skipped:         res.Skipped,
			Error:           res.Error,
		}

		// Progress writes use their own transaction (UpdateTaskStatus), distinct
		// from the document's own ingestion transaction, so progress is visible
		// to readers while the next document's ingestion is still in flight.
		if _, err := m.Rel.UpdateTaskStatus(ctx, taskID, relstore.TaskRunning, func(t *relstore.IngestionTask) {
			t.ProcessedDocuments++
			switch {
			case res.Error != "":
				t.Failed++
			case res.Skipped:
				t.Skipped++
			default:
				t.Succeeded++
			}
			t.Results = append(t.Results, result)
		}); err != nil {
			log.WithError(err).Error("failed to record document progress")
		}
	}

	m.complete(ctx, taskID)
}

func (m *Manager) complete(ctx context.Context, taskID string) {
	if _, err := m.Rel.UpdateTaskStatus(ctx, taskID, relstore.TaskCompleted, nil); err != nil {
		obs.Logger(ctx).WithError(err).Error("failed to mark task completed")
	}
	if m.Cache != nil {
		if _, err := m.Cache.InvalidateByPrefix(ctx, cache.SearchPrefix); err != nil {
			obs.Logger(ctx).WithError(err).Warn("cache invalidation failed after folder ingest")
		}
	}
	if m.Metrics != nil {
		m.Metrics.Count(ctx, "folder_ingest_completed_total", 1, nil)
	}
}

// fail marks the task failed outright — reserved for failures of the
// enumeration step itself (e.g. the connector's List call), not per-document
// failures, which are recorded in results and still end in "completed".
func (m *Manager) fail(ctx context.Context, taskID, reason string) {
	if _, err := m.Rel.UpdateTaskStatus(ctx, taskID, relstore.TaskFailed, func(t *relstore.IngestionTask) {
		t.Error = reason
	}); err != nil {
		obs.Logger(ctx).WithError(err).Error("failed to mark task failed")
	}
	if m.Metrics != nil {
		m.Metrics.Count(ctx, "folder_ingest_failed_total", 1, nil)
	}
}
