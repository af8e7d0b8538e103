package relstore

import "context"

// RelStore is the authoritative record store per spec §4.5. Ingest calls
// UpsertDocument, ReplaceSegments and LogSync one after another for a
// document; each call commits on its own, and no implementation commits the
// three together atomically.
type RelStore interface {
	UpsertDocument(ctx context.Context, doc Document) (Document, error)
	GetDocumentBySource(ctx context.Context, sourceType, sourceID string) (*Document, error)
	GetDocument(ctx context.Context, documentID string) (*Document, error)
	ListDocuments(ctx context.Context, projectID string, cursor string, limit int) (Page[Document], error)
	MarkGraphSynced(ctx context.Context, documentID string, synced bool) error

	ReplaceSegments(ctx context.Context, documentID string, segments []Segment) (int, error)
	ListSegments(ctx context.Context, documentID string) ([]Segment, error)
	GetSegment(ctx context.Context, segmentID string) (*Segment, error)

	LogSync(ctx context.Context, documentID string, action SyncAction, segmentsAffected int, details map[string]any) error
	ListSyncLogs(ctx context.Context, documentID string) ([]SyncLog, error)
	// RecentSyncLogs returns the latest sync log entries across all documents,
	// most recent first, optionally filtered to documents whose title contains
	// titleMatch (case-insensitive). Backs the agent's get_change_history tool.
	RecentSyncLogs(ctx context.Context, titleMatch string, limit int) ([]SyncLog, error)

	CreateTask(ctx context.Context, task IngestionTask) (IngestionTask, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, fn func(*IngestionTask)) (IngestionTask, error)
	GetTask(ctx context.Context, taskID string) (*IngestionTask, error)
	ListTasks(ctx context.Context, cursor string, limit int) (Page[IngestionTask], error)

	GetRoles(ctx context.Context, userID string) ([]RoleAssignment, error)
	AssignRole(ctx context.Context, userID, projectID string, role Role) error
	RevokeRole(ctx context.Context, userID, projectID string) error
	DeactivateUser(ctx context.Context, userID string) error
	GetUser(ctx context.Context, userID string) (*User, error)
	// ListUsers backs the admin GET /admin/users listing, keyset-paginated
	// like ListDocuments/ListTasks.
	ListUsers(ctx context.Context, cursor string, limit int) (Page[User], error)

	UpsertEntities(ctx context.Context, segmentID string, entities []ExtractedEntity) error
	ListEntitiesBySegment(ctx context.Context, segmentID string) ([]ExtractedEntity, error)
	// SearchEntities matches searchTerm (case-insensitive substring) against
	// each entity's JSON payload, optionally filtered to entityType. Backs the
	// agent's search_entities tool.
	SearchEntities(ctx context.Context, entityType EntityType, searchTerm string, limit int) ([]ExtractedEntity, error)

	Stats(ctx context.Context, projectID string) (Stats, error)
}

// Stats is the aggregate counts backing the /stats transport operation.
type Stats struct {
	TotalDocuments  int
	TotalSegments   int
	BySourceType    map[string]int
	LastIngestedAt  *string // RFC3339, nil when no document has synced yet
}
