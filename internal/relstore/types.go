// Package relstore is the authoritative record of documents, segments, sync
// log entries, ingestion tasks, users/roles and extracted entities, per
// spec §3/§4.5. Grounded on the teacher's internal/persistence/databases
// package shape (a narrow per-concern interface implemented by a memory and
// a Postgres/pgx backend, assembled by a factory), generalized from the
// teacher's chat/project/specialist stores to this spec's document-centric
// schema.
package relstore

import "time"

// DocumentStatus is the closed lifecycle state of a Document.
type DocumentStatus string

const (
	DocumentActive   DocumentStatus = "active"
	DocumentArchived DocumentStatus = "archived"
)

// Document is the registered source artifact, identity (source_type, source_id).
type Document struct {
	ID               string
	SourceType       string
	SourceID         string
	SourceURL        string
	Title            string
	Owner            string
	ProjectID        string
	ContentHash      string
	Status           DocumentStatus
	LastSyncedAt     time.Time
	GraphSynced      bool
	GraphSyncRetries int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SegmentType is the closed set of per-chunk type tags.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentTable SegmentType = "table"
	SegmentImage SegmentType = "image"
	SegmentCode  SegmentType = "code"
)

// Segment is one chunk of a document.
type Segment struct {
	ID          string
	DocumentID  string
	Content     string
	ContentHash string
	SegmentType SegmentType
	SectionPath string // empty means null
	Position    int
	Version     int
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SyncAction is the closed set of sync log actions.
type SyncAction string

const (
	SyncCreated SyncAction = "created"
	SyncUpdated SyncAction = "updated"
	SyncDeleted SyncAction = "deleted"
	SyncSkipped SyncAction = "skipped"
	SyncError   SyncAction = "error"
)

// SyncLog is an append-only audit entry.
type SyncLog struct {
	ID               string
	DocumentID       string
	Action           SyncAction
	SegmentsAffected int
	Details          map[string]any
	CreatedAt        time.Time
}

// TaskStatus is the closed lifecycle state of an IngestionTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskResult is one per-document record appended to an IngestionTask.
type TaskResult struct {
	SourceID        string
	Title           string
	SegmentsCreated int
	Skipped         bool
	Error           string
}

// IngestionTask is a background folder-ingestion job.
type IngestionTask struct {
	ID                 string
	Status             TaskStatus
	FolderPath         string
	TotalDocuments     int
	ProcessedDocuments int
	Succeeded          int
	Skipped            int
	Failed             int
	Results            []TaskResult
	Error              string
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// Role is ordered viewer < editor < admin.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{RoleViewer: 0, RoleEditor: 1, RoleAdmin: 2}

// AtLeast reports whether r is the same as or higher-privileged than other.
func (r Role) AtLeast(other Role) bool { return roleRank[r] >= roleRank[other] }

// User is an authenticated principal.
type User struct {
	ID     string
	Email  string
	Name   string
	Active bool
}

// RoleAssignment is a (user, project) role grant, unique per pair.
type RoleAssignment struct {
	UserID    string
	ProjectID string
	Role      Role
}

// EntityType is the closed set of extracted-entity kinds.
type EntityType string

const (
	EntityMetricDefinition   EntityType = "metric_definition"
	EntityEventTrackingSpec  EntityType = "event_tracking_spec"
	EntityKPITarget          EntityType = "kpi_target"
)

// ExtractedEntity is a structured fact mined from a segment.
type ExtractedEntity struct {
	ID              string
	EntityType      EntityType
	EntityData      map[string]any
	Confidence      float64
	SourceSegmentID string
	SourceText      string
	CreatedAt       time.Time
}

// Cursor is the decoded form of a keyset pagination token.
type Cursor struct {
	ID        string
	SortValue string
}

// Page wraps a keyset-paginated listing result.
type Page[T any] struct {
	Items  []T
	Total  int
	Cursor string // opaque, empty when there is no next page
}
