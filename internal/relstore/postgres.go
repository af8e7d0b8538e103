package relstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a pgx-backed RelStore. Bootstrap DDL is issued best-effort on
// construction, grounded on the teacher's NewPostgresSearch/NewPostgresVector
// constructors (CREATE TABLE IF NOT EXISTS issued inline, errors ignored
// since a non-superuser connection may lack CREATE privileges against an
// already-migrated schema).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. NewPostgresPool below is the usual
// entry point; this constructor is exposed for callers that already manage
// pool lifecycle (tests, the factory in cmd/server).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	p := &Postgres{pool: pool}
	p.bootstrap(context.Background())
	return p
}

// NewPostgresPool dials dsn with the conservative pool sizing the teacher's
// factory.newPgPool uses (MaxConns=8, MinConns=0, MaxConnLifetime=1h,
// MaxConnIdleTime=5m) and pings before returning.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (p *Postgres) bootstrap(ctx context.Context) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source_type TEXT NOT NULL,
			source_id TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			last_synced_at TIMESTAMPTZ NOT NULL,
			graph_synced BOOLEAN NOT NULL DEFAULT FALSE,
			graph_sync_retries INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE(source_type, source_id)
		)`,
		`CREATE INDEX IF NOT EXISTS documents_project_idx ON documents(project_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS segments (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			segment_type TEXT NOT NULL,
			section_path TEXT NOT NULL DEFAULT '',
			position INT NOT NULL,
			version INT NOT NULL DEFAULT 1,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS segments_document_idx ON segments(document_id, position)`,
		`CREATE TABLE IF NOT EXISTS sync_log (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			action TEXT NOT NULL,
			segments_affected INT NOT NULL DEFAULT 0,
			details JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sync_log_document_idx ON sync_log(document_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS ingestion_tasks (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			folder_path TEXT NOT NULL,
			total_documents INT NOT NULL DEFAULT 0,
			processed_documents INT NOT NULL DEFAULT 0,
			succeeded INT NOT NULL DEFAULT 0,
			skipped INT NOT NULL DEFAULT 0,
			failed INT NOT NULL DEFAULT 0,
			results JSONB NOT NULL DEFAULT '[]'::jsonb,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS role_assignments (
			user_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY(user_id, project_id)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS extracted_entities (
			id TEXT PRIMARY KEY,
			segment_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_data JSONB NOT NULL DEFAULT '{}'::jsonb,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			source_text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS extracted_entities_segment_idx ON extracted_entities(segment_id)`,
	}
	for _, s := range stmts {
		_, _ = p.pool.Exec(ctx, s)
	}
}

func (p *Postgres) UpsertDocument(ctx context.Context, doc Document) (Document, error) {
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	row := p.pool.QueryRow(ctx, `
INSERT INTO documents (id, source_type, source_id, source_url, title, owner, project_id, content_hash, status, last_synced_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'active',$9,$9,$9)
ON CONFLICT (source_type, source_id) DO UPDATE SET
	title=EXCLUDED.title, source_url=EXCLUDED.source_url, owner=EXCLUDED.owner,
	project_id=EXCLUDED.project_id, content_hash=EXCLUDED.content_hash,
	status='active', last_synced_at=EXCLUDED.last_synced_at, updated_at=EXCLUDED.updated_at
RETURNING id, source_type, source_id, source_url, title, owner, project_id, content_hash,
	status, last_synced_at, graph_synced, graph_sync_retries, created_at, updated_at
`, doc.ID, doc.SourceType, doc.SourceID, doc.SourceURL, doc.Title, doc.Owner, doc.ProjectID, doc.ContentHash, now)
	return scanDocument(row)
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.SourceType, &d.SourceID, &d.SourceURL, &d.Title, &d.Owner, &d.ProjectID,
		&d.ContentHash, &d.Status, &d.LastSyncedAt, &d.GraphSynced, &d.GraphSyncRetries, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Document{}, err
	}
	return d, nil
}

func (p *Postgres) GetDocumentBySource(ctx context.Context, sourceType, sourceID string) (*Document, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, source_type, source_id, source_url, title, owner, project_id, content_hash,
	status, last_synced_at, graph_synced, graph_sync_retries, created_at, updated_at
FROM documents WHERE source_type=$1 AND source_id=$2
`, sourceType, sourceID)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *Postgres) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, source_type, source_id, source_url, title, owner, project_id, content_hash,
	status, last_synced_at, graph_synced, graph_sync_retries, created_at, updated_at
FROM documents WHERE id=$1
`, documentID)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound("document", documentID)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *Postgres) ListDocuments(ctx context.Context, projectID string, cursor string, limit int) (Page[Document], error) {
	if limit <= 0 {
		limit = 50
	}
	c, err := DecodeCursor(cursor)
	if err != nil {
		return Page[Document]{}, err
	}

	var rows pgx.Rows
	if c.SortValue != "" {
		ts, err := time.Parse(time.RFC3339Nano, c.SortValue)
		if err != nil {
			return Page[Document]{}, err
		}
		rows, err = p.pool.Query(ctx, `
SELECT id, source_type, source_id, source_url, title, owner, project_id, content_hash,
	status, last_synced_at, graph_synced, graph_sync_retries, created_at, updated_at
FROM documents
WHERE ($1 = '' OR project_id=$1) AND (created_at, id) > ($2, $3)
ORDER BY created_at, id
LIMIT $4
`, projectID, ts, c.ID, limit+1)
		if err != nil {
			return Page[Document]{}, err
		}
	} else {
		rows, err = p.pool.Query(ctx, `
SELECT id, source_type, source_id, source_url, title, owner, project_id, content_hash,
	status, last_synced_at, graph_synced, graph_sync_retries, created_at, updated_at
FROM documents
WHERE ($1 = '' OR project_id=$1)
ORDER BY created_at, id
LIMIT $2
`, projectID, limit+1)
		if err != nil {
			return Page[Document]{}, err
		}
	}
	defer rows.Close()

	var items []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return Page[Document]{}, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return Page[Document]{}, err
	}

	out := Page[Document]{}
	if len(items) > limit {
		last := items[limit-1]
		out.Cursor = EncodeCursor(Cursor{ID: last.ID, SortValue: last.CreatedAt.Format(time.RFC3339Nano)})
		items = items[:limit]
	}
	out.Items = items
	return out, nil
}

func (p *Postgres) MarkGraphSynced(ctx context.Context, documentID string, synced bool) error {
	var tag string
	if synced {
		tag = `UPDATE documents SET graph_synced=TRUE WHERE id=$1`
	} else {
		tag = `UPDATE documents SET graph_synced=FALSE, graph_sync_retries=graph_sync_retries+1 WHERE id=$1`
	}
	ct, err := p.pool.Exec(ctx, tag, documentID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errNotFound("document", documentID)
	}
	return nil
}

// ReplaceSegments runs delete-then-insert inside a transaction, so a reader
// never observes a document with a partially replaced segment set.
func (p *Postgres) ReplaceSegments(ctx context.Context, documentID string, segments []Segment) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM segments WHERE document_id=$1`, documentID); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, s := range segments {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		md, _ := json.Marshal(s.Metadata)
		if _, err := tx.Exec(ctx, `
INSERT INTO segments (id, document_id, content, content_hash, segment_type, section_path, position, version, metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
`, s.ID, documentID, s.Content, s.ContentHash, string(s.SegmentType), s.SectionPath, s.Position, s.Version, md, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(segments), nil
}

func (p *Postgres) ListSegments(ctx context.Context, documentID string) ([]Segment, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, document_id, content, content_hash, segment_type, section_path, position, version, metadata, created_at, updated_at
FROM segments WHERE document_id=$1 ORDER BY position
`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSegments(rows)
}

func scanSegments(rows pgx.Rows) ([]Segment, error) {
	var out []Segment
	for rows.Next() {
		var s Segment
		var segType string
		var md []byte
		if err := rows.Scan(&s.ID, &s.DocumentID, &s.Content, &s.ContentHash, &segType, &s.SectionPath,
			&s.Position, &s.Version, &md, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.SegmentType = SegmentType(segType)
		_ = json.Unmarshal(md, &s.Metadata)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSegment(ctx context.Context, segmentID string) (*Segment, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, document_id, content, content_hash, segment_type, section_path, position, version, metadata, created_at, updated_at
FROM segments WHERE id=$1
`, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	segs, err := scanSegments(rows)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, errNotFound("segment", segmentID)
	}
	return &segs[0], nil
}

func (p *Postgres) LogSync(ctx context.Context, documentID string, action SyncAction, segmentsAffected int, details map[string]any) error {
	d, _ := json.Marshal(details)
	_, err := p.pool.Exec(ctx, `
INSERT INTO sync_log (id, document_id, action, segments_affected, details, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, uuid.NewString(), documentID, string(action), segmentsAffected, d, time.Now().UTC())
	return err
}

func (p *Postgres) ListSyncLogs(ctx context.Context, documentID string) ([]SyncLog, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, document_id, action, segments_affected, details, created_at
FROM sync_log WHERE document_id=$1 ORDER BY created_at
`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncLog
	for rows.Next() {
		var l SyncLog
		var action string
		var details []byte
		if err := rows.Scan(&l.ID, &l.DocumentID, &action, &l.SegmentsAffected, &details, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Action = SyncAction(action)
		_ = json.Unmarshal(details, &l.Details)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *Postgres) RecentSyncLogs(ctx context.Context, titleMatch string, limit int) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `
SELECT s.id, s.document_id, s.action, s.segments_affected, s.details, s.created_at
FROM sync_log s
JOIN documents d ON d.id = s.document_id
WHERE $1 = '' OR d.title ILIKE '%' || $1 || '%'
ORDER BY s.created_at DESC
LIMIT $2
`, titleMatch, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncLog
	for rows.Next() {
		var l SyncLog
		var action string
		var details []byte
		if err := rows.Scan(&l.ID, &l.DocumentID, &action, &l.SegmentsAffected, &details, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Action = SyncAction(action)
		_ = json.Unmarshal(details, &l.Details)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateTask(ctx context.Context, task IngestionTask) (IngestionTask, error) {
	task.ID = uuid.NewString()
	if task.Status == "" {
		task.Status = TaskPending
	}
	task.CreatedAt = time.Now().UTC()
	results, _ := json.Marshal(task.Results)
	_, err := p.pool.Exec(ctx, `
INSERT INTO ingestion_tasks (id, status, folder_path, total_documents, processed_documents, succeeded, skipped, failed, results, error, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, task.ID, string(task.Status), task.FolderPath, task.TotalDocuments, task.ProcessedDocuments,
		task.Succeeded, task.Skipped, task.Failed, results, task.Error, task.CreatedAt)
	if err != nil {
		return IngestionTask{}, err
	}
	return task, nil
}

// UpdateTaskStatus loads, mutates via fn, and writes the task back inside a
// transaction, matching the RelStore contract's read-modify-write semantics
// for task progress updates under concurrent document processing.
func (p *Postgres) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, fn func(*IngestionTask)) (IngestionTask, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return IngestionTask{}, err
	}
	defer tx.Rollback(ctx)

	task, err := scanTask(tx.QueryRow(ctx, taskSelectSQL+` WHERE id=$1 FOR UPDATE`, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return IngestionTask{}, errNotFound("task", taskID)
	}
	if err != nil {
		return IngestionTask{}, err
	}

	task.Status = status
	now := time.Now().UTC()
	switch status {
	case TaskRunning:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case TaskCompleted, TaskFailed:
		task.CompletedAt = &now
	}
	if fn != nil {
		fn(&task)
	}

	results, _ := json.Marshal(task.Results)
	_, err = tx.Exec(ctx, `
UPDATE ingestion_tasks SET status=$1, total_documents=$2, processed_documents=$3, succeeded=$4,
	skipped=$5, failed=$6, results=$7, error=$8, started_at=$9, completed_at=$10
WHERE id=$11
`, string(task.Status), task.TotalDocuments, task.ProcessedDocuments, task.Succeeded, task.Skipped,
		task.Failed, results, task.Error, task.StartedAt, task.CompletedAt, taskID)
	if err != nil {
		return IngestionTask{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return IngestionTask{}, err
	}
	return task, nil
}

const taskSelectSQL = `
SELECT id, status, folder_path, total_documents, processed_documents, succeeded, skipped, failed,
	results, error, created_at, started_at, completed_at
FROM ingestion_tasks`

func scanTask(row pgx.Row) (IngestionTask, error) {
	var t IngestionTask
	var status string
	var results []byte
	if err := row.Scan(&t.ID, &status, &t.FolderPath, &t.TotalDocuments, &t.ProcessedDocuments,
		&t.Succeeded, &t.Skipped, &t.Failed, &results, &t.Error, &t.CreatedAt, &t.StartedAt, &t.CompletedAt); err != nil {
		return IngestionTask{}, err
	}
	t.Status = TaskStatus(status)
	_ = json.Unmarshal(results, &t.Results)
	return t, nil
}

func (p *Postgres) GetTask(ctx context.Context, taskID string) (*IngestionTask, error) {
	t, err := scanTask(p.pool.QueryRow(ctx, taskSelectSQL+` WHERE id=$1`, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound("task", taskID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *Postgres) ListTasks(ctx context.Context, cursor string, limit int) (Page[IngestionTask], error) {
	if limit <= 0 {
		limit = 50
	}
	c, err := DecodeCursor(cursor)
	if err != nil {
		return Page[IngestionTask]{}, err
	}

	var rows pgx.Rows
	if c.SortValue != "" {
		ts, perr := time.Parse(time.RFC3339Nano, c.SortValue)
		if perr != nil {
			return Page[IngestionTask]{}, perr
		}
		rows, err = p.pool.Query(ctx, taskSelectSQL+` WHERE (created_at, id) > ($1, $2) ORDER BY created_at, id LIMIT $3`, ts, c.ID, limit+1)
	} else {
		rows, err = p.pool.Query(ctx, taskSelectSQL+` ORDER BY created_at, id LIMIT $1`, limit+1)
	}
	if err != nil {
		return Page[IngestionTask]{}, err
	}
	defer rows.Close()

	var items []IngestionTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return Page[IngestionTask]{}, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return Page[IngestionTask]{}, err
	}

	out := Page[IngestionTask]{}
	if len(items) > limit {
		last := items[limit-1]
		out.Cursor = EncodeCursor(Cursor{ID: last.ID, SortValue: last.CreatedAt.Format(time.RFC3339Nano)})
		items = items[:limit]
	}
	out.Items = items
	return out, nil
}

func (p *Postgres) GetRoles(ctx context.Context, userID string) ([]RoleAssignment, error) {
	rows, err := p.pool.Query(ctx, `SELECT user_id, project_id, role FROM role_assignments WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleAssignment
	for rows.Next() {
		var r RoleAssignment
		var role string
		if err := rows.Scan(&r.UserID, &r.ProjectID, &role); err != nil {
			return nil, err
		}
		r.Role = Role(role)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) AssignRole(ctx context.Context, userID, projectID string, role Role) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO users (id, active) VALUES ($1, TRUE) ON CONFLICT (id) DO NOTHING
`, userID)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO role_assignments (user_id, project_id, role) VALUES ($1,$2,$3)
ON CONFLICT (user_id, project_id) DO UPDATE SET role=EXCLUDED.role
`, userID, projectID, string(role))
	return err
}

func (p *Postgres) RevokeRole(ctx context.Context, userID, projectID string) error {
	ct, err := p.pool.Exec(ctx, `DELETE FROM role_assignments WHERE user_id=$1 AND project_id=$2`, userID, projectID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errNotFound("role assignment", userID+"/"+projectID)
	}
	return nil
}

func (p *Postgres) DeactivateUser(ctx context.Context, userID string) error {
	ct, err := p.pool.Exec(ctx, `UPDATE users SET active=FALSE WHERE id=$1`, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errNotFound("user", userID)
	}
	return nil
}

func (p *Postgres) GetUser(ctx context.Context, userID string) (*User, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, email, name, active FROM users WHERE id=$1`, userID)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errNotFound("user", userID)
		}
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) ListUsers(ctx context.Context, cursor string, limit int) (Page[User], error) {
	if limit <= 0 {
		limit = 50
	}
	c, err := DecodeCursor(cursor)
	if err != nil {
		return Page[User]{}, err
	}

	rows, err := p.pool.Query(ctx, `
SELECT id, email, name, active FROM users
WHERE id > $1
ORDER BY id
LIMIT $2
`, c.ID, limit+1)
	if err != nil {
		return Page[User]{}, err
	}
	defer rows.Close()

	var items []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Active); err != nil {
			return Page[User]{}, err
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return Page[User]{}, err
	}

	out := Page[User]{}
	if len(items) > limit {
		out.Cursor = EncodeCursor(Cursor{ID: items[limit-1].ID})
		items = items[:limit]
	}
	out.Items = items
	return out, nil
}

func (p *Postgres) UpsertEntities(ctx context.Context, segmentID string, entities []ExtractedEntity) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM extracted_entities WHERE segment_id=$1`, segmentID); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, e := range entities {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		data, _ := json.Marshal(e.EntityData)
		if _, err := tx.Exec(ctx, `
INSERT INTO extracted_entities (id, segment_id, entity_type, entity_data, confidence, source_text, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, e.ID, segmentID, string(e.EntityType), data, e.Confidence, e.SourceText, now); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) ListEntitiesBySegment(ctx context.Context, segmentID string) ([]ExtractedEntity, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, segment_id, entity_type, entity_data, confidence, source_text, created_at
FROM extracted_entities WHERE segment_id=$1
`, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExtractedEntity
	for rows.Next() {
		var e ExtractedEntity
		var etype string
		var data []byte
		if err := rows.Scan(&e.ID, &e.SourceSegmentID, &etype, &data, &e.Confidence, &e.SourceText, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntityType = EntityType(etype)
		_ = json.Unmarshal(data, &e.EntityData)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) SearchEntities(ctx context.Context, entityType EntityType, searchTerm string, limit int) ([]ExtractedEntity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, segment_id, entity_type, entity_data, confidence, source_text, created_at
FROM extracted_entities
WHERE ($1 = '' OR entity_type = $1) AND ($2 = '' OR entity_data::text ILIKE '%' || $2 || '%')
ORDER BY created_at DESC
LIMIT $3
`, string(entityType), searchTerm, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExtractedEntity
	for rows.Next() {
		var e ExtractedEntity
		var etype string
		var data []byte
		if err := rows.Scan(&e.ID, &e.SourceSegmentID, &etype, &data, &e.Confidence, &e.SourceText, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntityType = EntityType(etype)
		_ = json.Unmarshal(data, &e.EntityData)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Stats(ctx context.Context, projectID string) (Stats, error) {
	st := Stats{BySourceType: make(map[string]int)}

	rows, err := p.pool.Query(ctx, `
SELECT source_type, count(*) FROM documents WHERE ($1 = '' OR project_id=$1) GROUP BY source_type
`, projectID)
	if err != nil {
		return Stats{}, err
	}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return Stats{}, err
		}
		st.BySourceType[t] = n
		st.TotalDocuments += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	row := p.pool.QueryRow(ctx, `
SELECT count(*) FROM segments s JOIN documents d ON d.id=s.document_id WHERE ($1 = '' OR d.project_id=$1)
`, projectID)
	if err := row.Scan(&st.TotalSegments); err != nil {
		return Stats{}, err
	}

	row = p.pool.QueryRow(ctx, `
SELECT max(last_synced_at) FROM documents WHERE ($1 = '' OR project_id=$1)
`, projectID)
	var last *time.Time
	if err := row.Scan(&last); err != nil {
		return Stats{}, err
	}
	if last != nil {
		s := last.Format(time.RFC3339)
		st.LastIngestedAt = &s
	}
	return st, nil
}

var _ RelStore = (*Postgres)(nil)
var _ RelStore = (*Memory)(nil)
