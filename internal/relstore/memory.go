package relstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process RelStore backing tests and the single-node/no-db
// deployment profile, grounded on the teacher's internal/persistence/databases
// memory_* stores (a mutex-guarded map of slices, sequential scan for list
// operations). A single mutex makes each call atomic on its own; it does not
// make UpsertDocument, ReplaceSegments and LogSync atomic together.
type Memory struct {
	mu sync.Mutex

	documents    map[string]*Document
	bySource     map[string]string // sourceType|sourceID -> document id
	segments     map[string][]Segment
	syncLogs     map[string][]SyncLog
	tasks        map[string]*IngestionTask
	taskOrder    []string
	roles        map[string][]RoleAssignment // userID -> assignments
	users        map[string]*User
	entities     map[string][]ExtractedEntity // segmentID -> entities
	docOrder     []string
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		documents: make(map[string]*Document),
		bySource:  make(map[string]string),
		segments:  make(map[string][]Segment),
		syncLogs:  make(map[string][]SyncLog),
		tasks:     make(map[string]*IngestionTask),
		roles:     make(map[string][]RoleAssignment),
		users:     make(map[string]*User),
		entities:  make(map[string][]ExtractedEntity),
	}
}

func sourceKey(sourceType, sourceID string) string { return sourceType + "|" + sourceID }

func (m *Memory) UpsertDocument(_ context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := sourceKey(doc.SourceType, doc.SourceID)
	if id, ok := m.bySource[key]; ok {
		existing := m.documents[id]
		existing.Title = doc.Title
		existing.SourceURL = doc.SourceURL
		existing.Owner = doc.Owner
		existing.ProjectID = doc.ProjectID
		existing.ContentHash = doc.ContentHash
		existing.Status = DocumentActive
		existing.LastSyncedAt = now
		existing.UpdatedAt = now
		return *existing, nil
	}

	doc.ID = uuid.NewString()
	doc.Status = DocumentActive
	doc.LastSyncedAt = now
	doc.CreatedAt = now
	doc.UpdatedAt = now
	m.documents[doc.ID] = &doc
	m.bySource[key] = doc.ID
	m.docOrder = append(m.docOrder, doc.ID)
	return doc, nil
}

func (m *Memory) GetDocumentBySource(_ context.Context, sourceType, sourceID string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySource[sourceKey(sourceType, sourceID)]
	if !ok {
		return nil, nil
	}
	d := *m.documents[id]
	return &d, nil
}

func (m *Memory) GetDocument(_ context.Context, documentID string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[documentID]
	if !ok {
		return nil, errNotFound("document", documentID)
	}
	d := *doc
	return &d, nil
}

// ListDocuments orders by document id rather than creation time: sufficient
// for the single-node/test backend this store serves, since ordering only
// needs to be stable across successive calls with the same cursor, not tied
// to insertion order. The Postgres backend orders by (created_at, id).
func (m *Memory) ListDocuments(_ context.Context, projectID string, cursor string, limit int) (Page[Document], error) {
	if limit <= 0 {
		limit = 50
	}
	c, err := DecodeCursor(cursor)
	if err != nil {
		return Page[Document]{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := append([]string(nil), m.docOrder...)
	sort.Strings(ids)

	var filtered []*Document
	for _, id := range ids {
		d := m.documents[id]
		if projectID != "" && d.ProjectID != projectID {
			continue
		}
		filtered = append(filtered, d)
	}

	start := 0
	if c.ID != "" {
		for i, d := range filtered {
			if d.ID == c.ID {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	var page []Document
	for _, d := range filtered[start:end] {
		page = append(page, *d)
	}

	out := Page[Document]{Items: page, Total: len(filtered)}
	if end < len(filtered) {
		out.Cursor = EncodeCursor(Cursor{ID: page[len(page)-1].ID})
	}
	return out, nil
}

func (m *Memory) MarkGraphSynced(_ context.Context, documentID string, synced bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[documentID]
	if !ok {
		return errNotFound("document", documentID)
	}
	doc.GraphSynced = synced
	if !synced {
		doc.GraphSyncRetries++
	}
	return nil
}

func (m *Memory) ReplaceSegments(_ context.Context, documentID string, segments []Segment) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[documentID]; !ok {
		return 0, errNotFound("document", documentID)
	}
	now := time.Now().UTC()
	out := make([]Segment, len(segments))
	for i, s := range segments {
		s.DocumentID = documentID
		if s.ID == "" {
			s.ID = uuid.NewString()
			s.CreatedAt = now
		}
		s.UpdatedAt = now
		out[i] = s
	}
	m.segments[documentID] = out
	return len(out), nil
}

func (m *Memory) ListSegments(_ context.Context, documentID string) ([]Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	segs := m.segments[documentID]
	out := make([]Segment, len(segs))
	copy(out, segs)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *Memory) GetSegment(_ context.Context, segmentID string) (*Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, segs := range m.segments {
		for _, s := range segs {
			if s.ID == segmentID {
				cp := s
				return &cp, nil
			}
		}
	}
	return nil, errNotFound("segment", segmentID)
}

func (m *Memory) LogSync(_ context.Context, documentID string, action SyncAction, segmentsAffected int, details map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncLogs[documentID] = append(m.syncLogs[documentID], SyncLog{
		ID:               uuid.NewString(),
		DocumentID:       documentID,
		Action:           action,
		SegmentsAffected: segmentsAffected,
		Details:          details,
		CreatedAt:        time.Now().UTC(),
	})
	return nil
}

func (m *Memory) ListSyncLogs(_ context.Context, documentID string) ([]SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]SyncLog(nil), m.syncLogs[documentID]...)
	return out, nil
}

func (m *Memory) RecentSyncLogs(_ context.Context, titleMatch string, limit int) ([]SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	titleMatch = strings.ToLower(strings.TrimSpace(titleMatch))

	var all []SyncLog
	for docID, logs := range m.syncLogs {
		if titleMatch != "" {
			doc := m.documents[docID]
			if doc == nil || !strings.Contains(strings.ToLower(doc.Title), titleMatch) {
				continue
			}
		}
		all = append(all, logs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *Memory) CreateTask(_ context.Context, task IngestionTask) (IngestionTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.ID = uuid.NewString()
	if task.Status == "" {
		task.Status = TaskPending
	}
	task.CreatedAt = time.Now().UTC()
	m.tasks[task.ID] = &task
	m.taskOrder = append(m.taskOrder, task.ID)
	return task, nil
}

func (m *Memory) UpdateTaskStatus(_ context.Context, taskID string, status TaskStatus, fn func(*IngestionTask)) (IngestionTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return IngestionTask{}, errNotFound("task", taskID)
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
		fn(task)
	}
	return *task, nil
}

func (m *Memory) GetTask(_ context.Context, taskID string) (*IngestionTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, errNotFound("task", taskID)
	}
	t := *task
	return &t, nil
}

func (m *Memory) ListTasks(_ context.Context, cursor string, limit int) (Page[IngestionTask], error) {
	if limit <= 0 {
		limit = 50
	}
	c, err := DecodeCursor(cursor)
	if err != nil {
		return Page[IngestionTask]{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := append([]string(nil), m.taskOrder...)
	start := 0
	if c.ID != "" {
		for i, id := range ids {
			if id == c.ID {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}
	var page []IngestionTask
	for _, id := range ids[start:end] {
		page = append(page, *m.tasks[id])
	}
	out := Page[IngestionTask]{Items: page, Total: len(ids)}
	if end < len(ids) {
		out.Cursor = EncodeCursor(Cursor{ID: page[len(page)-1].ID})
	}
	return out, nil
}

func (m *Memory) GetRoles(_ context.Context, userID string) ([]RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RoleAssignment(nil), m.roles[userID]...), nil
}

func (m *Memory) AssignRole(_ context.Context, userID, projectID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignments := m.roles[userID]
	for i, a := range assignments {
		if a.ProjectID == projectID {
			assignments[i].Role = role
			return nil
		}
	}
	m.roles[userID] = append(assignments, RoleAssignment{UserID: userID, ProjectID: projectID, Role: role})
	if _, ok := m.users[userID]; !ok {
		m.users[userID] = &User{ID: userID, Active: true}
	}
	return nil
}

func (m *Memory) RevokeRole(_ context.Context, userID, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignments := m.roles[userID]
	for i, a := range assignments {
		if a.ProjectID == projectID {
			m.roles[userID] = append(assignments[:i], assignments[i+1:]...)
			return nil
		}
	}
	return errNotFound("role assignment", userID+"/"+projectID)
}

func (m *Memory) DeactivateUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return errNotFound("user", userID)
	}
	u.Active = false
	return nil
}

func (m *Memory) GetUser(_ context.Context, userID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, errNotFound("user", userID)
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) ListUsers(_ context.Context, cursor string, limit int) (Page[User], error) {
	if limit <= 0 {
		limit = 50
	}
	c, err := DecodeCursor(cursor)
	if err != nil {
		return Page[User]{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if c.ID != "" {
		for i, id := range ids {
			if id == c.ID {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}
	page := make([]User, 0, end-start)
	for _, id := range ids[start:end] {
		page = append(page, *m.users[id])
	}

	out := Page[User]{Items: page, Total: len(ids)}
	if end < len(ids) {
		out.Cursor = EncodeCursor(Cursor{ID: page[len(page)-1].ID})
	}
	return out, nil
}

func (m *Memory) UpsertEntities(_ context.Context, segmentID string, entities []ExtractedEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	out := make([]ExtractedEntity, len(entities))
	for i, e := range entities {
		e.SourceSegmentID = segmentID
		if e.ID == "" {
			e.ID = uuid.NewString()
			e.CreatedAt = now
		}
		out[i] = e
	}
	m.entities[segmentID] = out
	return nil
}

func (m *Memory) ListEntitiesBySegment(_ context.Context, segmentID string) ([]ExtractedEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExtractedEntity(nil), m.entities[segmentID]...), nil
}

func (m *Memory) SearchEntities(_ context.Context, entityType EntityType, searchTerm string, limit int) ([]ExtractedEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(strings.TrimSpace(searchTerm))

	var out []ExtractedEntity
	for _, entities := range m.entities {
		for _, e := range entities {
			if entityType != "" && e.EntityType != entityType {
				continue
			}
			if needle != "" {
				blob, _ := json.Marshal(e.EntityData)
				if !strings.Contains(strings.ToLower(string(blob)), needle) {
					continue
				}
			}
			out = append(out, e)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (m *Memory) Stats(_ context.Context, projectID string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{BySourceType: make(map[string]int)}
	var lastSynced time.Time
	for _, d := range m.documents {
		if projectID != "" && d.ProjectID != projectID {
			continue
		}
		st.TotalDocuments++
		st.BySourceType[d.SourceType]++
		if d.LastSyncedAt.After(lastSynced) {
			lastSynced = d.LastSyncedAt
		}
		st.TotalSegments += len(m.segments[d.ID])
	}
	if !lastSynced.IsZero() {
		s := lastSynced.Format(time.RFC3339)
		st.LastIngestedAt = &s
	}
	return st, nil
}
