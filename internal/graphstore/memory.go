package graphstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process GraphStore, grounded on the teacher's memoryGraph
// (mutex-guarded map, linear scan for search), extended with episode
// tracking and edge invalidation timestamps since the teacher's edges carry
// no temporal dimension.
type Memory struct {
	mu sync.Mutex

	entities map[string]Entity
	edges    []*Edge
	episodes map[string][]string // episodeID -> edge ids it produced (for removal)
	edgeByID map[string]*Edge
}

// NewMemory constructs an empty Memory graph store.
func NewMemory() *Memory {
	return &Memory{
		entities: make(map[string]Entity),
		episodes: make(map[string][]string),
		edgeByID: make(map[string]*Edge),
	}
}

func (m *Memory) AddEpisode(_ context.Context, chunkID, text string, referenceTime time.Time, groupID string, entityTypes []string) (AddEpisodeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	episodeID := uuid.NewString()
	names := extractEntities(text)

	var entities []Entity
	for _, name := range names {
		e, ok := m.entities[name]
		if !ok {
			e = Entity{Name: name, Types: entityTypes, Props: map[string]any{}}
		}
		m.entities[name] = e
		entities = append(entities, e)
	}

	newEdges := buildEdges(names, episodeID, truncate(text, 280), referenceTime)
	var ids []string
	for i := range newEdges {
		newEdges[i].ID = uuid.NewString()
		m.edges = append(m.edges, &newEdges[i])
		m.edgeByID[newEdges[i].ID] = &newEdges[i]
		ids = append(ids, newEdges[i].ID)
	}
	m.episodes[episodeID] = ids

	out := make([]Edge, len(newEdges))
	copy(out, newEdges)
	return AddEpisodeResult{EpisodeID: episodeID, Entities: entities, Edges: out}, nil
}

// RemoveEpisode closes every edge the episode produced (sets invalid_at) per
// spec §4.7 rather than deleting rows, preserving history.
func (m *Memory) RemoveEpisode(_ context.Context, episodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, ok := m.episodes[episodeID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	for _, id := range ids {
		if e, ok := m.edgeByID[id]; ok && e.InvalidAt == nil {
			e.InvalidAt = &now
		}
	}
	return nil
}

func (m *Memory) Search(_ context.Context, query string, k int) ([]Edge, error) {
	if k <= 0 {
		k = 10
	}
	q := strings.ToLower(strings.TrimSpace(query))

	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []Edge
	for _, e := range m.edges {
		if e.InvalidAt != nil {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(e.Fact), q) ||
			strings.Contains(strings.ToLower(e.SourceEntity), q) ||
			strings.Contains(strings.ToLower(e.TargetEntity), q) {
			matches = append(matches, *e)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ValidAt.After(matches[j].ValidAt) })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *Memory) Neighborhood(_ context.Context, entityName string, hops int) ([]Entity, error) {
	if hops <= 0 {
		hops = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	frontier := map[string]bool{entityName: true}
	visited := map[string]bool{}
	for h := 0; h < hops; h++ {
		next := map[string]bool{}
		for name := range frontier {
			for _, e := range m.edges {
				if e.InvalidAt != nil {
					continue
				}
				if e.SourceEntity == name && !visited[e.TargetEntity] {
					next[e.TargetEntity] = true
				}
				if e.TargetEntity == name && !visited[e.SourceEntity] {
					next[e.SourceEntity] = true
				}
			}
			visited[name] = true
		}
		frontier = next
	}
	for name := range frontier {
		visited[name] = true
	}

	var out []Entity
	names := make([]string, 0, len(visited))
	for name := range visited {
		if name == entityName {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if e, ok := m.entities[name]; ok {
			out = append(out, e)
		} else {
			out = append(out, Entity{Name: name})
		}
	}
	return out, nil
}

func (m *Memory) EntityHistory(_ context.Context, entityName string, since, asOf *time.Time) ([]Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Edge
	for _, e := range m.edges {
		if e.SourceEntity != entityName && e.TargetEntity != entityName {
			continue
		}
		if since != nil && e.ValidAt.Before(*since) {
			continue
		}
		if asOf != nil {
			if e.ValidAt.After(*asOf) {
				continue
			}
			if e.InvalidAt != nil && !e.InvalidAt.After(*asOf) {
				continue
			}
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidAt.Before(out[j].ValidAt) })
	return out, nil
}

var _ GraphStore = (*Memory)(nil)
