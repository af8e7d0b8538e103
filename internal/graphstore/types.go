// Package graphstore implements the optional temporal knowledge graph per
// spec §4.7: entities mined from segments, connected by edges that carry
// (valid_at, invalid_at) so invalidating an edge closes it rather than
// deleting it. Grounded on the teacher's internal/persistence/databases
// GraphDB (node/edge property-graph shape), generalized from the teacher's
// timeless (src,rel,dst) edges to this spec's episode-scoped, bi-temporal
// edges.
package graphstore

import "time"

// Entity is a named node mined from one or more episodes.
type Entity struct {
	Name  string
	Types []string
	Props map[string]any
}

// Edge is a bi-temporal relation between two entities, scoped to the episode
// that produced it.
type Edge struct {
	ID           string
	SourceEntity string
	Relation     string
	TargetEntity string
	Fact         string
	EpisodeID    string
	ValidAt      time.Time
	InvalidAt    *time.Time // nil while the edge is open
}

// Episode is one chunk's worth of mined graph content.
type Episode struct {
	ID            string
	ChunkID       string
	Text          string
	ReferenceTime time.Time
	GroupID       string
	EntityTypes   []string
}

// AddEpisodeResult is what add_episode returns.
type AddEpisodeResult struct {
	EpisodeID string
	Entities  []Entity
	Edges     []Edge
}
