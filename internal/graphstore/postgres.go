package graphstore

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a pgx-backed GraphStore. Grounded on the teacher's pgGraph
// (internal/persistence/databases/postgres_graph.go), replacing its
// timeless (source, rel, target) edges table with a bi-temporal one that
// records each edge's episode_id, indexed so RemoveEpisode can close every
// edge an episode produced with one UPDATE.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres bootstraps tables (best-effort DDL, same idiom as the
// teacher's NewPostgresGraph) and wraps pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	p := &Postgres{pool: pool}
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS graph_entities (
  name TEXT PRIMARY KEY,
  types TEXT[] NOT NULL DEFAULT '{}',
  props JSONB NOT NULL DEFAULT '{}'::jsonb
)`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS graph_edges (
  id TEXT PRIMARY KEY,
  source_entity TEXT NOT NULL,
  relation TEXT NOT NULL,
  target_entity TEXT NOT NULL,
  fact TEXT NOT NULL DEFAULT '',
  episode_id TEXT NOT NULL,
  valid_at TIMESTAMPTZ NOT NULL,
  invalid_at TIMESTAMPTZ
)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS graph_edges_episode_idx ON graph_edges(episode_id)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS graph_edges_source_idx ON graph_edges(source_entity)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS graph_edges_target_idx ON graph_edges(target_entity)`)
	return p
}

func (p *Postgres) AddEpisode(ctx context.Context, chunkID, text string, referenceTime time.Time, groupID string, entityTypes []string) (AddEpisodeResult, error) {
	episodeID := uuid.NewString()
	names := extractEntities(text)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return AddEpisodeResult{}, err
	}
	defer tx.Rollback(ctx)

	var entities []Entity
	for _, name := range names {
		if _, err := tx.Exec(ctx, `
INSERT INTO graph_entities (name, types, props) VALUES ($1,$2,'{}'::jsonb)
ON CONFLICT (name) DO NOTHING
`, name, entityTypes); err != nil {
			return AddEpisodeResult{}, err
		}
		entities = append(entities, Entity{Name: name, Types: entityTypes, Props: map[string]any{}})
	}

	newEdges := buildEdges(names, episodeID, truncate(text, 280), referenceTime)
	for i := range newEdges {
		newEdges[i].ID = uuid.NewString()
		if _, err := tx.Exec(ctx, `
INSERT INTO graph_edges (id, source_entity, relation, target_entity, fact, episode_id, valid_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, newEdges[i].ID, newEdges[i].SourceEntity, newEdges[i].Relation, newEdges[i].TargetEntity,
			newEdges[i].Fact, episodeID, newEdges[i].ValidAt); err != nil {
			return AddEpisodeResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return AddEpisodeResult{}, err
	}
	return AddEpisodeResult{EpisodeID: episodeID, Entities: entities, Edges: newEdges}, nil
}

func (p *Postgres) RemoveEpisode(ctx context.Context, episodeID string) error {
	_, err := p.pool.Exec(ctx, `
UPDATE graph_edges SET invalid_at=$1 WHERE episode_id=$2 AND invalid_at IS NULL
`, time.Now().UTC(), episodeID)
	return err
}

func (p *Postgres) Search(ctx context.Context, query string, k int) ([]Edge, error) {
	if k <= 0 {
		k = 10
	}
	q := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := p.pool.Query(ctx, `
SELECT id, source_entity, relation, target_entity, fact, episode_id, valid_at, invalid_at
FROM graph_edges
WHERE invalid_at IS NULL AND (lower(fact) LIKE $1 OR lower(source_entity) LIKE $1 OR lower(target_entity) LIKE $1)
ORDER BY valid_at DESC
LIMIT $2
`, q, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

func scanEdges(rows pgx.Rows) ([]Edge, error) {
	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.SourceEntity, &e.Relation, &e.TargetEntity, &e.Fact, &e.EpisodeID, &e.ValidAt, &e.InvalidAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Neighborhood(ctx context.Context, entityName string, hops int) ([]Entity, error) {
	if hops <= 0 {
		hops = 1
	}
	frontier := []string{entityName}
	visited := map[string]bool{}

	for h := 0; h < hops; h++ {
		if len(frontier) == 0 {
			break
		}
		rows, err := p.pool.Query(ctx, `
SELECT DISTINCT target_entity FROM graph_edges WHERE invalid_at IS NULL AND source_entity = ANY($1)
UNION
SELECT DISTINCT source_entity FROM graph_edges WHERE invalid_at IS NULL AND target_entity = ANY($1)
`, frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, err
			}
			if !visited[name] && name != entityName {
				next = append(next, name)
			}
		}
		rows.Close()
		for _, n := range frontier {
			visited[n] = true
		}
		frontier = next
	}
	for _, n := range frontier {
		visited[n] = true
	}

	var out []Entity
	for name := range visited {
		if name == entityName {
			continue
		}
		row := p.pool.QueryRow(ctx, `SELECT types, props FROM graph_entities WHERE name=$1`, name)
		var e Entity
		e.Name = name
		if err := row.Scan(&e.Types, &e.Props); err != nil {
			e = Entity{Name: name}
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *Postgres) EntityHistory(ctx context.Context, entityName string, since, asOf *time.Time) ([]Edge, error) {
	sinceVal := time.Time{}
	if since != nil {
		sinceVal = *since
	}
	asOfVal := time.Now().UTC().AddDate(100, 0, 0)
	if asOf != nil {
		asOfVal = *asOf
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, source_entity, relation, target_entity, fact, episode_id, valid_at, invalid_at
FROM graph_edges
WHERE (source_entity=$1 OR target_entity=$1)
  AND valid_at >= $2 AND valid_at <= $3
  AND (invalid_at IS NULL OR invalid_at > $3)
ORDER BY valid_at
`, entityName, sinceVal, asOfVal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

var _ GraphStore = (*Postgres)(nil)
