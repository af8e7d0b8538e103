package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLexical is a tsvector-backed LexicalIndex, grounded on the
// teacher's NewPostgresSearch (generated tsvector column + GIN index,
// plainto_tsquery ranking).
type PostgresLexical struct {
	pool *pgxpool.Pool
}

// NewPostgresLexical bootstraps the index_segments table (best-effort DDL,
// same idiom as the teacher's constructors) and returns a PostgresLexical
// bound to pool.
func NewPostgresLexical(pool *pgxpool.Pool) *PostgresLexical {
	l := &PostgresLexical{pool: pool}
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS index_segments (
  segment_id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL,
  content TEXT NOT NULL,
  source_type TEXT NOT NULL DEFAULT '',
  source_id TEXT NOT NULL DEFAULT '',
  project TEXT NOT NULL DEFAULT '',
  owner TEXT NOT NULL DEFAULT '',
  tags TEXT[] NOT NULL DEFAULT '{}',
  updated_at TIMESTAMPTZ NOT NULL,
  ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(content,''))) STORED
)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS index_segments_ts_idx ON index_segments USING GIN (ts)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS index_segments_document_idx ON index_segments(document_id)`)
	return l
}

func (l *PostgresLexical) EnsureIndex(_ context.Context) error { return nil }

func (l *PostgresLexical) BulkUpsert(ctx context.Context, segments []IndexedSegment) (int, error) {
	for _, s := range segments {
		updatedAt, err := parseRFC3339(s.UpdatedAt)
		if err != nil {
			return 0, err
		}
		_, err = l.pool.Exec(ctx, `
INSERT INTO index_segments (segment_id, document_id, content, source_type, source_id, project, owner, tags, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (segment_id) DO UPDATE SET
	content=EXCLUDED.content, source_type=EXCLUDED.source_type, source_id=EXCLUDED.source_id,
	project=EXCLUDED.project, owner=EXCLUDED.owner, tags=EXCLUDED.tags, updated_at=EXCLUDED.updated_at
`, s.SegmentID, s.DocumentID, s.Content, s.SourceType, s.SourceID, s.Project, s.Owner, s.Tags, updatedAt)
		if err != nil {
			return 0, err
		}
	}
	return len(segments), nil
}

func (l *PostgresLexical) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	ct, err := l.pool.Exec(ctx, `DELETE FROM index_segments WHERE document_id=$1`, documentID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (l *PostgresLexical) SearchText(ctx context.Context, query string, filter Filter, k int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	where, args := buildFilterSQL(filter, 2)
	sql := fmt.Sprintf(`
SELECT segment_id, ts_rank(ts, plainto_tsquery('simple',$1)) AS score, source_type, source_id, project, owner, document_id
FROM index_segments
WHERE ts @@ plainto_tsquery('simple',$1) %s
ORDER BY score DESC
LIMIT %d
`, where, k)
	rows, err := l.pool.Query(ctx, sql, append([]any{q}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		var r Result
		var sourceType, sourceID, project, owner, documentID string
		if err := rows.Scan(&r.SegmentID, &r.Score, &sourceType, &sourceID, &project, &owner, &documentID); err != nil {
			return nil, err
		}
		r.Metadata = map[string]string{"source_type": sourceType, "source_id": sourceID, "project": project, "owner": owner, "document_id": documentID}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PostgresVector is a pgvector-backed VectorIndex, grounded on the teacher's
// pgVector (cosine distance operator, vector literal rendering).
type PostgresVector struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPostgresVector bootstraps the index_vectors table sized to dimensions.
func NewPostgresVector(pool *pgxpool.Pool, dimensions int) *PostgresVector {
	v := &PostgresVector{pool: pool, dimensions: dimensions}
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	_, _ = pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS index_vectors (
  segment_id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL,
  vec %s,
  source_type TEXT NOT NULL DEFAULT '',
  source_id TEXT NOT NULL DEFAULT '',
  project TEXT NOT NULL DEFAULT '',
  owner TEXT NOT NULL DEFAULT '',
  tags TEXT[] NOT NULL DEFAULT '{}',
  updated_at TIMESTAMPTZ NOT NULL
)`, vecType))
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS index_vectors_document_idx ON index_vectors(document_id)`)
	return v
}

func (v *PostgresVector) EnsureIndex(_ context.Context, dimensions int) error {
	v.dimensions = dimensions
	return nil
}

func (v *PostgresVector) BulkUpsert(ctx context.Context, segments []IndexedSegment) (int, error) {
	for _, s := range segments {
		updatedAt, err := parseRFC3339(s.UpdatedAt)
		if err != nil {
			return 0, err
		}
		_, err = v.pool.Exec(ctx, `
INSERT INTO index_vectors (segment_id, document_id, vec, source_type, source_id, project, owner, tags, updated_at)
VALUES ($1,$2,$3::vector,$4,$5,$6,$7,$8,$9)
ON CONFLICT (segment_id) DO UPDATE SET
	vec=EXCLUDED.vec, source_type=EXCLUDED.source_type, source_id=EXCLUDED.source_id,
	project=EXCLUDED.project, owner=EXCLUDED.owner, tags=EXCLUDED.tags, updated_at=EXCLUDED.updated_at
`, s.SegmentID, s.DocumentID, toVectorLiteral(s.Embedding), s.SourceType, s.SourceID, s.Project, s.Owner, s.Tags, updatedAt)
		if err != nil {
			return 0, err
		}
	}
	return len(segments), nil
}

func (v *PostgresVector) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	ct, err := v.pool.Exec(ctx, `DELETE FROM index_vectors WHERE document_id=$1`, documentID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (v *PostgresVector) SearchVector(ctx context.Context, vector []float32, filter Filter, k, _ int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	where, args := buildFilterSQL(filter, 3)
	sql := fmt.Sprintf(`
SELECT segment_id, 1 - (vec <=> $1::vector) AS score, source_type, source_id, project, owner, document_id
FROM index_vectors
WHERE TRUE %s
ORDER BY vec <=> $1::vector
LIMIT $2
`, where)
	rows, err := v.pool.Query(ctx, sql, append([]any{toVectorLiteral(vector), k}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		var r Result
		var sourceType, sourceID, project, owner, documentID string
		if err := rows.Scan(&r.SegmentID, &r.Score, &sourceType, &sourceID, &project, &owner, &documentID); err != nil {
			return nil, err
		}
		r.Metadata = map[string]string{"source_type": sourceType, "source_id": sourceID, "project": project, "owner": owner, "document_id": documentID}
		out = append(out, r)
	}
	return out, rows.Err()
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}

func parseRFC3339(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

// buildFilterSQL renders Filter as a "AND ..." clause starting at parameter
// index argStart, returning the clause and the positional args to append.
func buildFilterSQL(f Filter, argStart int) (string, []any) {
	var clauses []string
	var args []any
	n := argStart
	add := func(col, val string) {
		clauses = append(clauses, fmt.Sprintf("%s=$%d", col, n))
		args = append(args, val)
		n++
	}
	if f.SourceType != "" {
		add("source_type", f.SourceType)
	}
	if f.SourceID != "" {
		add("source_id", f.SourceID)
	}
	if f.Project != "" {
		add("project", f.Project)
	}
	if f.Owner != "" {
		add("owner", f.Owner)
	}
	if len(f.Tags) > 0 {
		clauses = append(clauses, fmt.Sprintf("tags @> $%d", n))
		args = append(args, f.Tags)
		n++
	}
	if f.UpdatedAfter != nil {
		clauses = append(clauses, fmt.Sprintf("updated_at >= $%d", n))
		args = append(args, *f.UpdatedAfter)
		n++
	}
	if f.UpdatedBefore != nil {
		clauses = append(clauses, fmt.Sprintf("updated_at < $%d", n))
		args = append(args, *f.UpdatedBefore)
		n++
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "AND " + strings.Join(clauses, " AND "), args
}

var _ LexicalIndex = (*PostgresLexical)(nil)
var _ VectorIndex = (*PostgresVector)(nil)
