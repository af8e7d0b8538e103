// Package sqlsandbox implements the ad-hoc analytical query engine spec
// §4.15: tabular files (CSV, JSON) registered at startup from a configured
// directory become read-only tables an agent tool can SELECT against.
// Grounded on the teacher's use of an embeddable, pure-Go SQL engine
// (vasic-digital-SuperAgent go.mod's modernc.org/sqlite) rather than
// shelling out to a system sqlite3 or standing up a real warehouse. Each
// Sandbox holds one in-memory engine, created by New and used for every
// query run against that Sandbox; the engine is not recreated per query.
package sqlsandbox

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// forbiddenKeywords is the pre-parse write/DDL/escape-hatch guard spec
// §4.15 names verbatim. Matched case-insensitively on word boundaries so
// "SELECT" isn't rejected for containing "sel" and a column literally named
// "created" isn't rejected for containing "create".
var forbiddenKeywords = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE|EXEC|EXECUTE|COPY|ATTACH|DETACH|PRAGMA|INSTALL|LOAD|SET)\b`)

// Sandbox is one registered set of tables plus the engine holding them.
// Every Sandbox is backed by its own private in-memory SQLite database —
// nothing is shared across sandboxes or persisted to disk, which is also
// what satisfies spec §4.15's "filesystem access disabled once tables are
// materialized": the engine never had a file to reach in the first place.
type Sandbox struct {
	db      *sql.DB
	tables  []string
	maxRows int
}

// New loads every .csv and .json file directly under dataDir as a table and
// returns a ready-to-query Sandbox. An empty dataDir yields a Sandbox with
// no tables (list_tables returns an empty list; any query fails at the
// database layer with "no such table").
func New(dataDir string, maxRows int) (*Sandbox, error) {
	if maxRows <= 0 {
		maxRows = 1000
	}
	// A uniquely named shared-cache in-memory database keeps the single
	// *sql.DB's pooled connections pointed at the same database while keeping
	// it private to this Sandbox; a bare ":memory:" DSN would hand each pooled
	// connection its own empty database.
	db, err := sql.Open("sqlite", "file:sqlsandbox-"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("sqlsandbox: open engine: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Sandbox{db: db, maxRows: maxRows}
	if dataDir != "" {
		if err := s.loadDir(dataDir); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	sort.Strings(s.tables)
	return s, nil
}

// Close releases the underlying engine. Since the database lives only in
// memory, closing it discards every registered table.
func (s *Sandbox) Close() error {
	return s.db.Close()
}

// Tables lists every table name registered at construction, sorted for
// stable list_tables output.
func (s *Sandbox) Tables() []string {
	out := make([]string, len(s.tables))
	copy(out, s.tables)
	return out
}

// Run validates and executes one user query, implementing spec §4.15's
// guard-then-wrap contract and testable property §8 "SQL guard". Every
// rejection or execution failure is returned as err, which the agent's
// query_database tool (internal/agent/tools.go) renders as a textual
// result rather than propagating, per spec §7's "agent loop converts any
// tool failure into a textual tool result" policy; other callers can use
// err to tell a guard rejection from a successful empty result.
func (s *Sandbox) Run(ctx context.Context, query string) (columns []string, rows [][]any, truncated bool, err error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil, false, fmt.Errorf("query is required")
	}
	if err := guardMultiStatement(trimmed); err != nil {
		return nil, nil, false, err
	}
	if m := forbiddenKeywords.FindString(trimmed); m != "" {
		return nil, nil, false, fmt.Errorf("Only SELECT queries are allowed. Found forbidden keyword %q", strings.ToUpper(m))
	}

	wrapped := fmt.Sprintf("SELECT * FROM (%s) LIMIT %d", trimmed, s.maxRows+1)
	result, err := s.db.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, nil, false, fmt.Errorf("query failed: %w", err)
	}
	defer result.Close()

	columns, err = result.Columns()
	if err != nil {
		return nil, nil, false, fmt.Errorf("query failed: %w", err)
	}

	for result.Next() {
		scanned := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		if err := result.Scan(ptrs...); err != nil {
			return nil, nil, false, fmt.Errorf("query failed: %w", err)
		}
		rows = append(rows, scanned)
	}
	if err := result.Err(); err != nil {
		return nil, nil, false, fmt.Errorf("query failed: %w", err)
	}

	if len(rows) > s.maxRows {
		rows = rows[:s.maxRows]
		truncated = true
	}
	return columns, rows, truncated, nil
}

// guardMultiStatement rejects any semicolon that is not purely trailing
// whitespace, per spec §4.15's "non-trailing semicolon" rule.
func guardMultiStatement(query string) error {
	idx := strings.IndexByte(query, ';')
	if idx == -1 {
		return nil
	}
	if strings.TrimSpace(query[idx+1:]) != "" {
		return fmt.Errorf("Multi-statement queries are not allowed.")
	}
	if strings.Contains(strings.TrimSpace(query[:idx]), ";") {
		return fmt.Errorf("Multi-statement queries are not allowed.")
	}
	return nil
}

// tableNameFromFilename derives a table name per spec §4.15: lowercase,
// non-alphanumeric runs collapsed to a single underscore, leading/trailing
// underscores trimmed.
func tableNameFromFilename(name string) string {
	base := name
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
