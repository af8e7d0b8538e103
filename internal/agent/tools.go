package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/manifold-labs/knowledgebase/internal/embedder"
	"github.com/manifold-labs/knowledgebase/internal/index"
	"github.com/manifold-labs/knowledgebase/internal/relstore"
	"github.com/manifold-labs/knowledgebase/internal/retrieve"
)

// SQLSandbox is the narrow surface query_database drives (spec §4.15); kept
// as an interface here so internal/agent does not import internal/sqlsandbox,
// mirroring the teacher's internal/tools package depending on interfaces
// rather than concrete engines for each tool's backing system.
type SQLSandbox interface {
	Run(ctx context.Context, sql string) (columns []string, rows [][]any, truncated bool, err error)
	Tables() []string
}

const defaultToolLimit = 5

// NewSearchKnowledgeTool builds the search_knowledge tool, spec §4.14.1.
func NewSearchKnowledgeTool(emb embedder.Embedder, retriever *retrieve.Retriever) Tool {
	return &searchKnowledgeTool{Embedder: emb, Retriever: retriever}
}

// NewGetDocumentContextTool builds the get_document_context tool, spec §4.14.1.
func NewGetDocumentContextTool(rel relstore.RelStore) Tool {
	return &getDocumentContextTool{Rel: rel}
}

// NewGetChangeHistoryTool builds the get_change_history tool, spec §4.14.1.
func NewGetChangeHistoryTool(rel relstore.RelStore) Tool {
	return &getChangeHistoryTool{Rel: rel}
}

// NewSearchEntitiesTool builds the search_entities tool, spec §4.14.1.
func NewSearchEntitiesTool(rel relstore.RelStore) Tool {
	return &searchEntitiesTool{Rel: rel}
}

// NewQueryDatabaseTool builds the query_database tool, spec §4.14.1, backed
// by a SQLSandbox (ordinarily *sqlsandbox.Sandbox).
func NewQueryDatabaseTool(sandbox SQLSandbox) Tool {
	return &queryDatabaseTool{Sandbox: sandbox}
}

// searchKnowledgeTool wires the hybrid retriever, spec §4.14.1's
// search_knowledge: embed the query, call §4.13, format results with inline
// source labels, one citation per result.
type searchKnowledgeTool struct {
	Embedder  embedder.Embedder
	Retriever *retrieve.Retriever
}

func (t *searchKnowledgeTool) Name() string        { return "search_knowledge" }
func (t *searchKnowledgeTool) Description() string {
	return "Search the knowledge base for segments relevant to a query."
}
func (t *searchKnowledgeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":       map[string]any{"type": "string"},
			"source_type": map[string]any{"type": "string"},
		},
		"required": []string{"query"},
	}
}

func (t *searchKnowledgeTool) Call(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args struct {
		Query      string `json:"query"`
		SourceType string `json:"source_type"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{Text: "invalid arguments: " + err.Error()}, nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return Result{Text: "query is required"}, nil
	}

	vecs, err := t.Embedder.EmbedBatch(ctx, []string{args.Query})
	if err != nil {
		return Result{}, err
	}
	filter := index.Filter{SourceType: args.SourceType}
	items, err := t.Retriever.Search(ctx, args.Query, vecs[0], defaultToolLimit, filter, map[string]string{"source_type": args.SourceType})
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{Text: "no results found"}, nil
	}

	var sb strings.Builder
	citations := make([]Citation, 0, len(items))
	for i, it := range items {
		label := it.DocumentTitle
		if it.SectionPath != "" {
			label += " > " + it.SectionPath
		}
		fmt.Fprintf(&sb, "[%d] (Source: %s)\n%s\n\n", i+1, label, it.Content)
		citations = append(citations, Citation{
			DocumentTitle: it.DocumentTitle,
			SourceID:      it.SourceID,
			SourceURL:     it.SourceURL,
			SectionPath:   it.SectionPath,
			SegmentID:     it.SegmentID,
		})
	}
	return Result{Text: strings.TrimSpace(sb.String()), Citations: citations}, nil
}

// getDocumentContextTool implements spec §4.14.1's get_document_context:
// fetch the whole document, concatenate segments ordered by position.
type getDocumentContextTool struct {
	Rel relstore.RelStore
}

func (t *getDocumentContextTool) Name() string { return "get_document_context" }
func (t *getDocumentContextTool) Description() string {
	return "Fetch the full content of one document by title or source id."
}
func (t *getDocumentContextTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"document_title": map[string]any{"type": "string"},
			"source_id":      map[string]any{"type": "string"},
		},
	}
}

func (t *getDocumentContextTool) Call(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args struct {
		DocumentTitle string `json:"document_title"`
		SourceID      string `json:"source_id"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{Text: "invalid arguments: " + err.Error()}, nil
	}
	if strings.TrimSpace(args.DocumentTitle) == "" && strings.TrimSpace(args.SourceID) == "" {
		return Result{Text: "document_title or source_id is required"}, nil
	}

	doc, err := findDocument(ctx, t.Rel, args.DocumentTitle, args.SourceID)
	if err != nil {
		return Result{}, err
	}
	if doc == nil {
		return Result{Text: "document not found"}, nil
	}

	segs, err := t.Rel.ListSegments(ctx, doc.ID)
	if err != nil {
		return Result{}, err
	}
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.Content)
		sb.WriteString("\n\n")
	}
	return Result{
		Text: strings.TrimSpace(sb.String()),
		Citations: []Citation{{
			DocumentTitle: doc.Title,
			SourceID:      doc.SourceID,
			SourceURL:     doc.SourceURL,
		}},
	}, nil
}

// getChangeHistoryTool implements spec §4.14.1's get_change_history: the
// latest N sync_log entries, optionally filtered to a title match.
type getChangeHistoryTool struct {
	Rel relstore.RelStore
}

func (t *getChangeHistoryTool) Name() string { return "get_change_history" }
func (t *getChangeHistoryTool) Description() string {
	return "List the most recent ingestion sync events, optionally for one document."
}
func (t *getChangeHistoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"document_title": map[string]any{"type": "string"},
			"limit":          map[string]any{"type": "integer"},
		},
	}
}

func (t *getChangeHistoryTool) Call(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args struct {
		DocumentTitle string `json:"document_title"`
		Limit         int    `json:"limit"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return Result{Text: "invalid arguments: " + err.Error()}, nil
		}
	}
	logs, err := t.Rel.RecentSyncLogs(ctx, args.DocumentTitle, args.Limit)
	if err != nil {
		return Result{}, err
	}
	if len(logs) == 0 {
		return Result{Text: "no sync history found"}, nil
	}
	var sb strings.Builder
	for _, l := range logs {
		fmt.Fprintf(&sb, "%s: %s (%d segments affected) at %s\n", l.DocumentID, l.Action, l.SegmentsAffected, l.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return Result{Text: strings.TrimSpace(sb.String())}, nil
}

// searchEntitiesTool implements spec §4.14.1's search_entities: match
// search_term against the extracted-entity JSON payload.
type searchEntitiesTool struct {
	Rel relstore.RelStore
}

func (t *searchEntitiesTool) Name() string { return "search_entities" }
func (t *searchEntitiesTool) Description() string {
	return "Search structured entities (metric definitions, event specs, KPI targets) extracted from the knowledge base."
}
func (t *searchEntitiesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entity_type": map[string]any{"type": "string"},
			"search_term": map[string]any{"type": "string"},
			"limit":       map[string]any{"type": "integer"},
		},
		"required": []string{"search_term"},
	}
}

func (t *searchEntitiesTool) Call(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args struct {
		EntityType string `json:"entity_type"`
		SearchTerm string `json:"search_term"`
		Limit      int    `json:"limit"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{Text: "invalid arguments: " + err.Error()}, nil
	}
	if strings.TrimSpace(args.SearchTerm) == "" {
		return Result{Text: "search_term is required"}, nil
	}
	entities, err := t.Rel.SearchEntities(ctx, relstore.EntityType(args.EntityType), args.SearchTerm, args.Limit)
	if err != nil {
		return Result{}, err
	}
	if len(entities) == 0 {
		return Result{Text: "no matching entities found"}, nil
	}
	var sb strings.Builder
	for _, e := range entities {
		data, _ := json.Marshal(e.EntityData)
		fmt.Fprintf(&sb, "[%s] %s\n", e.EntityType, string(data))
	}
	return Result{Text: strings.TrimSpace(sb.String())}, nil
}

// queryDatabaseTool implements spec §4.14.1's query_database, delegating the
// guardrails and execution to §4.15's sandbox.
type queryDatabaseTool struct {
	Sandbox SQLSandbox
}

func (t *queryDatabaseTool) Name() string { return "query_database" }
func (t *queryDatabaseTool) Description() string {
	return "Run a read-only SQL query over the registered tabular datasets, or list them."
}
func (t *queryDatabaseTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql":         map[string]any{"type": "string"},
			"list_tables": map[string]any{"type": "boolean"},
		},
	}
}

func (t *queryDatabaseTool) Call(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args struct {
		SQL        string `json:"sql"`
		ListTables bool   `json:"list_tables"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return Result{Text: "invalid arguments: " + err.Error()}, nil
		}
	}
	if args.ListTables {
		return Result{Text: "tables: " + strings.Join(t.Sandbox.Tables(), ", ")}, nil
	}
	if strings.TrimSpace(args.SQL) == "" {
		return Result{Text: "sql is required"}, nil
	}
	cols, rows, truncated, err := t.Sandbox.Run(ctx, args.SQL)
	if err != nil {
		return Result{Text: "query failed: " + err.Error()}, nil
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(cols, " | "))
	sb.WriteString("\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	if truncated {
		sb.WriteString("(results truncated)\n")
	}
	return Result{Text: strings.TrimSpace(sb.String())}, nil
}

// findDocument resolves a document by exact source id or case-insensitive
// title substring match, paging through ListDocuments since RelStore has no
// direct title lookup (documents are looked up by (source_type, source_id)
// identity everywhere else in the system).
func findDocument(ctx context.Context, rel relstore.RelStore, title, sourceID string) (*relstore.Document, error) {
	cursor := ""
	title = strings.ToLower(strings.TrimSpace(title))
	for {
		page, err := rel.ListDocuments(ctx, "", cursor, 200)
		if err != nil {
			return nil, err
		}
		for i := range page.Items {
			d := page.Items[i]
			if sourceID != "" && d.SourceID == sourceID {
				return &d, nil
			}
			if title != "" && strings.Contains(strings.ToLower(d.Title), title) {
				return &d, nil
			}
		}
		if page.Cursor == "" {
			return nil, nil
		}
		cursor = page.Cursor
	}
}
