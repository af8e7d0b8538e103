// Package agent implements the bounded LLM tool-use loop, spec §4.14: a
// fixed state machine (call_llm → end_turn|tool_use → run_tools → call_llm)
// bounded to MAX_TOOL_ITERATIONS=5, driving a fixed tool catalogue (spec
// §4.14.1) against the knowledge base. Grounded on the teacher's
// internal/agent.Engine/internal/tools.Registry split, trimmed of the
// teacher's evolving-memory, rolling-summarization, agent-delegation, and
// multi-modal (image/audio) tool support, none of which this spec's agent
// loop has a use for.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// Citation is one source attribution a tool contributes to the response.
type Citation struct {
	DocumentTitle string `json:"document_title,omitempty"`
	SourceID      string `json:"source_id,omitempty"`
	SourceURL     string `json:"source_url,omitempty"`
	SectionPath   string `json:"section_path,omitempty"`
	SegmentID     string `json:"segment_id,omitempty"`
}

// Result is the fixed output shape every tool in the catalogue returns, per
// spec §4.14.1: "{text, citations[]}".
type Result struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

// Tool is one entry in the fixed catalogue. Implementations never return an
// error for an expected "not found"/"no results" case — they encode that in
// Result.Text per spec §4.14.1's "fails gracefully" requirement; Tool.Call
// only returns an error for an unexpected failure (the registry turns that
// into a textual tool result too, per spec §4.14's "tool failure becomes a
// textual tool result" rule).
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema object
	Call(ctx context.Context, args json.RawMessage) (Result, error)
}

// Registry is the fixed tool catalogue dispatched by name.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Schemas returns the catalogue in registration order, the shape passed to
// every call_llm invocation (spec §4.14).
func (r *Registry) Schemas() []toolSchema {
	out := make([]toolSchema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, toolSchema{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return out
}

// Dispatch calls the named tool. An unknown tool name is a textual error
// result, not an exception, per spec §4.14.1.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) Result {
	t, ok := r.tools[name]
	if !ok {
		return Result{Text: fmt.Sprintf("unknown tool %q", name)}
	}
	res, err := t.Call(ctx, args)
	if err != nil {
		return Result{Text: fmt.Sprintf("tool %q failed: %s", name, err.Error())}
	}
	return res
}

// toolSchema is the provider-neutral tool description; kept unexported and
// converted at the llm boundary in engine.go, since Registry has no reason
// to import the llm package's wire types directly.
type toolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}
