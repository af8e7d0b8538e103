package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manifold-labs/knowledgebase/internal/llm"
)

var errBoom = errors.New("boom")

// stubTool is a minimal Tool double for driving the loop without any real
// backing system.
type stubTool struct {
	name   string
	result Result
	err    error
	calls  int
}

func (t *stubTool) Name() string               { return t.name }
func (t *stubTool) Description() string         { return "stub" }
func (t *stubTool) Parameters() map[string]any  { return map[string]any{"type": "object"} }
func (t *stubTool) Call(_ context.Context, _ json.RawMessage) (Result, error) {
	t.calls++
	return t.result, t.err
}

func TestEngineRun_ToolUseThenEndTurn(t *testing.T) {
	tool := &stubTool{
		name: "search_knowledge",
		result: Result{
			Text:      "[1] (Source: Report > Q1)\nQ1 revenue was $4.2M.",
			Citations: []Citation{{DocumentTitle: "Report", SectionPath: "Q1"}},
		},
	}
	registry := NewRegistry(tool)
	provider := &llm.Scripted{Turns: []llm.ScriptedTurn{
		{Message: llm.Message{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{
				{ID: "call-1", Name: "search_knowledge", Args: json.RawMessage(`{"query":"Q1 revenue"}`)},
			},
			Usage: llm.Usage{InputTokens: 50, OutputTokens: 10, TotalTokens: 60},
		}},
		{Message: llm.Message{
			Role:    "assistant",
			Content: "Q1 revenue was $4.2M [Source: Report > Q1].",
			Usage:   llm.Usage{InputTokens: 80, OutputTokens: 20, TotalTokens: 100},
		}},
	}}
	engine := &Engine{Provider: provider, Registry: registry, Model: "test-model"}

	resp, err := engine.Run(context.Background(), "What was Q1 revenue?", nil)
	require.NoError(t, err)
	require.Equal(t, "Q1 revenue was $4.2M [Source: Report > Q1].", resp.Text)
	require.Equal(t, 1, resp.ToolCalls)
	require.Len(t, resp.Citations, 1)
	require.Equal(t, "Report", resp.Citations[0].DocumentTitle)
	require.Equal(t, 1, tool.calls)
	require.Equal(t, 130, resp.TokenUsage.InputTokens)
	require.Equal(t, 30, resp.TokenUsage.OutputTokens)
	require.Equal(t, 160, resp.TokenUsage.TotalTokens)
}

func TestEngineRun_ExhaustsMaxIterationsReturnsFallback(t *testing.T) {
	tool := &stubTool{name: "search_knowledge", result: Result{Text: "no results found"}}
	registry := NewRegistry(tool)

	turns := make([]llm.ScriptedTurn, 0, MaxToolIterations)
	for i := 0; i < MaxToolIterations; i++ {
		turns = append(turns, llm.ScriptedTurn{Message: llm.Message{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{
				{ID: "call", Name: "search_knowledge", Args: json.RawMessage(`{"query":"x"}`)},
			},
		}})
	}
	provider := &llm.Scripted{Turns: turns}
	engine := &Engine{Provider: provider, Registry: registry}

	resp, err := engine.Run(context.Background(), "keep digging", nil)
	require.NoError(t, err)
	require.Equal(t, fallbackText, resp.Text)
	require.Equal(t, MaxToolIterations, tool.calls)
	require.Equal(t, MaxToolIterations, resp.ToolCalls)
}

func TestEngineRun_UnknownToolNameIsTextualNotError(t *testing.T) {
	registry := NewRegistry(&stubTool{name: "search_knowledge", result: Result{Text: "ok"}})
	provider := &llm.Scripted{Turns: []llm.ScriptedTurn{
		{Message: llm.Message{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{
				{ID: "call-1", Name: "not_a_real_tool", Args: json.RawMessage(`{}`)},
			},
		}},
		{Message: llm.Message{Role: "assistant", Content: "done"}},
	}}
	engine := &Engine{Provider: provider, Registry: registry}

	resp, err := engine.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	require.Equal(t, "done", resp.Text)
}

func TestRegistryDispatch_UnknownToolReturnsTextualError(t *testing.T) {
	registry := NewRegistry(&stubTool{name: "search_knowledge"})
	res := registry.Dispatch(context.Background(), "missing", json.RawMessage(`{}`))
	require.Contains(t, res.Text, "unknown tool")
}

func TestRegistryDispatch_ToolErrorBecomesTextualResult(t *testing.T) {
	tool := &stubTool{name: "search_knowledge", err: errBoom}
	registry := NewRegistry(tool)
	res := registry.Dispatch(context.Background(), "search_knowledge", json.RawMessage(`{}`))
	require.Contains(t, res.Text, "search_knowledge")
	require.Contains(t, res.Text, "boom")
}
