package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	deltas []string
	calls  []ToolCall
}

func (h *recordingHandler) OnDelta(content string)   { h.deltas = append(h.deltas, content) }
func (h *recordingHandler) OnToolCall(tc ToolCall)   { h.calls = append(h.calls, tc) }

func TestScripted_Chat_ReturnsTurnsInOrder(t *testing.T) {
	s := &Scripted{Turns: []ScriptedTurn{
		{Message: Message{Role: "assistant", Content: "first"}},
		{Message: Message{Role: "assistant", Content: "second"}},
	}}

	first, err := s.Chat(context.Background(), nil, nil, "")
	require.NoError(t, err)
	require.Equal(t, "first", first.Content)

	second, err := s.Chat(context.Background(), nil, nil, "")
	require.NoError(t, err)
	require.Equal(t, "second", second.Content)
	require.Equal(t, 2, s.Calls())
}

func TestScripted_Chat_ExhaustedTurnsPanics(t *testing.T) {
	s := &Scripted{Turns: []ScriptedTurn{{Message: Message{Content: "only"}}}}
	_, err := s.Chat(context.Background(), nil, nil, "")
	require.NoError(t, err)
	require.Panics(t, func() {
		_, _ = s.Chat(context.Background(), nil, nil, "")
	})
}

func TestScripted_ChatStream_EmitsDeltaAndToolCall(t *testing.T) {
	tc := ToolCall{ID: "call-1", Name: "search_knowledge", Args: json.RawMessage(`{"query":"revenue"}`)}
	s := &Scripted{Turns: []ScriptedTurn{
		{Message: Message{Role: "assistant", Content: "looking that up", ToolCalls: []ToolCall{tc}}},
	}}
	h := &recordingHandler{}
	err := s.ChatStream(context.Background(), nil, nil, "", h)
	require.NoError(t, err)
	require.Equal(t, []string{"looking that up"}, h.deltas)
	require.Len(t, h.calls, 1)
	require.Equal(t, tc, h.calls[0])
}
