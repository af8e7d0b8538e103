package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/manifold-labs/knowledgebase/internal/agent"
	"github.com/manifold-labs/knowledgebase/internal/apierr"
	"github.com/manifold-labs/knowledgebase/internal/llm"
)

// chatMessage is one entry of the input conversation_history, spec §6.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message              string        `json:"message"`
	ConversationID       string        `json:"conversation_id"`
	ConversationHistory  []chatMessage `json:"conversation_history"`
	SourceType           string        `json:"source_type"`
}

type tokenUsageDTO struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type chatResponse struct {
	Response       string           `json:"response"`
	Citations      []agent.Citation `json:"citations"`
	ConversationID string           `json:"conversation_id"`
	TokenUsage     tokenUsageDTO    `json:"token_usage"`
	LatencyMS      int64            `json:"latency_ms"`
}

func toLLMHistory(in []chatMessage) []llm.Message {
	out := make([]llm.Message, len(in))
	for i, m := range in {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.Validation("invalid request body", err))
		return chatRequest{}, false
	}
	if req.Message == "" {
		writeError(w, r, apierr.Validation("message is required", nil))
		return chatRequest{}, false
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	return req, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.Engine.Run(r.Context(), req.Message, toLLMHistory(req.ConversationHistory))
	if err != nil {
		writeError(w, r, apierr.Transient("agent turn failed", err))
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:       resp.Text,
		Citations:      resp.Citations,
		ConversationID: req.ConversationID,
		TokenUsage: tokenUsageDTO{
			InputTokens:  resp.TokenUsage.InputTokens,
			OutputTokens: resp.TokenUsage.OutputTokens,
			TotalTokens:  resp.TokenUsage.TotalTokens,
		},
		LatencyMS: resp.LatencyMS,
	})
}

// handleChatStream implements spec §6's SSE variant: one `data: <json>\n\n`
// line per agent.StreamEvent, translated to the wire event shapes spec §6
// names. Grounded on the teacher's cmd/agentd SSE handler (http.Flusher
// after every write, no response buffering), generalized from the
// teacher's delta/tool/final three-event vocabulary to this spec's
// status/token/citation/done/error vocabulary.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apierr.Internal(fmt.Errorf("streaming not supported by this response writer")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(ev agent.StreamEvent) {
		var payload map[string]any
		switch ev.Type {
		case "status":
			payload = map[string]any{"type": "status", "content": ev.Status}
		case "token":
			payload = map[string]any{"type": "token", "content": ev.Token}
		case "citation":
			payload = map[string]any{"type": "citation", "data": ev.Citation}
		case "done":
			payload = map[string]any{"type": "done", "metadata": map[string]any{
				"conversation_id": req.ConversationID,
				"tool_calls":      ev.Done.ToolCalls,
				"token_usage": tokenUsageDTO{
					InputTokens:  ev.Done.TokenUsage.InputTokens,
					OutputTokens: ev.Done.TokenUsage.OutputTokens,
					TotalTokens:  ev.Done.TokenUsage.TotalTokens,
				},
				"latency_ms": ev.Done.LatencyMS,
			}}
		case "error":
			payload = map[string]any{"type": "error", "message": ev.Err.Error()}
		default:
			return
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}

	if err := s.Engine.RunStream(r.Context(), req.Message, toLLMHistory(req.ConversationHistory), emit); err != nil {
		emit(agent.StreamEvent{Type: "error", Err: err})
	}
}
