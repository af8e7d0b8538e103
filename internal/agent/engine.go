package agent

import (
	"context"
	"strings"
	"time"

	"github.com/manifold-labs/knowledgebase/internal/llm"
	"github.com/manifold-labs/knowledgebase/internal/obs"
)

// MaxToolIterations bounds the call_llm/run_tools cycle, spec §4.14.
const MaxToolIterations = 5

// fallbackText is returned when MaxToolIterations is exhausted without an
// end_turn, per spec §4.14.
const fallbackText = "I was unable to complete this request within the available reasoning steps."

const systemPrompt = `You are a knowledgeable assistant over a business's internal knowledge base. Use the provided tools to find and cite supporting information. Always ground factual claims in tool results; cite your sources.`

// TokenUsage accumulates provider-reported usage across every call_llm
// invocation in one loop run, summed per spec §6's /chat response shape.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

func (u *TokenUsage) add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Response is the synchronous Run result.
type Response struct {
	Text        string
	Citations   []Citation
	ToolCalls   int
	TokenUsage  TokenUsage
	LatencyMS   int64
}

// Engine drives the bounded tool-use loop (spec §4.14) against one Provider
// and one fixed tool Registry. Grounded on the teacher's internal/agent.Engine
// Run/runLoop split, trimmed of evolving memory, rolling summarization, agent
// delegation and multi-modal tool support — none of which this system's
// five-tool, five-iteration loop needs.
type Engine struct {
	Provider llm.Provider
	Registry *Registry
	Model    string
}

// Run executes the full non-streaming state machine: init → call_llm →
// end_turn|tool_use → run_tools → call_llm, bounded to MaxToolIterations.
func (e *Engine) Run(ctx context.Context, userMessage string, history []llm.Message) (Response, error) {
	start := time.Now()
	msgs := e.buildHistory(userMessage, history)
	schemas := e.toolSchemas()

	var citations []Citation
	var usage TokenUsage
	toolCalls := 0

	for i := 0; i < MaxToolIterations; i++ {
		reply, err := e.Provider.Chat(ctx, msgs, schemas, e.Model)
		if err != nil {
			return Response{}, err
		}
		msgs = append(msgs, reply)
		usage.add(TokenUsage{InputTokens: reply.Usage.InputTokens, OutputTokens: reply.Usage.OutputTokens, TotalTokens: reply.Usage.TotalTokens})

		if len(reply.ToolCalls) == 0 {
			return Response{
				Text:       reply.Content,
				Citations:  citations,
				ToolCalls:  toolCalls,
				TokenUsage: usage,
				LatencyMS:  time.Since(start).Milliseconds(),
			}, nil
		}

		toolCalls += len(reply.ToolCalls)
		toolMsgs := e.dispatchTools(ctx, reply.ToolCalls, &citations)
		msgs = append(msgs, toolMsgs...)
	}

	obs.Logger(ctx).Warn("agent loop exhausted max tool iterations without end_turn")
	return Response{
		Text:       fallbackText,
		Citations:  citations,
		ToolCalls:  toolCalls,
		TokenUsage: usage,
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}

// StreamEvent is one event of the streaming variant, spec §4.14 "Streaming
// variant": status events between call_llm invocations, token chunks and one
// event per citation during the final end_turn, then a terminal done event.
type StreamEvent struct {
	Type     string // "status" | "token" | "citation" | "done" | "error"
	Status   string
	Token    string
	Citation Citation
	Done     *Response
	Err      error
}

// RunStream drives the same state machine as Run but emits StreamEvents as
// it goes, streaming only the final end_turn call.
func (e *Engine) RunStream(ctx context.Context, userMessage string, history []llm.Message, emit func(StreamEvent)) error {
	start := time.Now()
	msgs := e.buildHistory(userMessage, history)
	schemas := e.toolSchemas()

	var citations []Citation
	var usage TokenUsage
	toolCalls := 0

	for i := 0; i < MaxToolIterations; i++ {
		isLastChance := i == MaxToolIterations-1
		emit(StreamEvent{Type: "status", Status: "Thinking…"})

		if !isLastChance {
			// Not yet committed to a final end_turn: a non-streaming probe
			// call decides whether this turn is end_turn or tool_use, since
			// the transport only streams tokens for the turn it commits to
			// returning as the final answer.
			reply, err := e.Provider.Chat(ctx, msgs, schemas, e.Model)
			if err != nil {
				emit(StreamEvent{Type: "error", Err: err})
				return err
			}
			msgs = append(msgs, reply)
			usage.add(TokenUsage{InputTokens: reply.Usage.InputTokens, OutputTokens: reply.Usage.OutputTokens, TotalTokens: reply.Usage.TotalTokens})

			if len(reply.ToolCalls) == 0 {
				return e.streamFinalAnswer(ctx, msgs, schemas, reply.Content, citations, toolCalls, usage, start, emit)
			}

			toolCalls += len(reply.ToolCalls)
			for _, tc := range reply.ToolCalls {
				emit(StreamEvent{Type: "status", Status: "Using " + tc.Name + "…"})
			}
			toolMsgs := e.dispatchTools(ctx, reply.ToolCalls, &citations)
			msgs = append(msgs, toolMsgs...)
			continue
		}

		// Final allowed iteration: stream it directly, per spec §4.14 "On
		// the final end_turn, the LLM call is made in streaming mode".
		return e.streamFinalAnswer(ctx, msgs, schemas, "", citations, toolCalls, usage, start, emit)
	}
	return nil
}

// streamFinalAnswer re-issues the last call in streaming mode when content
// is empty (the loop has not yet produced an end_turn reply), or replays an
// already-known final answer as a single token chunk.
func (e *Engine) streamFinalAnswer(ctx context.Context, msgs []llm.Message, schemas []llm.ToolSchema, known string, citations []Citation, toolCalls int, usage TokenUsage, start time.Time, emit func(StreamEvent)) error {
	var text string
	if known != "" {
		text = known
		emit(StreamEvent{Type: "token", Token: text})
	} else {
		h := &streamCollector{emit: emit}
		if err := e.Provider.ChatStream(ctx, msgs, schemas, e.Model, h); err != nil {
			emit(StreamEvent{Type: "error", Err: err})
			return err
		}
		text = h.text.String()
		if text == "" {
			text = fallbackText
		}
	}

	for _, c := range citations {
		emit(StreamEvent{Type: "citation", Citation: c})
	}

	resp := Response{
		Text:       text,
		Citations:  citations,
		ToolCalls:  toolCalls,
		TokenUsage: usage,
		LatencyMS:  time.Since(start).Milliseconds(),
	}
	emit(StreamEvent{Type: "done", Done: &resp})
	return nil
}

// dispatchTools runs every tool-call block from one assistant turn, each
// becoming its own tool-role message so adapters can preserve per-call tool
// ids (llm.Message carries one ToolCallID), per spec §4.14's "results are
// appended ... preserving the tool-call ids".
func (e *Engine) dispatchTools(ctx context.Context, calls []llm.ToolCall, citations *[]Citation) []llm.Message {
	out := make([]llm.Message, 0, len(calls))
	for _, tc := range calls {
		res := e.Registry.Dispatch(ctx, tc.Name, tc.Args)
		*citations = append(*citations, res.Citations...)
		out = append(out, llm.Message{Role: "tool", Content: res.Text, ToolCallID: tc.ID})
	}
	return out
}

func (e *Engine) buildHistory(userMessage string, history []llm.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: "user", Content: userMessage})
	return msgs
}

func (e *Engine) toolSchemas() []llm.ToolSchema {
	internal := e.Registry.Schemas()
	out := make([]llm.ToolSchema, len(internal))
	for i, s := range internal {
		out[i] = llm.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	return out
}

// streamCollector adapts llm.StreamHandler to StreamEvent emission,
// buffering text so the final Response.Text matches what Run would return.
type streamCollector struct {
	emit func(StreamEvent)
	text strings.Builder
}

func (h *streamCollector) OnDelta(content string) {
	h.text.WriteString(content)
	h.emit(StreamEvent{Type: "token", Token: content})
}

func (h *streamCollector) OnToolCall(_ llm.ToolCall) {
	// The final end_turn call is never expected to request another tool;
	// spec §4.14 commits to streaming only once the loop has no iterations
	// left to run one. A tool call here is ignored rather than treated as an
	// error, since the response so far is still usable.
}
