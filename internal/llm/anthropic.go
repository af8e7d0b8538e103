// Grounded on the teacher's internal/llm/anthropic/client.go: the same SDK
// types and message/tool adaptation shape, trimmed of prompt-cache control,
// extended-thinking, and thought-signature replay, none of which this
// system's bounded tool-use loop (spec §4.14) needs across its five
// iterations.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/manifold-labs/knowledgebase/internal/obs"
)

const anthropicDefaultMaxTokens int64 = 4096

// AnthropicClient adapts Provider to the Anthropic Messages API.
type AnthropicClient struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic builds a client. apiKey/baseURL empty fall back to the SDK's
// own environment lookup (ANTHROPIC_API_KEY) and default host.
func NewAnthropic(apiKey, baseURL, model string, httpClient *http.Client) *AnthropicClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithHTTPClient(httpClient)}
	if k := strings.TrimSpace(apiKey); k != "" {
		opts = append(opts, option.WithAPIKey(k))
	}
	if b := strings.TrimSpace(baseURL); b != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(b, "/")))
	}
	m := strings.TrimSpace(model)
	if m == "" {
		m = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicClient{sdk: anthropic.NewClient(opts...), model: m, maxTokens: anthropicDefaultMaxTokens}
}

func (c *AnthropicClient) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *AnthropicClient) Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string) (Message, error) {
	sys, converted, err := adaptAnthropicMessages(msgs)
	if err != nil {
		return Message{}, err
	}
	toolDefs, err := adaptAnthropicTools(tools)
	if err != nil {
		return Message{}, err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(model)),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: c.maxTokens,
	}
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		obs.Logger(ctx).WithError(err).WithField("model", string(params.Model)).Warn("anthropic chat failed")
		return Message{}, err
	}
	msg := anthropicMessageFromResponse(resp)
	msg.Usage = Usage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return msg, nil
}

func (c *AnthropicClient) ChatStream(ctx context.Context, msgs []Message, tools []ToolSchema, model string, h StreamHandler) error {
	sys, converted, err := adaptAnthropicMessages(msgs)
	if err != nil {
		return err
	}
	toolDefs, err := adaptAnthropicTools(tools)
	if err != nil {
		return err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(model)),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: c.maxTokens,
	}

	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var acc anthropic.Message
	toolBuffers := map[int]*anthropicToolBuffer{}

	for stream.Next() {
		event := stream.Current()
		// The SDK's Accumulate has a documented quirk where it can fail on a
		// content block with empty/partial Input JSON; tool args are tracked
		// independently below via toolBuffers, so that error is ignorable.
		_ = acc.Accumulate(event)

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				id := strings.TrimSpace(block.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", len(toolBuffers)+1)
				}
				tb := &anthropicToolBuffer{name: block.Name, id: id}
				tb.appendInitial(block.Input)
				toolBuffers[int(ev.Index)] = tb
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if h != nil && delta.Text != "" {
					h.OnDelta(delta.Text)
				}
			case anthropic.InputJSONDelta:
				if tb := toolBuffers[int(ev.Index)]; tb != nil {
					tb.appendPartial(delta.PartialJSON)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		obs.Logger(ctx).WithError(err).WithField("model", string(params.Model)).Warn("anthropic stream failed")
		return err
	}

	if h != nil {
		indices := make([]int, 0, len(toolBuffers))
		for i := range toolBuffers {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			h.OnToolCall(toolBuffers[idx].toToolCall())
		}
	}
	return nil
}

func adaptAnthropicTools(tools []ToolSchema) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("anthropic provider: tool name required")
		}
		schema := anthropic.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		extras := map[string]any{}
		for k, v := range t.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			schema.Properties = props
			delete(extras, "properties")
		}
		if req, ok := extras["required"]; ok {
			delete(extras, "required")
			switch v := req.(type) {
			case []string:
				schema.Required = v
			case []any:
				for _, item := range v {
					if s, ok := item.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		delete(extras, "type")
		if len(extras) > 0 {
			schema.ExtraFields = extras
		}
		param := anthropic.ToolParam{Name: name, InputSchema: schema}
		if desc := strings.TrimSpace(t.Description); desc != "" {
			param.Description = anthropic.String(desc)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out, nil
}

func adaptAnthropicMessages(msgs []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	if len(msgs) == 0 {
		return nil, nil, fmt.Errorf("anthropic provider: messages required")
	}
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	toolResultCount := 0

	for _, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "system":
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case "user":
			if strings.TrimSpace(m.Content) != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for i, tc := range m.ToolCalls {
				id := strings.TrimSpace(tc.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", i+1)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(id, anthropicDecodeArgs(tc.Args), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case "tool":
			id := strings.TrimSpace(m.ToolCallID)
			if id == "" {
				toolResultCount++
				id = fmt.Sprintf("tool-result-%d", toolResultCount)
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)))
		default:
			return nil, nil, fmt.Errorf("anthropic provider: unsupported role %q", m.Role)
		}
	}
	return system, out, nil
}

func anthropicDecodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func anthropicMessageFromResponse(resp *anthropic.Message) Message {
	if resp == nil {
		return Message{}
	}
	var sb strings.Builder
	var calls []ToolCall
	callIdx := 0
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			callIdx++
			id := strings.TrimSpace(v.ID)
			if id == "" {
				id = fmt.Sprintf("call-%d", callIdx)
			}
			calls = append(calls, ToolCall{Name: v.Name, Args: v.Input, ID: id})
		}
	}
	return Message{Role: "assistant", Content: sb.String(), ToolCalls: calls}
}

// anthropicToolBuffer accumulates a ToolUseBlock's streamed partial-JSON
// input. The SDK's own Accumulate is unreliable for partial/empty Input, so
// the adapter tracks this independently, mirroring the teacher's toolBuffer.
type anthropicToolBuffer struct {
	name      string
	id        string
	buf       strings.Builder
	hasDeltas bool
}

func (tb *anthropicToolBuffer) appendInitial(raw json.RawMessage) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	tb.buf.WriteString(string(raw))
}

func (tb *anthropicToolBuffer) appendPartial(partial string) {
	if partial == "" {
		return
	}
	if !tb.hasDeltas {
		tb.buf.Reset()
		tb.hasDeltas = true
	}
	tb.buf.WriteString(partial)
}

func (tb *anthropicToolBuffer) toToolCall() ToolCall {
	trimmed := strings.TrimSpace(tb.buf.String())
	if trimmed == "" {
		trimmed = "{}"
	} else {
		if !strings.HasPrefix(trimmed, "{") {
			trimmed = "{" + trimmed
		}
		if !strings.HasSuffix(trimmed, "}") {
			trimmed += "}"
		}
	}
	if !json.Valid([]byte(trimmed)) {
		trimmed = "{}"
	}
	return ToolCall{Name: tb.name, Args: json.RawMessage(trimmed), ID: tb.id}
}
