// Grounded on the teacher's internal/llm/openai/client.go and schema.go:
// same SDK and message/tool adaptation shape over Chat Completions, trimmed
// of the teacher's self-hosted SSE fallback, Gemini-compatibility raw-HTTP
// paths, and image generation, none of which apply to this service's agent
// loop (spec §4.14 only needs text and tool-call turns against a hosted
// OpenAI-compatible endpoint).
package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/manifold-labs/knowledgebase/internal/obs"
)

// OpenAIClient adapts Provider to the OpenAI Chat Completions API (and any
// OpenAI-compatible endpoint reachable via baseURL).
type OpenAIClient struct {
	sdk   sdk.Client
	model string
}

func NewOpenAI(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIClient {
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
		m = "gpt-4o"
	}
	return &OpenAIClient{sdk: sdk.NewClient(opts...), model: m}
}

func (c *OpenAIClient) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *OpenAIClient) Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string) (Message, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.pickModel(model)),
		Messages: adaptOpenAIMessages(msgs),
	}
	if len(tools) > 0 {
		params.Tools = adaptOpenAITools(tools)
	}
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		obs.Logger(ctx).WithError(err).WithField("model", string(params.Model)).Warn("openai chat failed")
		return Message{}, err
	}
	if len(comp.Choices) == 0 {
		return Message{}, nil
	}
	msg := openAIMessageFromChoice(comp.Choices[0].Message)
	msg.Usage = Usage{
		InputTokens:  int(comp.Usage.PromptTokens),
		OutputTokens: int(comp.Usage.CompletionTokens),
		TotalTokens:  int(comp.Usage.TotalTokens),
	}
	return msg, nil
}

func (c *OpenAIClient) ChatStream(ctx context.Context, msgs []Message, tools []ToolSchema, model string, h StreamHandler) error {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.pickModel(model)),
		Messages: adaptOpenAIMessages(msgs),
	}
	if len(tools) > 0 {
		params.Tools = adaptOpenAITools(tools)
	}

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	toolCalls := map[int64]*ToolCall{}
	flushed := false

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" && h != nil {
			h.OnDelta(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			if toolCalls[idx] == nil {
				toolCalls[idx] = &ToolCall{ID: tc.ID}
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Args = json.RawMessage(string(toolCalls[idx].Args) + tc.Function.Arguments)
			}
		}
		if chunk.Choices[0].FinishReason != "" && !flushed {
			flushed = true
			if h != nil {
				for _, tc := range toolCalls {
					if tc != nil && tc.Name != "" {
						h.OnToolCall(*tc)
					}
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		obs.Logger(ctx).WithError(err).WithField("model", string(params.Model)).Warn("openai stream failed")
		return err
	}
	return nil
}

func adaptOpenAITools(schemas []ToolSchema) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
			Name:        s.Name,
			Description: sdk.String(s.Description),
			Parameters:  s.Parameters,
		}))
	}
	return out
}

func adaptOpenAIMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "user":
			content := m.Content
			if content == "" {
				content = " "
			}
			out = append(out, sdk.UserMessage(content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, sdk.AssistantMessage(m.Content))
				continue
			}
			var asst sdk.ChatCompletionAssistantMessageParam
			asst.Content.OfString = sdk.String(m.Content)
			for _, tc := range m.ToolCalls {
				fn := sdk.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Arguments: string(tc.Args),
						Name:      tc.Name,
					},
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{OfFunction: &fn})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case "tool":
			out = append(out, sdk.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func openAIMessageFromChoice(msg sdk.ChatCompletionMessage) Message {
	out := Message{Role: "assistant", Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		v, ok := tc.AsAny().(sdk.ChatCompletionMessageFunctionToolCall)
		if !ok {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			Name: v.Function.Name,
			Args: json.RawMessage(v.Function.Arguments),
			ID:   v.ID,
		})
	}
	return out
}
