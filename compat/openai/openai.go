// Package openai implements the Compat contract for OpenAI's
// chat-completions wire format, grounded on the teacher's
// agent/adapters/openai_adapter.go (buildChatCompletionParams,
// convertMessages, convertTools, convertResponse), generalized from a
// single fixed request shape to the full unified call model.
package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
	"github.com/taipm/llmadapter/sanitize"
)

func init() {
	compat.Register(llmadapter.ProviderOpenAI, func() compat.Compat { return New() })
}

// Compat implements compat.Compat for OpenAI chat-completions.
type Compat struct{}

func New() *Compat { return &Compat{} }

func (c *Compat) GetStreamingFlags() map[string]any {
	return map[string]any{"stream": true}
}

func (c *Compat) BuildPayload(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice) (map[string]any, error) {
	payload := map[string]any{
		"model":    model,
		"messages": c.convertMessages(messages),
	}
	applySettings(payload, settings)

	if len(tools) > 0 {
		serialized, err := c.SerializeTools(tools)
		if err != nil {
			return nil, err
		}
		payload["tools"] = serialized
	}
	if toolChoice != nil {
		tc, err := c.SerializeToolChoice(toolChoice, tools)
		if err != nil {
			return nil, err
		}
		if tc != nil {
			payload["tool_choice"] = tc
		}
	}
	if settings.ResponseFormat != nil {
		payload["response_format"] = settings.ResponseFormat
	}

	// sdkParams carries the same call rendered as openai-go/v3's native
	// param types, for SDKInvoker; the REST-shaped keys above are
	// unaffected and remain what every existing test reads.
	sp, err := buildSDKParams(model, settings, messages, tools, toolChoice, c)
	if err != nil {
		return nil, err
	}
	payload["sdkParams"] = sp

	return c.ApplyProviderExtensions(payload, settings.Extras), nil
}

func applySettings(payload map[string]any, settings llmadapter.CallSettings) {
	if settings.Temperature != nil {
		payload["temperature"] = *settings.Temperature
	}
	if settings.TopP != nil {
		payload["top_p"] = *settings.TopP
	}
	if settings.MaxTokens != nil {
		payload["max_tokens"] = *settings.MaxTokens
	}
	if len(settings.Stop) > 0 {
		payload["stop"] = settings.Stop
	}
	if settings.Seed != nil {
		payload["seed"] = *settings.Seed
	}
	if settings.FrequencyPenalty != nil {
		payload["frequency_penalty"] = *settings.FrequencyPenalty
	}
	if settings.PresencePenalty != nil {
		payload["presence_penalty"] = *settings.PresencePenalty
	}
	if len(settings.LogitBias) > 0 {
		payload["logit_bias"] = settings.LogitBias
	}
	if settings.LogProbs != nil && *settings.LogProbs {
		payload["logprobs"] = true
		if settings.TopLogProbs != nil {
			payload["top_logprobs"] = *settings.TopLogProbs
		}
	}
}

// convertMessages renders unified messages into OpenAI's message array
// (spec.md §4.3's OpenAI rules): system/user/assistant content parts
// pass through as an array (an empty assistant array becomes "");
// tool_result parts are filtered out of tool messages (only the text
// survives); assistant tool calls become tool_calls[] with
// JSON-stringified arguments; message names are sanitized.
func (c *Compat) convertMessages(messages []llmadapter.Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		entry := map[string]any{"role": string(m.Role)}
		if m.Name != "" {
			entry["name"] = sanitize.Sanitize(m.Name)
		}

		switch m.Role {
		case llmadapter.RoleTool:
			entry["tool_call_id"] = m.ToolCallID
			entry["content"] = textOnly(m.Content)
		case llmadapter.RoleAssistant:
			if len(m.Content) == 0 {
				entry["content"] = ""
			} else {
				entry["content"] = contentArray(m.Content)
			}
			if len(m.ToolCalls) > 0 {
				entry["tool_calls"] = convertToolCalls(m.ToolCalls)
			}
		default:
			entry["content"] = contentArray(m.Content)
		}
		out = append(out, entry)
	}
	return out
}

func textOnly(parts []llmadapter.ContentPart) string {
	var text string
	for _, p := range parts {
		if p.Type == llmadapter.ContentText {
			text += p.Text
		}
	}
	return text
}

func contentArray(parts []llmadapter.ContentPart) []map[string]any {
	out := make([]map[string]any, 0, len(parts))
	for _, p := range parts {
		if p.Type == llmadapter.ContentToolResult {
			continue
		}
		out = append(out, convertPart(p))
	}
	return out
}

func convertPart(p llmadapter.ContentPart) map[string]any {
	switch p.Type {
	case llmadapter.ContentImage:
		url := p.URL
		if url == "" && len(p.Base64) > 0 {
			url = "data:" + p.MimeType + ";base64," + base64.StdEncoding.EncodeToString(p.Base64)
		}
		return map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": url},
		}
	default:
		return map[string]any{"type": "text", "text": p.Text}
	}
}

func convertToolCalls(calls []llmadapter.ToolCall) []map[string]any {
	out := make([]map[string]any, len(calls))
	for i, tc := range calls {
		args, _ := json.Marshal(tc.Arguments)
		out[i] = map[string]any{
			"id":   tc.ID,
			"type": "function",
			"function": map[string]any{
				"name":      sanitize.Sanitize(tc.Name),
				"arguments": string(args),
			},
		}
	}
	return out
}

func (c *Compat) SerializeTools(tools []llmadapter.UnifiedTool) (any, error) {
	out := make([]map[string]any, len(tools))
	for i, t := range tools {
		out[i] = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        sanitize.Sanitize(t.Name),
				"description": t.Description,
				"parameters":  t.ParametersJSONSchema,
			},
		}
	}
	return out, nil
}

func (c *Compat) SerializeToolChoice(choice *llmadapter.ToolChoice, tools []llmadapter.UnifiedTool) (any, error) {
	if choice == nil {
		return nil, nil
	}
	switch choice.Kind {
	case llmadapter.ToolChoiceAuto:
		return "auto", nil
	case llmadapter.ToolChoiceNone:
		return "none", nil
	case llmadapter.ToolChoiceRequired:
		if len(choice.Allowed) == 1 {
			return map[string]any{
				"type":     "function",
				"function": map[string]any{"name": sanitize.Sanitize(choice.Allowed[0])},
			}, nil
		}
		return "required", nil
	case llmadapter.ToolChoiceSingle:
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": sanitize.Sanitize(choice.Name)},
		}, nil
	default:
		return nil, fmt.Errorf("openai: unknown tool choice kind %q", choice.Kind)
	}
}

// ApplyProviderExtensions is a no-op for plain OpenAI: it has no
// documented request-level extension keys beyond the ones BuildPayload
// already models directly. OpenRouter's compat wraps this one and
// adds its own.
func (c *Compat) ApplyProviderExtensions(payload map[string]any, extras map[string]any) map[string]any {
	return payload
}
