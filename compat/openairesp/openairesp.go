// Package openairesp implements the Compat contract for OpenAI's
// responses API, the `input[]`/`output[]` item-based sibling of
// chat-completions. It reuses chat-completions' tool/schema encoding
// (both are OpenAI's own JSON-schema-shaped function tools) and
// adapts only the message and tool-call item shapes, grounded the
// same way as compat/openai on the teacher's
// agent/adapters/openai_adapter.go.
package openairesp

import (
	"fmt"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
	"github.com/taipm/llmadapter/sanitize"
)

func init() {
	compat.Register(llmadapter.ProviderOpenAIResponse, func() compat.Compat { return New() })
}

type Compat struct{}

func New() *Compat { return &Compat{} }

func (c *Compat) GetStreamingFlags() map[string]any {
	return map[string]any{"stream": true}
}

func (c *Compat) BuildPayload(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice) (map[string]any, error) {
	var instructions string
	var input []map[string]any

	for _, m := range messages {
		switch m.Role {
		case llmadapter.RoleSystem:
			instructions += textOnly(m.Content)
		case llmadapter.RoleTool:
			input = append(input, map[string]any{
				"type":    "function_call_output",
				"call_id": m.ToolCallID,
				"output":  textOnly(m.Content),
			})
		case llmadapter.RoleAssistant:
			for _, tc := range m.ToolCalls {
				input = append(input, map[string]any{
					"type":      "function_call",
					"call_id":   tc.ID,
					"name":      sanitize.Sanitize(tc.Name),
					"arguments": tc.MarshalArguments(),
				})
			}
			if text := textOnly(m.Content); text != "" {
				input = append(input, map[string]any{
					"type": "message", "role": "assistant",
					"content": []map[string]any{{"type": "output_text", "text": text}},
				})
			}
		default:
			input = append(input, map[string]any{
				"type": "message", "role": "user",
				"content": []map[string]any{{"type": "input_text", "text": textOnly(m.Content)}},
			})
		}
	}

	payload := map[string]any{
		"model": model,
		"input": input,
	}
	if instructions != "" {
		payload["instructions"] = instructions
	}
	if settings.Temperature != nil {
		payload["temperature"] = *settings.Temperature
	}
	if settings.TopP != nil {
		payload["top_p"] = *settings.TopP
	}
	if settings.MaxTokens != nil {
		payload["max_output_tokens"] = int(*settings.MaxTokens)
	}
	if settings.ReasoningEnabled() && settings.Reasoning.Effort != "" {
		payload["reasoning"] = map[string]any{"effort": string(settings.Reasoning.Effort)}
	}

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

	// sdkParams carries the same call rendered as openai-go/v3's native
	// responses.ResponseNewParams, for SDKInvoker; the REST-shaped keys
	// above are unaffected and remain what every existing test reads.
	sp, err := buildSDKParams(model, settings, messages, tools, toolChoice, c)
	if err != nil {
		return nil, err
	}
	payload["sdkParams"] = sp

	return c.ApplyProviderExtensions(payload, settings.Extras), nil
}

func textOnly(parts []llmadapter.ContentPart) string {
	var out string
	for _, p := range parts {
		if p.Type == llmadapter.ContentText {
			out += p.Text
		}
	}
	return out
}

// SerializeTools uses the responses API's flat function-tool shape
// (no nested "function" wrapper, unlike chat-completions).
func (c *Compat) SerializeTools(tools []llmadapter.UnifiedTool) (any, error) {
	out := make([]map[string]any, len(tools))
	for i, t := range tools {
		out[i] = map[string]any{
			"type":        "function",
			"name":        sanitize.Sanitize(t.Name),
			"description": t.Description,
			"parameters":  t.ParametersJSONSchema,
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
			return map[string]any{"type": "function", "name": sanitize.Sanitize(choice.Allowed[0])}, nil
		}
		return "required", nil
	case llmadapter.ToolChoiceSingle:
		return map[string]any{"type": "function", "name": sanitize.Sanitize(choice.Name)}, nil
	default:
		return nil, fmt.Errorf("openairesp: unknown tool choice kind %q", choice.Kind)
	}
}

func (c *Compat) ApplyProviderExtensions(payload map[string]any, extras map[string]any) map[string]any {
	return payload
}
