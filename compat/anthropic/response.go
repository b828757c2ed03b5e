package anthropic

import (
	"fmt"

	"github.com/taipm/llmadapter"
)

var finishReasonMap = map[string]string{
	"end_turn":      "stop",
	"stop_sequence": "stop",
	"max_tokens":    "length",
	"tool_use":      "tool_calls",
}

func mapFinishReason(raw any) *string {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	if mapped, ok := finishReasonMap[s]; ok {
		return &mapped
	}
	return &s
}

func (c *Compat) ParseResponse(raw map[string]any, model string) (llmadapter.LLMResponse, error) {
	resp := llmadapter.LLMResponse{
		Provider: llmadapter.ProviderAnthropic,
		Model:    model,
		Role:     llmadapter.RoleAssistant,
	}
	resp.FinishReason = mapFinishReason(raw["stop_reason"])

	blocks, _ := raw["content"].([]any)
	var parts []llmadapter.ContentPart
	var reasoning string

	for i, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			return resp, fmt.Errorf("anthropic: malformed content block at index %d", i)
		}
		switch block["type"] {
		case "text":
			if text, ok := block["text"].(string); ok {
				parts = append(parts, llmadapter.Text(text))
			}
		case "thinking":
			if text, ok := block["thinking"].(string); ok {
				reasoning += text
			}
		case "tool_use":
			id, _ := block["id"].(string)
			if id == "" {
				id = fmt.Sprintf("call_%d", len(resp.ToolCalls))
			}
			name, _ := block["name"].(string)
			input, _ := block["input"].(map[string]any)
			if input == nil {
				input = map[string]any{}
			}
			resp.ToolCalls = append(resp.ToolCalls, llmadapter.ToolCall{
				ID: id, Name: name, Arguments: input,
			})
		}
	}
	resp.Content = llmadapter.NormalizeContent(parts)
	if reasoning != "" {
		resp.Reasoning = &llmadapter.Reasoning{Text: reasoning}
	}

	if usageRaw, ok := raw["usage"].(map[string]any); ok {
		resp.Usage = parseUsage(usageRaw)
	}
	return resp, nil
}

func parseUsage(raw map[string]any) *llmadapter.Usage {
	u := &llmadapter.Usage{}
	if v, ok := raw["input_tokens"]; ok {
		u.PromptTokens = intPtr(v)
	}
	if v, ok := raw["output_tokens"]; ok {
		u.CompletionTokens = intPtr(v)
	}
	return u
}

func intPtr(v any) *int {
	switch n := v.(type) {
	case float64:
		i := int(n)
		return &i
	case int:
		return &n
	default:
		return nil
	}
}
