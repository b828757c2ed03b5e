package google

import (
	"fmt"

	"github.com/taipm/llmadapter"
)

func (c *Compat) ParseResponse(raw map[string]any, model string) (llmadapter.LLMResponse, error) {
	resp := llmadapter.LLMResponse{
		Provider: llmadapter.ProviderGoogle,
		Model:    model,
		Role:     llmadapter.RoleAssistant,
	}

	candidates, _ := raw["candidates"].([]any)
	if len(candidates) == 0 {
		resp.Content = llmadapter.NormalizeContent(nil)
		return resp, nil
	}
	candidate, ok := candidates[0].(map[string]any)
	if !ok {
		return resp, fmt.Errorf("google: malformed candidate at index 0")
	}
	resp.FinishReason = finishReason(candidate["finishReason"])

	content, _ := candidate["content"].(map[string]any)
	parts, _ := content["parts"].([]any)

	var textParts []llmadapter.ContentPart
	var reasoning string
	callIndex := 0
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if isThought, _ := part["thought"].(bool); isThought {
			if text, ok := part["text"].(string); ok {
				reasoning += text
			}
			continue
		}
		if fc, ok := part["functionCall"].(map[string]any); ok {
			name, _ := fc["name"].(string)
			args, _ := fc["args"].(map[string]any)
			if args == nil {
				args = map[string]any{}
			}
			resp.ToolCalls = append(resp.ToolCalls, llmadapter.ToolCall{
				ID:        fmt.Sprintf("call_%d", callIndex),
				Name:      name,
				Arguments: args,
			})
			callIndex++
			continue
		}
		if text, ok := part["text"].(string); ok {
			textParts = append(textParts, llmadapter.Text(text))
		}
	}
	resp.Content = llmadapter.NormalizeContent(textParts)
	if reasoning != "" {
		resp.Reasoning = &llmadapter.Reasoning{Text: reasoning}
	}

	if usageRaw, ok := raw["usageMetadata"].(map[string]any); ok {
		resp.Usage = parseUsage(usageRaw)
	}
	return resp, nil
}

func finishReason(raw any) *string {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func parseUsage(raw map[string]any) *llmadapter.Usage {
	u := &llmadapter.Usage{}
	if v, ok := raw["promptTokenCount"]; ok {
		u.PromptTokens = intPtr(v)
	}
	if v, ok := raw["candidatesTokenCount"]; ok {
		u.CompletionTokens = intPtr(v)
	}
	if v, ok := raw["totalTokenCount"]; ok {
		u.TotalTokens = intPtr(v)
	}
	if v, ok := raw["thoughtsTokenCount"]; ok {
		u.ReasoningTokens = intPtr(v)
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
