package openairesp

import (
	"fmt"

	"github.com/taipm/llmadapter"
)

func (c *Compat) ParseResponse(raw map[string]any, model string) (llmadapter.LLMResponse, error) {
	resp := llmadapter.LLMResponse{
		Provider: llmadapter.ProviderOpenAIResponse,
		Model:    model,
		Role:     llmadapter.RoleAssistant,
	}

	output, _ := raw["output"].([]any)
	var parts []llmadapter.ContentPart
	callIndex := 0

	for _, o := range output {
		item, ok := o.(map[string]any)
		if !ok {
			return resp, fmt.Errorf("openairesp: malformed output item")
		}
		switch item["type"] {
		case "message":
			content, _ := item["content"].([]any)
			for _, c := range content {
				cm, ok := c.(map[string]any)
				if !ok {
					continue
				}
				if text, ok := cm["text"].(string); ok {
					parts = append(parts, llmadapter.Text(text))
				}
			}
		case "function_call":
			id, _ := item["call_id"].(string)
			if id == "" {
				id = fmt.Sprintf("call_%d", callIndex)
			}
			name, _ := item["name"].(string)
			argsStr, _ := item["arguments"].(string)
			resp.ToolCalls = append(resp.ToolCalls, llmadapter.ToolCall{
				ID: id, Name: name, Arguments: llmadapter.ParseArguments(argsStr),
			})
			callIndex++
		}
	}
	resp.Content = llmadapter.NormalizeContent(parts)

	if status, ok := raw["status"].(string); ok && status != "" {
		resp.FinishReason = &status
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
	if v, ok := raw["total_tokens"]; ok {
		u.TotalTokens = intPtr(v)
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
