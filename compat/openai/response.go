package openai

import (
	"fmt"

	"github.com/taipm/llmadapter"
)

// finishReason covers spec.md §4.3's table: OpenAI values
// pass through unchanged (stop/length/tool_calls/content_filter/
// function_call), as does anything unrecognized.
func finishReason(raw any) *string {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func (c *Compat) ParseResponse(raw map[string]any, model string) (llmadapter.LLMResponse, error) {
	resp := llmadapter.LLMResponse{
		Provider: llmadapter.ProviderOpenAI,
		Model:    model,
		Role:     llmadapter.RoleAssistant,
	}

	choices, _ := raw["choices"].([]any)
	if len(choices) == 0 {
		resp.Content = llmadapter.NormalizeContent(nil)
		return resp, nil
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return resp, fmt.Errorf("openai: malformed choice at index 0")
	}
	resp.FinishReason = finishReason(choice["finish_reason"])

	message, _ := choice["message"].(map[string]any)
	if message == nil {
		resp.Content = llmadapter.NormalizeContent(nil)
		return resp, nil
	}

	var parts []llmadapter.ContentPart
	if text, ok := message["content"].(string); ok && text != "" {
		parts = append(parts, llmadapter.Text(text))
	}
	if refusal, ok := message["refusal"].(string); ok && refusal != "" {
		parts = append(parts, llmadapter.Text(refusal))
	}
	resp.Content = llmadapter.NormalizeContent(parts)

	if rawCalls, ok := message["tool_calls"].([]any); ok {
		for i, rc := range rawCalls {
			tc, err := parseToolCall(rc, i)
			if err != nil {
				return resp, err
			}
			resp.ToolCalls = append(resp.ToolCalls, tc)
		}
	}

	if usageRaw, ok := raw["usage"].(map[string]any); ok {
		resp.Usage = parseUsage(usageRaw)
	}

	return resp, nil
}

func parseToolCall(rc any, index int) (llmadapter.ToolCall, error) {
	m, ok := rc.(map[string]any)
	if !ok {
		return llmadapter.ToolCall{}, fmt.Errorf("openai: malformed tool_calls entry at index %d", index)
	}
	id, _ := m["id"].(string)
	if id == "" {
		id = fmt.Sprintf("call_%d", index)
	}
	fn, _ := m["function"].(map[string]any)
	name, _ := fn["name"].(string)
	argsStr, _ := fn["arguments"].(string)
	return llmadapter.ToolCall{
		ID:        id,
		Name:      name,
		Arguments: llmadapter.ParseArguments(argsStr),
	}, nil
}

func parseUsage(raw map[string]any) *llmadapter.Usage {
	u := &llmadapter.Usage{}
	if v, ok := raw["prompt_tokens"]; ok {
		u.PromptTokens = intPtrFromAny(v)
	}
	if v, ok := raw["completion_tokens"]; ok {
		u.CompletionTokens = intPtrFromAny(v)
	}
	if v, ok := raw["total_tokens"]; ok {
		u.TotalTokens = intPtrFromAny(v)
	}
	return u
}

func intPtrFromAny(v any) *int {
	if v == nil {
		return nil
	}
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
