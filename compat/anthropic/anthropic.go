// Package anthropic implements the Compat contract for Anthropic's
// Messages API, grounded on the message/tool conversion patterns in
// haasonsaas-nexus/internal/agent/providers/anthropic.go (the pack's
// only real Anthropic SDK integration) and generalized to spec.md
// §4.3's normative Anthropic rules.
package anthropic

import (
	"fmt"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
	"github.com/taipm/llmadapter/sanitize"
)

func init() {
	compat.Register(llmadapter.ProviderAnthropic, func() compat.Compat { return New() })
}

const (
	defaultMaxTokens      = 8192
	defaultThinkingBudget = 51200
)

type Compat struct{}

func New() *Compat { return &Compat{} }

func (c *Compat) GetStreamingFlags() map[string]any {
	return map[string]any{"stream": true}
}

func (c *Compat) BuildPayload(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice) (map[string]any, error) {
	system, rest := extractSystem(messages)

	maxTokens := defaultMaxTokens
	if settings.MaxTokens != nil {
		maxTokens = int(*settings.MaxTokens)
	}

	payload := map[string]any{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   convertMessages(rest),
	}
	if system != "" {
		payload["system"] = system
	}
	if settings.Temperature != nil {
		payload["temperature"] = *settings.Temperature
	}
	if settings.TopP != nil {
		payload["top_p"] = *settings.TopP
	}
	if len(settings.Stop) > 0 {
		payload["stop_sequences"] = settings.Stop
	}

	if shouldEnableThinking(settings, rest) {
		payload["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": settings.EffectiveReasoningBudget(defaultThinkingBudget),
		}
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

	// sdkParams carries the same call rendered as anthropic-sdk-go's
	// native param types, for SDKInvoker; the REST-shaped keys above
	// are unaffected and remain what every existing test reads.
	sp, err := buildSDKParams(model, settings, messages, tools, toolChoice, c)
	if err != nil {
		return nil, err
	}
	payload["sdkParams"] = sp

	return c.ApplyProviderExtensions(payload, settings.Extras), nil
}

// shouldEnableThinking implements spec.md §4.3's reasoning budget
// resolution: thinking is enabled only when the caller asked for it
// AND every assistant turn in the history already carries non-empty
// reasoning (Anthropic requires contiguous reasoning across turns).
func shouldEnableThinking(settings llmadapter.CallSettings, messages []llmadapter.Message) bool {
	if !settings.ReasoningEnabled() {
		return false
	}
	sawAssistantTurn := false
	for _, m := range messages {
		if m.Role != llmadapter.RoleAssistant {
			continue
		}
		sawAssistantTurn = true
		if m.Reasoning == nil || m.Reasoning.Text == "" {
			return false
		}
	}
	return sawAssistantTurn
}

// extractSystem pulls the first system message's text out as the
// top-level `system` string; subsequent system messages are dropped
// entirely, per spec.md §4.3.
func extractSystem(messages []llmadapter.Message) (string, []llmadapter.Message) {
	var system string
	found := false
	rest := make([]llmadapter.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == llmadapter.RoleSystem {
			if !found {
				system = textOnly(m.Content)
				found = true
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
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

// convertMessages implements spec.md §4.3's Anthropic message rules:
// empty/whitespace-only text blocks filtered; tool results flushed
// into a synthesized user message before the next assistant turn, or
// trailing at the end; assistant reasoning serializes thinking before
// text before tool_use.
func convertMessages(messages []llmadapter.Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	var pendingResults []map[string]any

	flush := func() {
		if len(pendingResults) == 0 {
			return
		}
		out = append(out, map[string]any{"role": "user", "content": pendingResults})
		pendingResults = nil
	}

	for _, m := range messages {
		switch m.Role {
		case llmadapter.RoleTool:
			pendingResults = append(pendingResults, map[string]any{
				"type":        "tool_result",
				"tool_use_id": m.ToolCallID,
				"content":     textOnly(m.Content),
			})
		case llmadapter.RoleUser:
			flush()
			out = append(out, map[string]any{"role": "user", "content": filterBlocks(m.Content)})
		case llmadapter.RoleAssistant:
			flush()
			out = append(out, map[string]any{"role": "assistant", "content": assistantBlocks(m)})
		}
	}
	flush()
	return out
}

func filterBlocks(parts []llmadapter.ContentPart) []map[string]any {
	out := make([]map[string]any, 0, len(parts))
	for _, p := range parts {
		if p.Type == llmadapter.ContentText && isBlank(p.Text) {
			continue
		}
		out = append(out, map[string]any{"type": "text", "text": p.Text})
	}
	return out
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// assistantBlocks orders thinking -> text -> tool_use, per spec.md
// §4.3. redacted:true reasoning is still included; the flag is
// informational only.
func assistantBlocks(m llmadapter.Message) []map[string]any {
	var blocks []map[string]any
	if m.Reasoning != nil && m.Reasoning.Text != "" {
		blocks = append(blocks, map[string]any{
			"type":     "thinking",
			"thinking": m.Reasoning.Text,
		})
	}
	for _, p := range m.Content {
		if p.Type == llmadapter.ContentText && isBlank(p.Text) {
			continue
		}
		if p.Type == llmadapter.ContentText {
			blocks = append(blocks, map[string]any{"type": "text", "text": p.Text})
		}
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, map[string]any{
			"type":  "tool_use",
			"id":    tc.ID,
			"name":  sanitize.Sanitize(tc.Name),
			"input": tc.Arguments,
		})
	}
	return blocks
}

func (c *Compat) SerializeTools(tools []llmadapter.UnifiedTool) (any, error) {
	out := make([]map[string]any, len(tools))
	for i, t := range tools {
		out[i] = map[string]any{
			"name":         sanitize.Sanitize(t.Name),
			"description":  t.Description,
			"input_schema": t.ParametersJSONSchema,
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
		return map[string]any{"type": "auto"}, nil
	case llmadapter.ToolChoiceNone:
		return map[string]any{"type": "none"}, nil
	case llmadapter.ToolChoiceRequired:
		if len(choice.Allowed) == 1 {
			return map[string]any{"type": "tool", "name": sanitize.Sanitize(choice.Allowed[0])}, nil
		}
		return map[string]any{"type": "any"}, nil
	case llmadapter.ToolChoiceSingle:
		return map[string]any{"type": "tool", "name": sanitize.Sanitize(choice.Name)}, nil
	default:
		return nil, fmt.Errorf("anthropic: unknown tool choice kind %q", choice.Kind)
	}
}

// ApplyProviderExtensions is a no-op: Anthropic has no equivalent of
// OpenRouter's payload-level routing extensions in this module's
// scope.
func (c *Compat) ApplyProviderExtensions(payload map[string]any, extras map[string]any) map[string]any {
	return payload
}
