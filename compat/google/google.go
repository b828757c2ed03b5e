// Package google implements the Compat contract for the Google Gemini
// SDK family, grounded on the teacher's agent/gemini_v3.go (the
// google.golang.org/genai v1.36.0 adapter: convertMessages,
// createGenerationConfig, convertResponse) and on
// haasonsaas-nexus/internal/agent/toolconv/gemini.go for tool/schema
// conversion, generalized to spec.md §4.3's normative Gemini rules.
package google

import (
	"fmt"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
	"github.com/taipm/llmadapter/sanitize"
	"github.com/taipm/llmadapter/schema"
)

func init() {
	compat.Register(llmadapter.ProviderGoogle, func() compat.Compat { return New() })
}

const defaultThinkingBudget = 51200

type Compat struct{}

func New() *Compat { return &Compat{} }

// GetStreamingFlags returns an empty patch: the Gemini SDK streams via
// a dedicated method rather than a request-body flag.
func (c *Compat) GetStreamingFlags() map[string]any {
	return map[string]any{}
}

func (c *Compat) BuildPayload(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice) (map[string]any, error) {
	payload := map[string]any{
		"model":    model,
		"contents": convertMessages(messages),
	}

	if instruction := aggregateSystemInstruction(messages); instruction != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": instruction}},
		}
	}

	generationConfig := map[string]any{}
	if settings.Temperature != nil {
		generationConfig["temperature"] = *settings.Temperature
	}
	if settings.TopP != nil {
		generationConfig["topP"] = *settings.TopP
	}
	if settings.MaxTokens != nil {
		generationConfig["maxOutputTokens"] = int(*settings.MaxTokens)
	}
	if len(settings.Stop) > 0 {
		generationConfig["stopSequences"] = settings.Stop
	}
	if settings.ReasoningEnabled() {
		generationConfig["thinkingConfig"] = map[string]any{
			"thinkingBudget": settings.EffectiveReasoningBudget(defaultThinkingBudget),
		}
	}
	if len(generationConfig) > 0 {
		payload["generationConfig"] = generationConfig
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
			payload["toolConfig"] = tc
		}
	}

	// sdkRequest carries the same call rendered as genai's native
	// request types, for SDKInvoker; the REST-shaped keys above are
	// unaffected and remain what every existing test reads.
	req, err := buildSDKRequest(model, settings, messages, tools, toolChoice)
	if err != nil {
		return nil, err
	}
	payload["sdkRequest"] = req

	return c.ApplyProviderExtensions(payload, settings.Extras), nil
}

// aggregateSystemInstruction implements spec.md §4.3's Gemini rule:
// every system message's text is concatenated into one instruction;
// non-text parts are filtered; if nothing remains, systemInstruction
// is absent (signaled here by an empty string).
func aggregateSystemInstruction(messages []llmadapter.Message) string {
	var out string
	for _, m := range messages {
		if m.Role != llmadapter.RoleSystem {
			continue
		}
		for _, p := range m.Content {
			if p.Type == llmadapter.ContentText {
				out += p.Text
			}
		}
	}
	return out
}

// convertMessages implements spec.md §4.3's Gemini message rules:
// system messages are dropped here (aggregated separately);
// assistant -> model; tool calls become functionCall parts (names not
// sanitized at this stage); tool results become a single user content
// with one functionResponse part whose name IS sanitized.
func convertMessages(messages []llmadapter.Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llmadapter.RoleSystem:
			continue
		case llmadapter.RoleTool:
			out = append(out, map[string]any{
				"role":  "user",
				"parts": []map[string]any{functionResponsePart(m)},
			})
		case llmadapter.RoleAssistant:
			out = append(out, map[string]any{
				"role":  "model",
				"parts": assistantParts(m),
			})
		default:
			out = append(out, map[string]any{
				"role":  "user",
				"parts": userParts(m.Content),
			})
		}
	}
	return out
}

func userParts(content []llmadapter.ContentPart) []map[string]any {
	out := make([]map[string]any, 0, len(content))
	for _, p := range content {
		if p.Type != llmadapter.ContentText {
			continue
		}
		out = append(out, map[string]any{"text": p.Text})
	}
	return out
}

func assistantParts(m llmadapter.Message) []map[string]any {
	var out []map[string]any
	for _, p := range m.Content {
		if p.Type == llmadapter.ContentText {
			out = append(out, map[string]any{"text": p.Text})
		}
	}
	for _, tc := range m.ToolCalls {
		out = append(out, map[string]any{
			"functionCall": map[string]any{
				"name": tc.Name,
				"args": tc.Arguments,
			},
		})
	}
	return out
}

// functionResponsePart implements spec.md §4.3: the sanitized name,
// and a response object of {output: concatenated-text} when the tool
// message carries text, or the raw result otherwise.
func functionResponsePart(m llmadapter.Message) map[string]any {
	var texts []string
	var rawResult any
	for _, p := range m.Content {
		if p.Type == llmadapter.ContentText {
			texts = append(texts, p.Text)
		}
		if p.Type == llmadapter.ContentToolResult {
			rawResult = p.ToolResult
		}
	}

	var response any
	if len(texts) > 0 {
		joined := ""
		for i, t := range texts {
			if i > 0 {
				joined += "\n"
			}
			joined += t
		}
		response = map[string]any{"output": joined}
	} else {
		response = rawResult
	}

	return map[string]any{
		"functionResponse": map[string]any{
			"name":     sanitize.Sanitize(m.Name),
			"response": response,
		},
	}
}

func (c *Compat) SerializeTools(tools []llmadapter.UnifiedTool) (any, error) {
	decls := make([]map[string]any, len(tools))
	for i, t := range tools {
		decls[i] = map[string]any{
			"name":        sanitize.Sanitize(t.Name),
			"description": t.Description,
			"parameters":  schema.ToGemini(t.ParametersJSONSchema),
		}
	}
	return []map[string]any{{"functionDeclarations": decls}}, nil
}

func (c *Compat) SerializeToolChoice(choice *llmadapter.ToolChoice, tools []llmadapter.UnifiedTool) (any, error) {
	if choice == nil {
		return nil, nil
	}
	switch choice.Kind {
	case llmadapter.ToolChoiceAuto:
		return map[string]any{"functionCallingConfig": map[string]any{"mode": "AUTO"}}, nil
	case llmadapter.ToolChoiceNone:
		return map[string]any{"functionCallingConfig": map[string]any{"mode": "NONE"}}, nil
	case llmadapter.ToolChoiceRequired:
		cfg := map[string]any{"mode": "ANY"}
		if len(choice.Allowed) > 0 {
			names := make([]string, len(choice.Allowed))
			for i, n := range choice.Allowed {
				names[i] = sanitize.Sanitize(n)
			}
			cfg["allowedFunctionNames"] = names
		}
		return map[string]any{"functionCallingConfig": cfg}, nil
	case llmadapter.ToolChoiceSingle:
		return map[string]any{"functionCallingConfig": map[string]any{
			"mode":                 "ANY",
			"allowedFunctionNames": []string{sanitize.Sanitize(choice.Name)},
		}}, nil
	default:
		return nil, fmt.Errorf("google: unknown tool choice kind %q", choice.Kind)
	}
}

// ApplyProviderExtensions is a no-op: Gemini has no documented
// payload-level routing extensions in this module's scope.
func (c *Compat) ApplyProviderExtensions(payload map[string]any, extras map[string]any) map[string]any {
	return payload
}
