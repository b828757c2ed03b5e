// Package openrouter implements the Compat contract for OpenRouter,
// which speaks the same wire format as OpenAI chat-completions plus a
// handful of its own routing extension keys (spec.md §4.3:
// applyProviderExtensions forwards `provider`, `transforms`, `route`,
// `models`; anything else is dropped).
package openrouter

import (
	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
	"github.com/taipm/llmadapter/compat/openai"
)

func init() {
	compat.Register(llmadapter.ProviderOpenRouter, func() compat.Compat { return New() })
}

// forwardedExtensionKeys are the only settings.extras keys OpenRouter's
// payload-level extensions recognize; everything else is silently
// dropped, per spec.md §4.3.
var forwardedExtensionKeys = []string{"provider", "transforms", "route", "models"}

// Compat wraps compat/openai's Compat, since OpenRouter's request and
// response shapes are OpenAI-compatible, and adds OpenRouter's own
// routing extensions on top.
type Compat struct {
	*openai.Compat
}

func New() *Compat {
	return &Compat{Compat: openai.New()}
}

// ApplyProviderExtensions overrides the embedded OpenAI no-op to
// forward OpenRouter's recognized routing keys.
func (c *Compat) ApplyProviderExtensions(payload map[string]any, extras map[string]any) map[string]any {
	for _, key := range forwardedExtensionKeys {
		if v, ok := extras[key]; ok {
			payload[key] = v
		}
	}
	return payload
}

// BuildPayload delegates to the embedded OpenAI Compat but routes
// extension application through this package's ApplyProviderExtensions
// rather than the embedded no-op.
func (c *Compat) BuildPayload(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice) (map[string]any, error) {
	withoutExtras := settings
	withoutExtras.Extras = nil
	payload, err := c.Compat.BuildPayload(model, withoutExtras, messages, tools, toolChoice)
	if err != nil {
		return nil, err
	}
	return c.ApplyProviderExtensions(payload, settings.Extras), nil
}

// ParseResponse delegates to the embedded OpenAI Compat (the wire
// shape is identical) but tags the result with the OpenRouter provider
// identity.
func (c *Compat) ParseResponse(raw map[string]any, model string) (llmadapter.LLMResponse, error) {
	resp, err := c.Compat.ParseResponse(raw, model)
	if err != nil {
		return resp, err
	}
	resp.Provider = llmadapter.ProviderOpenRouter
	return resp, nil
}
