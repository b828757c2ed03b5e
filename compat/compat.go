// Package compat defines the per-provider normalization contract
// (spec.md §4.3): each family translates the unified call shape into
// its provider's wire format and back, and drives an incremental
// per-stream state machine for tool-call assembly.
package compat

import (
	"fmt"

	"github.com/taipm/llmadapter"
)

// StreamChunkResult is what ParseChunk reports for one incoming
// chunk: any text/reasoning delta, any tool events the chunk produced,
// usage if the chunk carried it, and whether the provider has signaled
// its tool calls are complete for this turn.
type StreamChunkResult struct {
	Text                  string
	Reasoning             string
	ToolEvents            []llmadapter.ToolEvent
	Usage                 *llmadapter.Usage
	FinishReason          *string
	FinishedWithToolCalls bool
}

// StreamState is a per-call, stateful tool-call assembler. A fresh
// StreamState must be created for every call; it is not safe to share
// across concurrent streams.
type StreamState interface {
	// ParseChunk folds one provider wire chunk (already JSON-decoded
	// into a generic shape by the invoker) into the running state and
	// returns what that chunk contributed.
	ParseChunk(chunk map[string]any) (StreamChunkResult, error)
}

// Compat is the capability set every provider family implements
// (spec.md §4.3).
type Compat interface {
	// BuildPayload renders a unified call into the provider's native
	// request shape (a JSON-able map for HTTP providers, or an
	// SDK-shaped map of param fields for SDK providers — the invoker
	// knows which and dispatches accordingly).
	BuildPayload(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice) (map[string]any, error)

	// ParseResponse converts a fully-received provider response into
	// the unified LLMResponse shape.
	ParseResponse(raw map[string]any, model string) (llmadapter.LLMResponse, error)

	// NewStreamState returns a fresh stateful assembler for one
	// streaming call.
	NewStreamState() StreamState

	// GetStreamingFlags returns the payload patch that turns a
	// built payload into a streaming request (e.g. {"stream": true});
	// SDK-driven providers that stream via a dedicated method return
	// an empty patch.
	GetStreamingFlags() map[string]any

	// SerializeTools and SerializeToolChoice expose the per-family
	// tool/tool-choice encoding to callers composing payloads
	// piecewise, independent of BuildPayload.
	SerializeTools(tools []llmadapter.UnifiedTool) (any, error)
	SerializeToolChoice(choice *llmadapter.ToolChoice, tools []llmadapter.UnifiedTool) (any, error)

	// ApplyProviderExtensions forwards known extension keys from
	// extras onto payload (e.g. OpenRouter's provider/transforms/
	// route/models), silently dropping anything unrecognized.
	ApplyProviderExtensions(payload map[string]any, extras map[string]any) map[string]any
}

// Factory resolves a Provider identity to its Compat implementation.
type Factory func(provider llmadapter.Provider) (Compat, error)

// builders is populated by each family package's init() via Register,
// so New works regardless of import order as long as the family
// package is imported somewhere in the program (blank-imported if its
// symbols aren't otherwise referenced).
var builders = map[llmadapter.Provider]func() Compat{}

// Register adds a family's constructor to the factory registry. Family
// packages call this from their own init().
func Register(provider llmadapter.Provider, build func() Compat) {
	builders[provider] = build
}

// New resolves provider to its Compat implementation.
func New(provider llmadapter.Provider) (Compat, error) {
	build, ok := builders[provider]
	if !ok {
		return nil, fmt.Errorf("compat: no implementation registered for provider %q", provider)
	}
	return build(), nil
}
