// Package tool is the local function tool registry: the in-process
// half of the coordinator's tool namespace (spec.md §4.11), grounded
// on the teacher's agent/tool.go Tool/NewTool/AddParameter/WithHandler
// builder, generalized from a JSON-string handler signature to the
// unified map[string]any argument shape and a context-aware handler.
package tool

import (
	"context"
	"fmt"

	"github.com/taipm/llmadapter"
)

// Handler executes a tool call's arguments and returns a JSON-able
// result (or an error, which the router materializes as a
// tool_execution_failed tool message rather than propagating).
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one locally-registered function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// New creates a Tool with an empty object schema; chain AddParameter
// calls to build it up, then WithHandler to attach behavior.
func New(name, description string) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
	}
}

// AddParameter adds one property to the tool's parameter schema,
// marking it required when requested.
func (t *Tool) AddParameter(name, paramType, description string, required bool) *Tool {
	props, _ := t.Parameters["properties"].(map[string]any)
	props[name] = map[string]any{
		"type":        paramType,
		"description": description,
	}
	if required {
		reqs, _ := t.Parameters["required"].([]string)
		t.Parameters["required"] = append(reqs, name)
	}
	return t
}

// WithHandler attaches the function implementation.
func (t *Tool) WithHandler(h Handler) *Tool {
	t.Handler = h
	return t
}

// UnifiedTool renders t as the provider-agnostic tool shape the
// Compat/schema layers consume.
func (t *Tool) UnifiedTool() llmadapter.UnifiedTool {
	return llmadapter.UnifiedTool{
		Name:                 t.Name,
		Description:          t.Description,
		ParametersJSONSchema: t.Parameters,
	}
}

// Registry is the set of local function tools available to a call,
// keyed by canonical name.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]*Tool{}}
}

// Add registers t, overwriting any prior tool of the same name.
func (r *Registry) Add(t *Tool) *Registry {
	r.tools[t.Name] = t
	return r
}

// Get looks up a tool by canonical name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names lists every registered canonical tool name. Order is not
// guaranteed; callers that need determinism should sort.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Unified renders the named subset (or every tool, if names is empty)
// as UnifiedTools.
func (r *Registry) Unified(names []string) []llmadapter.UnifiedTool {
	if len(names) == 0 {
		names = r.Names()
	}
	out := make([]llmadapter.UnifiedTool, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			out = append(out, t.UnifiedTool())
		}
	}
	return out
}

// Invoke runs the named tool's handler. ErrNotFound is returned
// (wrapped) when no such tool is registered.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool: %w: %q", ErrNotFound, name)
	}
	if t.Handler == nil {
		return nil, fmt.Errorf("tool: %q has no handler", name)
	}
	return t.Handler(ctx, args)
}

// ErrNotFound is wrapped into Invoke's error when the name is
// unregistered, so callers can errors.Is against it.
var ErrNotFound = fmt.Errorf("tool not found")

// StringParam, NumberParam, BoolParam, ArrayParam, and EnumParam are
// schema-fragment helpers mirroring the teacher's agent.StringParam
// family, generalized to map[string]any.
func StringParam(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func NumberParam(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func BoolParam(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func ArrayParam(description, itemType string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items":       map[string]any{"type": itemType},
	}
}

func EnumParam(description string, values ...string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}
