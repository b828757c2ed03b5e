// Package toolrouter unifies local function tools and MCP tools under
// one namespace and dispatches a model's tool calls to whichever
// source owns the name (spec.md §4.4). It is the seam between the
// coordinator's tool-use loop and the two concrete tool sources in
// tool and mcp, grounded on the same routing shape
// haasonsaas-nexus/internal/agent combines its local registry and its
// mcp.Manager under, generalized to this module's error taxonomy.
package toolrouter

import (
	"context"
	"fmt"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/mcp"
	"github.com/taipm/llmadapter/sanitize"
	"github.com/taipm/llmadapter/tool"
)

// Result is the outcome of RouteAndInvoke: exactly one of Value or
// Err is meaningful, mirroring spec.md §4.4's "return a result ...
// but do not throw" contract — router failures never propagate as Go
// errors out of RouteAndInvoke, they are reported in-band as Result.Err so the
// coordinator can materialize them as tool messages.
type Result struct {
	Value any
	Err   error
}

// Router is the per-call unified view over function tools and MCP
// servers. It is built fresh for each coordinator call since MCP
// discovery and the canonical<->sanitized name map are call-scoped.
type Router struct {
	functions *tool.Registry
	mcp       *mcp.Manager

	names   *sanitize.Registry
	mcpOf   map[string]mcp.Tool // canonical name -> owning MCP tool
	unified []llmadapter.UnifiedTool
}

// New builds a Router over the given function registry (may be nil)
// and MCP manager (may be nil), restricted to functionToolNames (empty
// means every registered function tool). MCP tools are discovered from
// every server the manager is connected to; a server whose listing
// fails is logged by the manager and simply contributes no tools here,
// per spec.md §4.4's discovery-failure rule.
func New(ctx context.Context, functions *tool.Registry, mcpMgr *mcp.Manager, functionToolNames []string) (*Router, error) {
	r := &Router{
		functions: functions,
		mcp:       mcpMgr,
		names:     sanitize.New(),
		mcpOf:     map[string]mcp.Tool{},
	}

	if functions != nil {
		for _, u := range functions.Unified(functionToolNames) {
			sanitized, err := r.names.Register(u.Name)
			if err != nil {
				return nil, fmt.Errorf("toolrouter: %w", err)
			}
			u.Name = sanitized
			r.unified = append(r.unified, u)
		}
	}

	if mcpMgr != nil {
		for _, t := range mcpMgr.Discover(ctx) {
			canonical := t.ServerID + "." + t.Name
			sanitized, err := r.names.Register(canonical)
			if err != nil {
				return nil, fmt.Errorf("toolrouter: %w", err)
			}
			r.mcpOf[canonical] = t
			u := t.Unified()
			u.Name = sanitized
			r.unified = append(r.unified, u)
		}
	}

	return r, nil
}

// Tools returns the sanitized unified tool list to hand to Compat's
// SerializeTools.
func (r *Router) Tools() []llmadapter.UnifiedTool {
	return r.unified
}

// CanonicalName resolves a sanitized name (as returned in a model's
// tool call) back to the canonical name the router dispatches on. ok
// is false when the model referenced a name the router never
// advertised.
func (r *Router) CanonicalName(sanitized string) (string, bool) {
	return r.names.CanonicalOf(sanitized)
}

// RouteAndInvoke dispatches one tool call by canonical name. Per
// spec.md §4.4 step 1-3: an unknown name or a handler/MCP-call error
// both come back as a Result with Err set rather than a returned Go
// error, so the coordinator's loop never has to special-case routing
// failures — it always has a Result to turn into a tool message.
func (r *Router) RouteAndInvoke(ctx context.Context, canonicalName string, args map[string]any) Result {
	if mcpTool, ok := r.mcpOf[canonicalName]; ok {
		value, err := r.mcp.Invoke(ctx, mcpTool.ServerID, mcpTool.Name, args)
		if err != nil {
			return Result{Err: llmerr.ToolExecutionFailed(canonicalName, "mcp invocation failed", err)}
		}
		return Result{Value: value}
	}

	if r.functions != nil {
		if _, ok := r.functions.Get(canonicalName); ok {
			value, err := r.functions.Invoke(ctx, canonicalName, args)
			if err != nil {
				return Result{Err: llmerr.ToolExecutionFailed(canonicalName, "handler returned an error", err)}
			}
			return Result{Value: value}
		}
	}

	return Result{Err: llmerr.ToolExecutionFailed(canonicalName, "no tool registered under this name", nil)}
}
