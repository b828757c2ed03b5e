// Package mcp is the MCP half of the coordinator's tool namespace
// (spec.md §4.10): it discovers tools from configured MCP servers and
// invokes them, wrapping github.com/modelcontextprotocol/go-sdk's
// client session API. The manager/client split and connect/discover/
// invoke lifecycle is grounded on
// haasonsaas-nexus/internal/mcp/manager.go and client.go, which
// implement the same responsibilities by hand against a bespoke
// JSON-RPC transport; this package gets that lifecycle from the
// official SDK instead.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/llmerr"
)

// ServerConfig names one MCP server to connect to over stdio.
type ServerConfig struct {
	ID      string
	Command string
	Args    []string
	Env     []string
}

// Tool is one tool an MCP server advertised, carrying the server it
// came from so invocation can be routed back to the right session.
type Tool struct {
	ServerID    string
	Name        string
	Description string
	InputSchema map[string]any
}

func (t Tool) Unified() llmadapter.UnifiedTool {
	return llmadapter.UnifiedTool{
		Name:                 t.Name,
		Description:          t.Description,
		ParametersJSONSchema: t.InputSchema,
	}
}

// Manager owns one client session per configured server and serves
// discovery/invocation across all of them.
type Manager struct {
	logger  *slog.Logger
	clients map[string]*mcp.ClientSession

	mu sync.RWMutex
}

// NewManager creates an empty Manager. Call Connect for each
// configured server before Discover/Invoke.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger.With("component", "mcp"),
		clients: map[string]*mcp.ClientSession{},
	}
}

// Connect starts cfg.Command as a subprocess MCP server over stdio and
// stores the resulting session under cfg.ID.
func (m *Manager) Connect(ctx context.Context, cfg ServerConfig) error {
	m.mu.RLock()
	_, exists := m.clients[cfg.ID]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "llmadapter", Version: "0.1.0"}, nil)
	transport := &mcp.CommandTransport{Command: cfg.Command, Args: cfg.Args, Env: cfg.Env}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp: connect to %q: %w", cfg.ID, err)
	}

	m.mu.Lock()
	m.clients[cfg.ID] = session
	m.mu.Unlock()

	m.logger.Info("connected to MCP server", "server", cfg.ID)
	return nil
}

// Close disconnects every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for id, session := range m.clients {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.clients, id)
	}
	return firstErr
}

// Discover lists tools across every connected server. A server whose
// listing fails is logged and skipped — spec.md §7's DiscoveryError:
// logged, swallowed, proceed with partial tools.
func (m *Manager) Discover(ctx context.Context) []Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Tool
	for serverID, session := range m.clients {
		result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
		if err != nil {
			m.logger.Warn("mcp tool discovery failed", "server", serverID, "error", err)
			_ = llmerr.Discovery(serverID, "tools/list failed", err)
			continue
		}
		for _, t := range result.Tools {
			out = append(out, Tool{
				ServerID:    serverID,
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaToMap(t.InputSchema),
			})
		}
	}
	return out
}

// Invoke calls a tool on the server it was discovered from.
func (m *Manager) Invoke(ctx context.Context, serverID, name string, args map[string]any) (any, error) {
	m.mu.RLock()
	session, ok := m.clients[serverID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcp: no connected session for server %q", serverID)
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp: call %q on %q: %w", name, serverID, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("mcp: tool %q reported an error result", name)
	}
	return contentToResult(result.Content), nil
}

// schemaToMap renders the SDK's typed input schema back into a plain
// map so it can flow through the same schema converter every other
// tool source uses.
func schemaToMap(schema any) map[string]any {
	m, ok := schema.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

// contentToResult flattens an MCP tool result's content blocks into a
// single value: text blocks are concatenated, and a lone non-text
// block is returned as-is.
func contentToResult(content []mcp.Content) any {
	var text string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			text += tc.Text
		}
	}
	if text == "" && len(content) == 1 {
		if _, ok := content[0].(*mcp.TextContent); !ok {
			return content[0]
		}
	}
	return text
}
