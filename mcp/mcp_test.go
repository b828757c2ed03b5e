package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolUnifiedCarriesSchema(t *testing.T) {
	tl := Tool{
		ServerID:    "files",
		Name:        "read_file",
		Description: "reads a file",
		InputSchema: map[string]any{"type": "object"},
	}
	unified := tl.Unified()
	assert.Equal(t, "read_file", unified.Name)
	assert.Equal(t, map[string]any{"type": "object"}, unified.ParametersJSONSchema)
}

func TestSchemaToMapFallsBackToEmpty(t *testing.T) {
	assert.Equal(t, map[string]any{}, schemaToMap("not a map"))
	assert.Equal(t, map[string]any{"type": "object"}, schemaToMap(map[string]any{"type": "object"}))
}

func TestManagerConnectIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	assert.Empty(t, m.clients)

	m.clients["files"] = nil
	assert.NoError(t, m.Connect(context.Background(), ServerConfig{ID: "files", Command: "does-not-exist"}))
	assert.Len(t, m.clients, 1)
}

func TestManagerInvokeUnknownServerErrors(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Invoke(context.Background(), "missing", "tool", nil)
	assert.Error(t, err)
}
