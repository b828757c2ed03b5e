package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderAddsRequiredParameter(t *testing.T) {
	tl := New("get_weather", "Get weather for a location").
		AddParameter("location", "string", "City name", true)
	props := tl.Parameters["properties"].(map[string]any)
	assert.Contains(t, props, "location")
	assert.Equal(t, []string{"location"}, tl.Parameters["required"])
}

func TestRegistryInvokeCallsHandler(t *testing.T) {
	r := NewRegistry()
	r.Add(New("echo", "echoes input").WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	}))
	out, err := r.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestRegistryInvokeUnknownToolReturnsErrNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegistryUnifiedDefaultsToAllTools(t *testing.T) {
	r := NewRegistry()
	r.Add(New("a", "")).Add(New("b", ""))
	unified := r.Unified(nil)
	assert.Len(t, unified, 2)
}
