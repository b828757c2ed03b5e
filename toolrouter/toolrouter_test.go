package toolrouter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/tool"
)

func TestRouteAndInvokeDispatchesFunctionTool(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Add(tool.New("echo", "").WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	}))

	r, err := New(context.Background(), reg, nil, nil)
	require.NoError(t, err)

	result := r.RouteAndInvoke(context.Background(), "echo", map[string]any{"text": "hi"})
	assert.NoError(t, result.Err)
	assert.Equal(t, "hi", result.Value)
}

func TestRouteAndInvokeUnknownNameReturnsInBandError(t *testing.T) {
	r, err := New(context.Background(), tool.NewRegistry(), nil, nil)
	require.NoError(t, err)

	result := r.RouteAndInvoke(context.Background(), "nonexistent", nil)
	require.Error(t, result.Err)
	kind, ok := llmerr.KindOf(result.Err)
	assert.True(t, ok)
	assert.Equal(t, llmerr.KindToolExecutionFailed, kind)
}

func TestToolsReturnsSanitizedNames(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Add(tool.New("weird.name", ""))

	r, err := New(context.Background(), reg, nil, nil)
	require.NoError(t, err)

	tools := r.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "weird_name", tools[0].Name)

	canonical, ok := r.CanonicalName("weird_name")
	require.True(t, ok)
	assert.Equal(t, "weird.name", canonical)
}

func TestHandlerErrorBecomesToolExecutionFailed(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Add(tool.New("boom", "").WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
		return nil, assert.AnError
	}))

	r, err := New(context.Background(), reg, nil, nil)
	require.NoError(t, err)

	result := r.RouteAndInvoke(context.Background(), "boom", nil)
	require.Error(t, result.Err)
	kind, ok := llmerr.KindOf(result.Err)
	assert.True(t, ok)
	assert.Equal(t, llmerr.KindToolExecutionFailed, kind)
}
