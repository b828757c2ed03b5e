package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMathToolEvaluate(t *testing.T) {
	tl := NewMathTool()
	out, err := tl.Handler(context.Background(), map[string]any{
		"operation":  "evaluate",
		"expression": "sqrt(16) + 2",
	})
	require.NoError(t, err)
	assert.Equal(t, 6.0, out)
}

func TestMathToolStatisticsMean(t *testing.T) {
	tl := NewMathTool()
	out, err := tl.Handler(context.Background(), map[string]any{
		"operation": "statistics",
		"stat_type": "mean",
		"numbers":   []any{1.0, 2.0, 3.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out)
}

func TestMathToolUnknownOperation(t *testing.T) {
	tl := NewMathTool()
	_, err := tl.Handler(context.Background(), map[string]any{"operation": "bogus"})
	assert.Error(t, err)
}
