package openairesp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/llmadapter"
)

func TestBuildPayloadAggregatesSystemIntoInstructions(t *testing.T) {
	c := New()
	messages := []llmadapter.Message{
		llmadapter.SystemMessage("be terse."),
		llmadapter.UserMessage("hi"),
	}
	payload, err := c.BuildPayload("gpt-4o", llmadapter.CallSettings{}, messages, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "be terse.", payload["instructions"])
}

func TestBuildPayloadToolCallBecomesFunctionCallItem(t *testing.T) {
	c := New()
	assistant := llmadapter.Message{
		Role:      llmadapter.RoleAssistant,
		ToolCalls: []llmadapter.ToolCall{{ID: "call_1", Name: "search", Arguments: map[string]any{"q": "x"}}},
	}
	payload, err := c.BuildPayload("gpt-4o", llmadapter.CallSettings{}, []llmadapter.Message{assistant}, nil, nil)
	require.NoError(t, err)
	input := payload["input"].([]map[string]any)
	require.Len(t, input, 1)
	assert.Equal(t, "function_call", input[0]["type"])
}

func TestParseResponseExtractsTextAndToolCalls(t *testing.T) {
	c := New()
	raw := map[string]any{
		"status": "completed",
		"output": []any{
			map[string]any{
				"type": "message",
				"content": []any{
					map[string]any{"text": "hello there"},
				},
			},
			map[string]any{
				"type": "function_call", "call_id": "call_1", "name": "search", "arguments": `{"q":"x"}`,
			},
		},
	}
	resp, err := c.ParseResponse(raw, "gpt-4o")
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "hello there", resp.Content[0].Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "search", resp.ToolCalls[0].Name)
}

func TestStreamStateToolCallLifecycle(t *testing.T) {
	c := New()
	state := c.NewStreamState()

	r1, err := state.ParseChunk(map[string]any{
		"type": "response.output_item.added", "output_index": 0.0,
		"item": map[string]any{"type": "function_call", "call_id": "call_1", "name": "search"},
	})
	require.NoError(t, err)
	require.Len(t, r1.ToolEvents, 1)

	r2, err := state.ParseChunk(map[string]any{
		"type": "response.function_call_arguments.delta", "output_index": 0.0, "delta": `{"q":"x"}`,
	})
	require.NoError(t, err)
	require.Len(t, r2.ToolEvents, 1)

	r3, err := state.ParseChunk(map[string]any{
		"type": "response.output_item.done", "output_index": 0.0,
	})
	require.NoError(t, err)
	require.Len(t, r3.ToolEvents, 1)
	assert.Equal(t, llmadapter.ToolEventEnd, r3.ToolEvents[0].Kind)
}
