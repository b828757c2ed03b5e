package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/llmadapter"
)

func TestAggregateSystemInstructionConcatenatesMultiple(t *testing.T) {
	messages := []llmadapter.Message{
		llmadapter.SystemMessage("first."),
		llmadapter.SystemMessage("second."),
		llmadapter.UserMessage("hi"),
	}
	got := aggregateSystemInstruction(messages)
	assert.Equal(t, "first.second.", got)
}

func TestBuildPayloadOmitsSystemInstructionWhenEmpty(t *testing.T) {
	c := New()
	payload, err := c.BuildPayload("gemini-1.5-pro", llmadapter.CallSettings{}, []llmadapter.Message{
		llmadapter.UserMessage("hi"),
	}, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, payload, "systemInstruction")
}

func TestConvertMessagesAssistantRoleBecomesModel(t *testing.T) {
	out := convertMessages([]llmadapter.Message{llmadapter.AssistantMessage("hi")})
	require.Len(t, out, 1)
	assert.Equal(t, "model", out[0]["role"])
}

func TestFunctionResponsePartSanitizesName(t *testing.T) {
	msg := llmadapter.ToolMessage("call_1", "search.docs", "result text")
	part := functionResponsePart(msg)
	fr, ok := part["functionResponse"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "search_docs", fr["name"])
}

func TestParseResponseFiltersThoughtParts(t *testing.T) {
	c := New()
	raw := map[string]any{
		"candidates": []any{
			map[string]any{
				"finishReason": "STOP",
				"content": map[string]any{
					"parts": []any{
						map[string]any{"thought": true, "text": "reasoning..."},
						map[string]any{"text": "final answer"},
					},
				},
			},
		},
		"usageMetadata": map[string]any{"thoughtsTokenCount": 10.0, "totalTokenCount": 50.0},
	}
	resp, err := c.ParseResponse(raw, "gemini-1.5-pro")
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "final answer", resp.Content[0].Text)
	require.NotNil(t, resp.Reasoning)
	assert.Equal(t, "reasoning...", resp.Reasoning.Text)
	require.NotNil(t, resp.Usage.ReasoningTokens)
	assert.Equal(t, 10, *resp.Usage.ReasoningTokens)
}

func TestStreamStateEmitsAllThreeEventsInOneChunk(t *testing.T) {
	c := New()
	state := c.NewStreamState()
	result, err := state.ParseChunk(map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{
						map[string]any{"functionCall": map[string]any{"name": "search", "args": map[string]any{"q": "x"}}},
					},
				},
				"finishReason": "STOP",
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.ToolEvents, 3)
	assert.Equal(t, llmadapter.ToolEventStart, result.ToolEvents[0].Kind)
	assert.Equal(t, llmadapter.ToolEventArgumentsDelta, result.ToolEvents[1].Kind)
	assert.Equal(t, llmadapter.ToolEventEnd, result.ToolEvents[2].Kind)
	assert.True(t, result.FinishedWithToolCalls)
}

func TestStreamStateOnlyFirstFunctionCallProcessed(t *testing.T) {
	c := New()
	state := c.NewStreamState()
	result, err := state.ParseChunk(map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{
						map[string]any{"functionCall": map[string]any{"name": "first", "args": map[string]any{}}},
						map[string]any{"functionCall": map[string]any{"name": "second", "args": map[string]any{}}},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.ToolEvents, 3)
	assert.Equal(t, "first", result.ToolEvents[0].Name)
}
