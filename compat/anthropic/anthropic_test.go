package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/llmadapter"
)

func TestBuildPayloadOnlyFirstSystemMessageKept(t *testing.T) {
	c := New()
	messages := []llmadapter.Message{
		llmadapter.SystemMessage("first"),
		llmadapter.SystemMessage("second"),
		llmadapter.UserMessage("hi"),
	}
	payload, err := c.BuildPayload("claude-3-5-sonnet", llmadapter.CallSettings{}, messages, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", payload["system"])
	assert.Equal(t, defaultMaxTokens, payload["max_tokens"])
}

func TestBuildPayloadThinkingOmittedWithoutPriorReasoning(t *testing.T) {
	c := New()
	enabled := true
	settings := llmadapter.CallSettings{Reasoning: &llmadapter.ReasoningSettings{Enabled: enabled}}
	messages := []llmadapter.Message{
		llmadapter.UserMessage("hi"),
		llmadapter.AssistantMessage("hello"),
	}
	payload, err := c.BuildPayload("claude-3-5-sonnet", settings, messages, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, payload, "thinking")
}

func TestBuildPayloadThinkingEnabledWhenAllTurnsHaveReasoning(t *testing.T) {
	c := New()
	settings := llmadapter.CallSettings{Reasoning: &llmadapter.ReasoningSettings{Enabled: true}}
	assistant := llmadapter.AssistantMessage("hello")
	assistant.Reasoning = &llmadapter.Reasoning{Text: "because..."}
	messages := []llmadapter.Message{llmadapter.UserMessage("hi"), assistant}
	payload, err := c.BuildPayload("claude-3-5-sonnet", settings, messages, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, payload, "thinking")
}

func TestConvertMessagesFlushesPendingToolResultsBeforeAssistant(t *testing.T) {
	messages := []llmadapter.Message{
		llmadapter.UserMessage("hi"),
		llmadapter.ToolMessage("call_1", "search", "result"),
		llmadapter.AssistantMessage("ok"),
	}
	out := convertMessages(messages)
	require.Len(t, out, 3)
	assert.Equal(t, "user", out[1]["role"])
	assert.Equal(t, "assistant", out[2]["role"])
}

func TestConvertMessagesTrailingToolResultBecomesUserMessage(t *testing.T) {
	messages := []llmadapter.Message{
		llmadapter.UserMessage("hi"),
		llmadapter.ToolMessage("call_1", "search", "result"),
	}
	out := convertMessages(messages)
	require.Len(t, out, 2)
	assert.Equal(t, "user", out[1]["role"])
}

func TestFinishReasonMapping(t *testing.T) {
	tests := map[string]string{
		"end_turn":      "stop",
		"stop_sequence": "stop",
		"max_tokens":    "length",
		"tool_use":      "tool_calls",
	}
	for in, want := range tests {
		got := mapFinishReason(in)
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	}
}

func TestParseResponseThinkingContributesToReasoning(t *testing.T) {
	c := New()
	raw := map[string]any{
		"stop_reason": "end_turn",
		"content": []any{
			map[string]any{"type": "thinking", "thinking": "step one"},
			map[string]any{"type": "text", "text": "answer"},
		},
	}
	resp, err := c.ParseResponse(raw, "claude-3-5-sonnet")
	require.NoError(t, err)
	require.NotNil(t, resp.Reasoning)
	assert.Equal(t, "step one", resp.Reasoning.Text)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "answer", resp.Content[0].Text)
}

func TestStreamStateContentBlockNullErrors(t *testing.T) {
	c := New()
	state := c.NewStreamState()
	_, err := state.ParseChunk(map[string]any{"type": "content_block_start", "index": 0.0})
	assert.Error(t, err)
}

func TestStreamStateToolUseLifecycle(t *testing.T) {
	c := New()
	state := c.NewStreamState()

	r1, err := state.ParseChunk(map[string]any{
		"type":  "content_block_start",
		"index": 0.0,
		"content_block": map[string]any{
			"type": "tool_use", "id": "toolu_1", "name": "search",
		},
	})
	require.NoError(t, err)
	require.Len(t, r1.ToolEvents, 1)
	assert.Equal(t, llmadapter.ToolEventStart, r1.ToolEvents[0].Kind)

	r2, err := state.ParseChunk(map[string]any{
		"type": "content_block_delta", "index": 0.0,
		"delta": map[string]any{"type": "input_json_delta", "partial_json": `{"q":"x"}`},
	})
	require.NoError(t, err)
	require.Len(t, r2.ToolEvents, 1)

	r3, err := state.ParseChunk(map[string]any{"type": "content_block_stop", "index": 0.0})
	require.NoError(t, err)
	require.Len(t, r3.ToolEvents, 1)
	assert.Equal(t, llmadapter.ToolEventEnd, r3.ToolEvents[0].Kind)
}
