package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/llmadapter"
)

func TestBuildPayloadBasic(t *testing.T) {
	c := New()
	temp := 0.5
	settings := llmadapter.CallSettings{Temperature: &temp}
	payload, err := c.BuildPayload("gpt-4o-mini", settings, []llmadapter.Message{
		llmadapter.UserMessage("hello"),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", payload["model"])
	assert.Equal(t, 0.5, payload["temperature"])
}

func TestConvertMessagesFiltersToolResultParts(t *testing.T) {
	c := New()
	msg := llmadapter.ToolMessage("call_1", "search", map[string]any{"ok": true})
	out := c.convertMessages([]llmadapter.Message{msg})
	require.Len(t, out, 1)
	assert.Equal(t, "call_1", out[0]["tool_call_id"])
	assert.NotContains(t, out[0], "content_parts")
	assert.Equal(t, "", out[0]["content"])
}

func TestConvertMessagesEmptyAssistantContentBecomesEmptyString(t *testing.T) {
	c := New()
	msg := llmadapter.Message{Role: llmadapter.RoleAssistant}
	out := c.convertMessages([]llmadapter.Message{msg})
	assert.Equal(t, "", out[0]["content"])
}

func TestSerializeToolChoiceSingleAllowedCollapses(t *testing.T) {
	c := New()
	choice := llmadapter.RequiredToolChoice("search")
	out, err := c.SerializeToolChoice(&choice, nil)
	require.NoError(t, err)
	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "function", m["type"])
}

func TestSerializeToolChoiceRequiredMultiple(t *testing.T) {
	c := New()
	choice := llmadapter.RequiredToolChoice("search", "calc")
	out, err := c.SerializeToolChoice(&choice, nil)
	require.NoError(t, err)
	assert.Equal(t, "required", out)
}

func TestParseResponseMissingToolCallIDSynthesizesIndex(t *testing.T) {
	c := New()
	raw := map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "tool_calls",
				"message": map[string]any{
					"tool_calls": []any{
						map[string]any{
							"function": map[string]any{"name": "search", "arguments": ""},
						},
					},
				},
			},
		},
	}
	resp, err := c.ParseResponse(raw, "gpt-4o-mini")
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_0", resp.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{}, resp.ToolCalls[0].Arguments)
}

func TestParseResponseEmptyChoicesNormalizesContent(t *testing.T) {
	c := New()
	resp, err := c.ParseResponse(map[string]any{"choices": []any{}}, "gpt-4o-mini")
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "", resp.Content[0].Text)
}

func TestStreamStateEmitsStartDeltaEnd(t *testing.T) {
	c := New()
	state := c.NewStreamState()

	r1, err := state.ParseChunk(map[string]any{
		"choices": []any{
			map[string]any{
				"delta": map[string]any{
					"tool_calls": []any{
						map[string]any{
							"index": 0.0,
							"id":    "call_abc",
							"function": map[string]any{
								"name":      "search",
								"arguments": "",
							},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, r1.ToolEvents, 1)
	assert.Equal(t, llmadapter.ToolEventStart, r1.ToolEvents[0].Kind)

	r2, err := state.ParseChunk(map[string]any{
		"choices": []any{
			map[string]any{
				"delta": map[string]any{
					"tool_calls": []any{
						map[string]any{
							"index":    0.0,
							"function": map[string]any{"arguments": `{"q":"x"}`},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, r2.ToolEvents, 1)
	assert.Equal(t, llmadapter.ToolEventArgumentsDelta, r2.ToolEvents[0].Kind)

	r3, err := state.ParseChunk(map[string]any{
		"choices": []any{
			map[string]any{
				"delta":         map[string]any{"tool_calls": []any{map[string]any{"index": 0.0, "function": map[string]any{"arguments": ""}}}},
				"finish_reason": "tool_calls",
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, r3.ToolEvents, 1)
	assert.Equal(t, llmadapter.ToolEventEnd, r3.ToolEvents[0].Kind)
}

func TestStreamStateUnknownIndexContinuationIgnored(t *testing.T) {
	c := New()
	state := c.NewStreamState()
	_, err := state.ParseChunk(map[string]any{
		"choices": []any{
			map[string]any{
				"delta": map[string]any{
					"tool_calls": []any{
						map[string]any{"index": 5.0, "function": map[string]any{"arguments": "abc"}},
					},
				},
			},
		},
	})
	assert.NoError(t, err)
}
