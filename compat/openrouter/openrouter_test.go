package openrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/llmadapter"
)

func TestBuildPayloadForwardsKnownExtensionKeys(t *testing.T) {
	c := New()
	settings := llmadapter.CallSettings{
		Extras: map[string]any{
			"provider":        map[string]any{"order": []string{"anthropic"}},
			"transforms":      []string{"middle-out"},
			"unknown_setting": "dropped",
		},
	}
	payload, err := c.BuildPayload("anthropic/claude-3-5-sonnet", settings, []llmadapter.Message{
		llmadapter.UserMessage("hi"),
	}, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, payload, "provider")
	assert.Contains(t, payload, "transforms")
	assert.NotContains(t, payload, "unknown_setting")
}

func TestParseResponseTagsOpenRouterProvider(t *testing.T) {
	c := New()
	raw := map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": "hi"}},
		},
	}
	resp, err := c.ParseResponse(raw, "anthropic/claude-3-5-sonnet")
	require.NoError(t, err)
	assert.Equal(t, llmadapter.ProviderOpenRouter, resp.Provider)
}
