package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taipm/llmadapter"
)

func TestTruncateAppendsNormativeMarker(t *testing.T) {
	out := Truncate("abcdefghij", 5)
	assert.Equal(t, "abcd…truncated", out)
}

func TestTruncateNoopUnderLimit(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))
}

func TestApplyPreserveAllLeavesEverythingAlone(t *testing.T) {
	cycles := []Cycle{
		{Results: []*llmadapter.Message{toolResultMessage("orig")}},
	}
	Apply(cycles, llmadapter.PreserveAll(), llmadapter.PreserveAll())
	assert.Equal(t, "orig", cycles[0].Results[0].Content[0].ToolResult)
}

func TestApplyPreserveNoneRedactsAll(t *testing.T) {
	cycles := []Cycle{
		{Results: []*llmadapter.Message{toolResultMessage("orig")}},
	}
	Apply(cycles, llmadapter.PreserveNone(), llmadapter.PreserveAll())
	assert.Equal(t, RedactedPlaceholder, cycles[0].Results[0].Content[0].ToolResult)
}

func TestApplyPreserveLastKeepsMostRecent(t *testing.T) {
	cycles := []Cycle{
		{Results: []*llmadapter.Message{toolResultMessage("old")}},
		{Results: []*llmadapter.Message{toolResultMessage("recent")}},
	}
	Apply(cycles, llmadapter.PreserveLast(1), llmadapter.PreserveAll())
	assert.Equal(t, RedactedPlaceholder, cycles[0].Results[0].Content[0].ToolResult)
	assert.Equal(t, "recent", cycles[1].Results[0].Content[0].ToolResult)
}

func TestApplyRedactsReasoningSeparately(t *testing.T) {
	assistant := &llmadapter.Message{
		Role:      llmadapter.RoleAssistant,
		Reasoning: &llmadapter.Reasoning{Text: "chain of thought"},
	}
	cycles := []Cycle{{Assistant: assistant}}
	Apply(cycles, llmadapter.PreserveAll(), llmadapter.PreserveNone())
	assert.Equal(t, RedactedPlaceholder, assistant.Reasoning.Text)
}

func toolResultMessage(result string) *llmadapter.Message {
	return &llmadapter.Message{
		Role:    llmadapter.RoleTool,
		Content: []llmadapter.ContentPart{llmadapter.ToolResultPart("tool", result)},
	}
}
