package toolbudget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taipm/llmadapter/llmerr"
)

func TestConsumeWithinCap(t *testing.T) {
	b := New(3)
	assert.True(t, b.Consume(1))
	assert.True(t, b.Consume(1))
	assert.Equal(t, 2, b.Used())
	assert.Equal(t, 1, b.Remaining())
}

func TestConsumeExhausted(t *testing.T) {
	b := New(1)
	assert.True(t, b.Consume(1))
	assert.False(t, b.Consume(1))
	assert.True(t, b.Exhausted())
}

func TestWillExhaustAfter(t *testing.T) {
	b := New(2)
	b.Consume(1)
	assert.True(t, b.WillExhaustAfter(1))
	assert.False(t, b.WillExhaustAfter(0))
}

func TestCountdownSuffix(t *testing.T) {
	b := New(5)
	b.Consume(2)
	assert.Equal(t, "Tool calls used 2 of 5", CountdownSuffix(b))
}

func TestExhaustedResultMatchesNormativePayload(t *testing.T) {
	payload, err := ExhaustedResult(5)
	assert.Equal(t, "tool_call_budget_exhausted", payload.Error)
	kind, ok := llmerr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, llmerr.KindToolCallBudgetExhausted, kind)
}
