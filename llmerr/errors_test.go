package llmerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := RateLimit("openai", "too many requests", nil)
	assert.True(t, errors.Is(err, &Error{Kind: KindRateLimit}))
	assert.False(t, errors.Is(err, &Error{Kind: KindAuth}))
}

func TestKindOfUnwraps(t *testing.T) {
	base := ToolExecutionFailed("search", "boom", errors.New("boom"))
	wrapped := errors.New("while routing tool call: " + base.Error())
	_, ok := KindOf(wrapped)
	assert.False(t, ok, "plain fmt-wrapped text is not unwrap-chained")

	kind, ok := KindOf(base)
	require.True(t, ok)
	assert.Equal(t, KindToolExecutionFailed, kind)

	kind, ok = KindOf(fmt.Errorf("while routing tool call: %w", base))
	require.True(t, ok)
	assert.Equal(t, KindToolExecutionFailed, kind)
}

func TestSurvivableKinds(t *testing.T) {
	assert.True(t, Survivable(KindToolExecutionFailed))
	assert.True(t, Survivable(KindToolCallBudgetExhausted))
	assert.True(t, Survivable(KindDiscovery))
	assert.False(t, Survivable(KindAuth))
	assert.False(t, Survivable(KindBadResponse))
}

func TestFallthroughKinds(t *testing.T) {
	assert.True(t, Fallthrough(KindAuth))
	assert.True(t, Fallthrough(KindRateLimit))
	assert.True(t, Fallthrough(KindTransient))
	assert.False(t, Fallthrough(KindBadResponse))
}

func TestToolResultPayloadsMatchNormativeWording(t *testing.T) {
	assert.Equal(t, "tool_execution_failed", ToolExecutionFailedPayload().Error)
	assert.Equal(t, "tool_call_budget_exhausted", ToolCallBudgetExhaustedPayload().Error)
}

func TestClassifyStatusCodes(t *testing.T) {
	m := DefaultManifest()
	assert.Equal(t, KindAuth, Classify(m, 401, ""))
	assert.Equal(t, KindRateLimit, Classify(m, 429, ""))
	assert.Equal(t, KindTransient, Classify(m, 503, ""))
	assert.Equal(t, KindTransient, Classify(m, 0, ""))
}

func TestClassifyPhraseMatch(t *testing.T) {
	m := DefaultManifest()
	assert.Equal(t, KindRateLimit, Classify(m, 0, "Error: RESOURCE_EXHAUSTED, quota exceeded for model"))
	assert.Equal(t, KindAuth, Classify(m, 0, "invalid_api_key: no key provided"))
	assert.Equal(t, KindTransient, Classify(m, 0, "context deadline exceeded: timeout"))
}
