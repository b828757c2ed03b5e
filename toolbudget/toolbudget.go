// Package toolbudget caps how many tool-execution cycles one
// coordinator call may spend, and annotates tool results with a
// "Tool calls used X of Y" count and a final-prompt nudge as the cap approaches
// (spec.md §4.5). It generalizes the teacher's ReAct
// MaxIterations/ErrMaxIterationsReached cap (agent/react_config.go,
// agent/react.go) from a hard stop into a countdown the model itself
// is told about, since spec.md requires the loop to survive budget
// exhaustion rather than abort it.
package toolbudget

import (
	"fmt"

	"github.com/taipm/llmadapter/llmerr"
)

// Budget tracks remaining tool-call iterations for one coordinator
// call. It is not safe for concurrent use; the coordinator owns one
// Budget per call and consumes it serially.
type Budget struct {
	cap  int
	used int
}

// New creates a Budget allowing up to cap tool-execution cycles. A cap
// of 0 means no tool calls are ever allowed through Consume.
func New(cap int) *Budget {
	return &Budget{cap: cap}
}

// Consume records n attempted tool calls (n=1 for a single call) and
// reports whether the budget still had room for them. When they do not
// fit, Used is set to the cap (Remaining becomes 0) rather than growing
// past it, so the countdown text written into the exhaustion message
// never reports more calls than the cap.
func (b *Budget) Consume(n int) bool {
	if b.used+n > b.cap {
		b.used = b.cap
		return false
	}
	b.used += n
	return true
}

// Used reports how many iterations have been consumed so far.
func (b *Budget) Used() int { return b.used }

// Cap reports the budget's total allowance.
func (b *Budget) Cap() int { return b.cap }

// Remaining reports how many iterations are left.
func (b *Budget) Remaining() int { return b.cap - b.used }

// Exhausted reports whether the budget has no room left.
func (b *Budget) Exhausted() bool { return b.used >= b.cap }

// WillExhaustAfter reports whether consuming n more calls would reach
// or exceed the cap — used by the coordinator to decide, before issuing the
// request that would trigger the final cycle, whether to inject the
// final-prompt nudge per spec.md §4.5 ("the budget will be exhausted
// after this cycle").
func (b *Budget) WillExhaustAfter(n int) bool {
	return b.used+n >= b.cap
}

// CountdownSuffix renders the "Tool calls used X of Y" annotation
// spec.md §4.5 requires on every tool result text when the countdown
// is enabled.
func CountdownSuffix(b *Budget) string {
	return fmt.Sprintf("Tool calls used %d of %d", b.Used(), b.Cap())
}

// FinalPromptText is the normative nudge spec.md §4.5 requires when
// toolFinalPromptEnabled and the budget will be exhausted after the
// current cycle.
const FinalPromptText = "All tool calls have been consumed. Provide your final answer now without requesting any further tool calls."

// ExhaustedResult builds the synthetic tool_call_budget_exhausted
// result spec.md §4.5 requires for each tool call attempted once the
// budget has no room left, alongside the classified error the
// coordinator logs for the same event.
func ExhaustedResult(iterations int) (llmerr.ToolResultError, *llmerr.Error) {
	return llmerr.ToolCallBudgetExhaustedPayload(), llmerr.ToolCallBudgetExhausted(iterations)
}
