// Package redact truncates and redacts tool/reasoning content in the
// coordinator's working history (spec.md §4.6): per-result byte-limit
// truncation, plus a prior-cycle redaction policy so a long tool-use
// loop doesn't grow its context without bound. Grounded on the
// teacher's history-trimming helpers in agent/react.go and
// agent/memory, generalized to the exact normative wording spec.md
// requires.
package redact

import (
	"github.com/taipm/llmadapter"
)

// TruncationPlaceholder is the literal text spec.md §4.6 requires
// appended after truncating a tool result's text content at
// toolResultMaxChars, preceded by a horizontal-ellipsis character.
const TruncationPlaceholder = "…truncated"

// RedactedPlaceholder is the literal text spec.md §4.6 requires in
// place of a redacted tool result.
const RedactedPlaceholder = "This is a placeholder, not the original tool response; the tool output has been redacted to save context."

// Truncate shortens text that is longer than limit bytes to its first
// limit-1 bytes followed by the horizontal-ellipsis "truncated" marker,
// so the result can be longer than limit. A limit of 1 yields just "…".
// A non-positive limit disables truncation.
func Truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	if limit <= 1 {
		return "…"
	}
	return text[:limit-1] + TruncationPlaceholder
}

// Cycle is one (assistant-with-tool-calls, tool-results) pair in the
// working history, indexed from 0 in arrival order. The coordinator
// builds one Cycle per tool-execution round so Apply can tell the
// "just-added pair" apart from the prior ones.
type Cycle struct {
	Assistant *llmadapter.Message
	Results   []*llmadapter.Message
}

// Apply walks cycles (all but the most recent, per spec.md §4.6's
// "prior cycles" rule — callers pass every cycle except the one just
// appended) and redacts tool-result text and/or assistant reasoning
// text in place according to policy and reasoningPolicy.
//
// policy selects which tool results keep their original text:
//   - All: nothing is redacted.
//   - None: every prior-cycle tool result is redacted.
//   - otherwise: the Keep most recent prior cycles are preserved
//     verbatim; anything older is redacted.
//
// reasoningPolicy applies the same rule to assistant reasoning text.
func Apply(cycles []Cycle, policy, reasoningPolicy llmadapter.PreservePolicy) {
	n := len(cycles)
	for i, cycle := range cycles {
		if !preserves(policy, n, i) {
			for _, result := range cycle.Results {
				redactToolResult(result)
			}
		}
		if cycle.Assistant != nil && cycle.Assistant.Reasoning != nil && !preserves(reasoningPolicy, n, i) {
			cycle.Assistant.Reasoning.Text = RedactedPlaceholder
		}
	}
}

// preserves reports whether the i-th of n cycles (0-indexed, arrival
// order) should keep its original content under policy.
func preserves(policy llmadapter.PreservePolicy, n, i int) bool {
	if policy.All {
		return true
	}
	if policy.None {
		return false
	}
	// Keep the Keep most recent cycles: indices >= n-Keep.
	return i >= n-policy.Keep
}

func redactToolResult(msg *llmadapter.Message) {
	for idx := range msg.Content {
		part := &msg.Content[idx]
		if part.Type == llmadapter.ContentToolResult {
			part.ToolResult = RedactedPlaceholder
		}
		if part.Type == llmadapter.ContentText {
			part.Text = RedactedPlaceholder
		}
	}
}
