// Package llmerr implements the coordinator's error taxonomy (spec.md
// §7): behavioral error kinds, not wire-format types, each carrying the
// propagation rule its kind implies — loop-survivable kinds become tool
// messages in the working history, loop-fatal kinds become exceptions.
package llmerr

import (
	"errors"
	"fmt"
)

// Kind discriminates the behavioral error categories the coordinator
// reasons about when deciding whether to retry, fall back to the next
// priority entry, materialize a tool message, or propagate.
type Kind string

const (
	// KindAuth means the provider rejected the call for missing or
	// invalid credentials. Not retried, not fallen back to within the
	// same provider family; may fall through to the next priority entry.
	KindAuth Kind = "auth"

	// KindRateLimit means the provider signalled 429 or a
	// provider-specific rate-limit phrase. Triggers the configured
	// retry-delay schedule; when exhausted, falls through to the next
	// priority entry.
	KindRateLimit Kind = "rate_limit"

	// KindTransient means a 5xx, a timeout, or a stream interruption
	// before the first chunk arrived. Falls through to the next
	// priority entry. A stream interruption after the first chunk is
	// NOT this kind — see KindBadResponse.
	KindTransient Kind = "transient"

	// KindBadResponse means the provider returned something the
	// parser cannot reconcile: null content after parsing, or tool
	// calls that reference block indices the state machine cannot
	// resolve. Thrown synchronously from a blocking call; terminates a
	// stream.
	KindBadResponse Kind = "bad_response"

	// KindToolExecutionFailed means a tool function or MCP call
	// returned an error or panicked. Never bubbles out of the loop;
	// always materialized as a tool message.
	KindToolExecutionFailed Kind = "tool_execution_failed"

	// KindToolCallBudgetExhausted means maxToolIterations was reached
	// before the model produced a final answer. Materialized as a tool
	// message, optionally paired with the final-prompt nudge.
	KindToolCallBudgetExhausted Kind = "tool_call_budget_exhausted"

	// KindDiscovery means an MCP server's tool listing failed. Logged
	// and swallowed; the loop proceeds with whatever tools it did
	// discover.
	KindDiscovery Kind = "discovery"
)

// Error is the taxonomy's single error type: a Kind plus the context
// that produced it. Callers switch on Kind rather than on Go type,
// since every propagation decision in the coordinator is keyed by Kind.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &llmerr.Error{Kind: llmerr.KindRateLimit}) match by
// comparing Kind, in addition to the usual errors.As(&llmerr.Error{}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind
}

func newError(kind Kind, provider, message string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: err}
}

// Auth, RateLimit, Transient, BadResponse, ToolExecutionFailed,
// ToolCallBudgetExhausted, and Discovery construct the seven taxonomy
// kinds.
func Auth(provider, message string, err error) *Error {
	return newError(KindAuth, provider, message, err)
}

func RateLimit(provider, message string, err error) *Error {
	return newError(KindRateLimit, provider, message, err)
}

func Transient(provider, message string, err error) *Error {
	return newError(KindTransient, provider, message, err)
}

func BadResponse(provider, message string, err error) *Error {
	return newError(KindBadResponse, provider, message, err)
}

func ToolExecutionFailed(tool, message string, err error) *Error {
	return newError(KindToolExecutionFailed, "", fmt.Sprintf("tool %q: %s", tool, message), err)
}

func ToolCallBudgetExhausted(iterations int) *Error {
	return newError(KindToolCallBudgetExhausted, "", fmt.Sprintf("tool call budget of %d iterations exhausted", iterations), nil)
}

func Discovery(server, message string, err error) *Error {
	return newError(KindDiscovery, server, message, err)
}

// Survivable reports whether errors of this kind are meant to become
// tool messages in the working history rather than propagate as
// exceptions (spec.md §7's "loop-survivable" rule of thumb).
func Survivable(kind Kind) bool {
	switch kind {
	case KindToolExecutionFailed, KindToolCallBudgetExhausted, KindDiscovery:
		return true
	default:
		return false
	}
}

// Retryable reports whether the coordinator should apply the
// rateLimitRetryDelays schedule before falling through to the next
// priority entry.
func Retryable(kind Kind) bool {
	return kind == KindRateLimit
}

// Fallthrough reports whether, after exhausting any retry schedule,
// the coordinator should move on to the next entry in llmPriority
// rather than abort the call outright.
func Fallthrough(kind Kind) bool {
	switch kind {
	case KindAuth, KindRateLimit, KindTransient:
		return true
	default:
		return false
	}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, and
// reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// ToolResultError is the exact shape spec.md §7 requires tool-result
// errors to take when a ToolExecutionFailed or ToolCallBudgetExhausted
// error is materialized as a message in the working history, rather
// than propagated.
type ToolResultError struct {
	Error string `json:"error"`
}

// ToolExecutionFailedPayload and ToolCallBudgetExhaustedPayload are the
// two normative materializations spec.md §7 names.
func ToolExecutionFailedPayload() ToolResultError {
	return ToolResultError{Error: "tool_execution_failed"}
}

func ToolCallBudgetExhaustedPayload() ToolResultError {
	return ToolResultError{Error: "tool_call_budget_exhausted"}
}
