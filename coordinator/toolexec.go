package coordinator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/redact"
	"github.com/taipm/llmadapter/telemetry"
	"github.com/taipm/llmadapter/toolbudget"
	"github.com/taipm/llmadapter/toolrouter"
)

// toolOutcome pairs one model tool call with its routed result, kept
// at the model's original call index so parallel execution can fan
// results back in in call order rather than completion order
// (spec.md §5).
type toolOutcome struct {
	call   llmadapter.ToolCall
	result toolrouter.Result
}

// executeToolCalls runs every call in calls against router, consuming
// budget for each attempted call before dispatch. Budget consumption
// is always sequential (toolbudget.Budget is not concurrency-safe) so
// the countdown text every result carries is accurate regardless of
// whether the actual invocations run in parallel; only the routed
// invocation itself — RouteAndInvoke, which already never returns a
// bare Go error — runs concurrently when parallel is true.
//
// Grounded on the evoclaw orchestrator's ToolLoop.executeParallel
// (other_examples/.../internal-orchestrator-toolloop.go.go): an
// errgroup with a concurrency limit fanning into a pre-sized,
// index-addressed result slice, so no mutex is needed to keep results
// ordered.
func (c *Coordinator) executeToolCalls(ctx context.Context, router *toolrouter.Router, calls []llmadapter.ToolCall, budget *toolbudget.Budget, parallel bool) []toolOutcome {
	outcomes := make([]toolOutcome, len(calls))
	var runnable []int

	for i, call := range calls {
		if !budget.Consume(1) {
			payload, classified := toolbudget.ExhaustedResult(budget.Cap())
			c.logger.Warn(ctx, "tool call budget exhausted", telemetry.F("tool", call.Name), telemetry.F("callId", call.ID))
			outcomes[i] = toolOutcome{call: call, result: toolrouter.Result{Value: payload, Err: classified}}
			continue
		}
		runnable = append(runnable, i)
	}

	invoke := func(i int) {
		call := calls[i]
		canonical, ok := router.CanonicalName(call.Name)
		if !ok {
			outcomes[i] = toolOutcome{call: call, result: toolrouter.Result{Err: llmerr.ToolExecutionFailed(call.Name, "model referenced an unadvertised tool name", nil)}}
			return
		}
		// Every downstream consumer of this outcome (the ledger, the
		// history message, a streamed TOOL_RESULT event) reports the
		// canonical name, not the sanitized one the model actually sent.
		call.Name = canonical
		outcomes[i] = toolOutcome{call: call, result: router.RouteAndInvoke(ctx, canonical, call.Arguments)}
	}

	if parallel && len(runnable) > 1 {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelToolCalls)
		for _, idx := range runnable {
			idx := idx
			g.Go(func() error {
				if gCtx.Err() != nil {
					outcomes[idx] = toolOutcome{call: calls[idx], result: toolrouter.Result{Err: gCtx.Err()}}
					return nil
				}
				invoke(idx)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, idx := range runnable {
			invoke(idx)
		}
	}

	return outcomes
}

// resultMessage renders one tool outcome into the tool-role message
// appended to the working history: a successful result carries its
// raw value, a failed one carries the normative tool_execution_failed
// (or tool_call_budget_exhausted) payload spec.md §7 requires. Text
// results are truncated at toolResultMaxChars and, when enabled, given
// the "Tool calls used X of Y" countdown suffix (spec.md §4.5/§4.6).
func resultMessage(outcome toolOutcome, budget *toolbudget.Budget, settings llmadapter.CallSettings) llmadapter.Message {
	value := outcome.result.Value
	if outcome.result.Err != nil {
		if kind, ok := llmerr.KindOf(outcome.result.Err); ok && kind == llmerr.KindToolCallBudgetExhausted {
			if value == nil {
				value = llmerr.ToolCallBudgetExhaustedPayload()
			}
		} else {
			value = llmerr.ToolExecutionFailedPayload()
		}
	}

	if s, ok := value.(string); ok && settings.ToolResultMaxChars > 0 {
		value = redact.Truncate(s, settings.ToolResultMaxChars)
	}

	if settings.ToolCountdownEnabled {
		suffix := toolbudget.CountdownSuffix(budget)
		if s, ok := value.(string); ok {
			value = s + "\n\n" + suffix
		} else {
			value = map[string]any{"result": value, "countdown": suffix}
		}
	}

	return llmadapter.ToolMessage(outcome.call.ID, outcome.call.Name, value)
}

// ledgerRecords renders a round's outcomes into the raw.toolResults
// entries spec.md §4.8 requires on the final response, in call order.
func ledgerRecords(outcomes []toolOutcome) []llmadapter.ToolResultRecord {
	out := make([]llmadapter.ToolResultRecord, 0, len(outcomes))
	for _, o := range outcomes {
		var result any = o.result.Value
		if o.result.Err != nil {
			if kind, ok := llmerr.KindOf(o.result.Err); ok && kind == llmerr.KindToolCallBudgetExhausted {
				result = llmerr.ToolCallBudgetExhaustedPayload()
			} else {
				result = llmerr.ToolExecutionFailedPayload()
			}
		}
		out = append(out, llmadapter.ToolResultRecord{Tool: o.call.Name, CallID: o.call.ID, Result: result})
	}
	return out
}
