package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/invoker"
	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/redact"
	"github.com/taipm/llmadapter/telemetry"
	"github.com/taipm/llmadapter/toolbudget"
	"github.com/taipm/llmadapter/toolrouter"
)

// flatten copies a pointer-backed working history into the value
// slice Compat.BuildPayload expects. Working history is kept as
// []*llmadapter.Message, not []llmadapter.Message, so that
// redact.Cycle's pointers into earlier turns stay valid across later
// appends: growing a slice of pointers never moves the Message values
// those pointers address, only a value slice's own backing array.
func flatten(history []*llmadapter.Message) []llmadapter.Message {
	out := make([]llmadapter.Message, len(history))
	for i, m := range history {
		out[i] = *m
	}
	return out
}

// Run executes one blocking call per spec.md §4.8: vector context
// injection, tool assembly, then a provider-priority fallback loop
// where each entry runs its own tool-call round trip until the model
// stops requesting tools or the call's tool budget is exhausted.
func (c *Coordinator) Run(ctx context.Context, spec llmadapter.LLMCallSpec) (*llmadapter.LLMResponse, error) {
	if spec.Metadata.CorrelationID == "" {
		spec.Metadata.CorrelationID = uuid.New().String()
	}

	history := make([]*llmadapter.Message, len(spec.Messages))
	for i := range spec.Messages {
		cloned := spec.Messages[i].Clone()
		history[i] = &cloned
	}

	if c.vectorInjector != nil && spec.VectorContext != nil &&
		(spec.VectorContext.Mode == llmadapter.VectorContextAuto || spec.VectorContext.Mode == llmadapter.VectorContextBoth) {
		if msg := c.vectorInjector.InjectSystemMessage(ctx, spec.VectorContext, flatten(history)); msg != nil {
			history = append(history, msg)
		}
	}

	router, err := c.buildRouter(ctx, spec)
	if err != nil {
		return nil, err
	}
	tools := router.Tools()

	budget := toolbudget.New(effectiveMaxToolIterations(spec.Settings))
	var ledger []llmadapter.ToolResultRecord
	var cycles []redact.Cycle

	var lastErr error
	for _, pm := range spec.LLMPriority {
		resp, err := c.runProviderLoop(ctx, pm, spec, &history, router, tools, budget, &ledger, &cycles)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		kind, ok := llmerr.KindOf(err)
		if ok && !llmerr.Fallthrough(kind) {
			return nil, err
		}
		c.logger.Warn(ctx, "provider attempt failed, falling through", telemetry.F("provider", string(pm.Provider)), telemetry.F("model", pm.Model), telemetry.F("correlationId", spec.Metadata.CorrelationID), telemetry.F("error", err.Error()))
	}
	return nil, lastErr
}

// runProviderLoop drives every round-trip for one (provider, model)
// entry: build, invoke (with rate-limit retry), parse, and either
// return a final response or execute tool calls and loop again on the
// same entry (spec.md §4.8 steps 4a-4e).
func (c *Coordinator) runProviderLoop(
	ctx context.Context,
	pm llmadapter.ProviderModel,
	spec llmadapter.LLMCallSpec,
	history *[]*llmadapter.Message,
	router *toolrouter.Router,
	tools []llmadapter.UnifiedTool,
	budget *toolbudget.Budget,
	ledger *[]llmadapter.ToolResultRecord,
	cycles *[]redact.Cycle,
) (*llmadapter.LLMResponse, error) {
	cm, err := c.compatFactory(pm.Provider)
	if err != nil {
		return nil, llmerr.Transient(string(pm.Provider), "no compat implementation registered", err)
	}

	for {
		ep, err := c.credentials.ResolveEndpoint(pm.Provider, pm.Model, spec.Metadata, false)
		if err != nil {
			return nil, llmerr.Transient(string(pm.Provider), "credential resolution failed", err)
		}

		if len(*cycles) > 0 {
			redact.Apply((*cycles)[:len(*cycles)-1], preservePolicyOrDefault(spec.Settings.PreserveToolResults), preservePolicyOrDefault(spec.Settings.PreserveReasoning))
		}

		effectiveTools := tools
		effectiveChoice := spec.ToolChoice
		switch {
		case budget.Exhausted():
			// The budget has no room for another tool call at all: force
			// a final answer regardless of toolFinalPromptEnabled, since
			// offering tools the model can't actually use would only
			// produce another round of synthetic exhaustion results.
			effectiveTools = nil
			none := llmadapter.NoneToolChoice()
			effectiveChoice = &none
			if spec.Settings.ToolFinalPromptEnabled {
				nudge := llmadapter.SystemMessage(toolbudget.FinalPromptText)
				*history = append(*history, &nudge)
			}
		case spec.Settings.ToolFinalPromptEnabled && len(tools) > 0 && budget.WillExhaustAfter(1):
			// One cycle of room left: warn the model this is its last
			// chance before forcing the same no-tools treatment above.
			nudge := llmadapter.SystemMessage(toolbudget.FinalPromptText)
			*history = append(*history, &nudge)
			effectiveTools = nil
			none := llmadapter.NoneToolChoice()
			effectiveChoice = &none
		}

		payload, err := cm.BuildPayload(pm.Model, spec.Settings, flatten(*history), effectiveTools, effectiveChoice)
		if err != nil {
			return nil, llmerr.BadResponse(string(pm.Provider), "building request payload", err)
		}
		payload = cm.ApplyProviderExtensions(payload, spec.Settings.Extras)

		raw, err := c.invokeWithRetry(ctx, pm.Provider, ep, payload, spec.RateLimitRetryDelays, spec.Settings.BatchID)
		if err != nil {
			return nil, err
		}

		parsed, err := cm.ParseResponse(raw, pm.Model)
		if err != nil {
			return nil, llmerr.BadResponse(string(pm.Provider), "parsing provider response", err)
		}
		parsed.Content = llmadapter.NormalizeContent(parsed.Content)
		parsed.Provider = pm.Provider
		parsed.Model = pm.Model

		if len(parsed.ToolCalls) == 0 {
			parsed.Raw.ToolResults = *ledger
			return &parsed, nil
		}

		assistantMsg := llmadapter.Message{Role: llmadapter.RoleAssistant, Content: parsed.Content, ToolCalls: parsed.ToolCalls, Reasoning: parsed.Reasoning}
		*history = append(*history, &assistantMsg)

		outcomes := c.executeToolCalls(ctx, router, parsed.ToolCalls, budget, spec.Settings.ParallelToolExecution)
		*ledger = append(*ledger, ledgerRecords(outcomes)...)

		var resultMsgs []*llmadapter.Message
		for _, outcome := range outcomes {
			msg := resultMessage(outcome, budget, spec.Settings)
			*history = append(*history, &msg)
			resultMsgs = append(resultMsgs, &msg)
		}
		*cycles = append(*cycles, redact.Cycle{Assistant: &assistantMsg, Results: resultMsgs})
	}
}

// invokeWithRetry sends one request, walking delaysMs (milliseconds)
// on a rate-limit classification until one attempt succeeds, a
// non-rate-limit error occurs, or the schedule is exhausted — spec.md
// §4.8's "on rate-limit, retry per rateLimitRetryDelays; on exhaustion,
// fall through" rule.
func (c *Coordinator) invokeWithRetry(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any, delaysMs []int, batchID string) (map[string]any, error) {
	inv := c.invokerFor(batchID)

	raw, err := inv.Invoke(ctx, provider, ep, payload)
	if err == nil {
		return raw, nil
	}

	for _, ms := range delaysMs {
		kind, ok := llmerr.KindOf(err)
		if !ok || kind != llmerr.KindRateLimit {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}
		raw, err = inv.Invoke(ctx, provider, ep, payload)
		if err == nil {
			return raw, nil
		}
	}
	return nil, err
}

// preservePolicyOrDefault treats an unset preserve policy as "preserve
// everything": silently redacting history the caller never configured
// redaction for would lose information the spec never asked to drop.
func preservePolicyOrDefault(p *llmadapter.PreservePolicy) llmadapter.PreservePolicy {
	if p == nil {
		return llmadapter.PreserveAll()
	}
	return *p
}
