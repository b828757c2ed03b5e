package coordinator

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/redact"
	"github.com/taipm/llmadapter/toolbudget"
	"github.com/taipm/llmadapter/toolrouter"
)

// errConsumerStopped signals that yield already returned false: the
// range-over-func contract forbids calling yield again after that, so
// every caller up the stack must recognize this sentinel and return
// immediately rather than try to report it through another yield call.
var errConsumerStopped = errors.New("coordinator: stream consumer stopped ranging")

// RunStream executes one streaming call per spec.md §4.9. The
// returned iterator yields (Event, nil) for every event and, on
// success, terminates with a final (DoneEvent, nil); a mid-stream or
// fallback-exhausting failure instead terminates with (zero Event,
// err) and no done event, per spec.md §7's "surfaced through the
// async sequence itself" propagation rule for streaming.
//
// Go's iter.Seq2 stands in for the "AsyncSequence<Event>" the spec
// describes: ranging over the result with `for ev, err := range ...`
// is this module's idiom for consuming it, and the standard
// range-over-func contract (stop ranging → the iterator's goroutine
// tears down) is how a cancelled consumer closes the upstream
// provider connection, per spec.md §5.
func (c *Coordinator) RunStream(ctx context.Context, spec llmadapter.LLMCallSpec) iter.Seq2[llmadapter.Event, error] {
	if spec.Metadata.CorrelationID == "" {
		spec.Metadata.CorrelationID = uuid.New().String()
	}

	return func(yield func(llmadapter.Event, error) bool) {
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		history := make([]*llmadapter.Message, len(spec.Messages))
		for i := range spec.Messages {
			cloned := spec.Messages[i].Clone()
			history[i] = &cloned
		}

		if c.vectorInjector != nil && spec.VectorContext != nil &&
			(spec.VectorContext.Mode == llmadapter.VectorContextAuto || spec.VectorContext.Mode == llmadapter.VectorContextBoth) {
			if msg := c.vectorInjector.InjectSystemMessage(streamCtx, spec.VectorContext, flatten(history)); msg != nil {
				history = append(history, msg)
			}
		}

		router, err := c.buildRouter(streamCtx, spec)
		if err != nil {
			yield(llmadapter.Event{}, err)
			return
		}
		tools := router.Tools()

		budget := toolbudget.New(effectiveMaxToolIterations(spec.Settings))
		var ledger []llmadapter.ToolResultRecord
		var cycles []redact.Cycle

		var lastErr error
		for _, pm := range spec.LLMPriority {
			final, err := c.streamProviderLoop(streamCtx, pm, spec, &history, router, tools, budget, &ledger, &cycles, yield)
			if err == nil {
				yield(llmadapter.DoneEvent(*final), nil)
				return
			}
			if errors.Is(err, errConsumerStopped) {
				// yield already returned false once; calling it again
				// would violate the range-over-func contract.
				return
			}
			if streamCtx.Err() != nil {
				yield(llmadapter.Event{}, err)
				return
			}
			lastErr = err
			kind, ok := llmerr.KindOf(err)
			if ok && !llmerr.Fallthrough(kind) {
				yield(llmadapter.Event{}, err)
				return
			}
		}
		yield(llmadapter.Event{}, lastErr)
	}
}

// streamProviderLoop drives every round-trip for one (provider, model)
// entry over Stream instead of Invoke: open a stream, forward its
// deltas, fold chunks through the Compat stream state, and on a
// tool-call finish either synthesize exhaustion events or execute
// tools and open the next round's stream on the same entry.
//
// Grounded on the teacher's StreamReAct goroutine/channel loop
// (agent/builder_react_streaming.go): events are produced as the
// stream is consumed rather than buffered, one at a time, via the
// yield callback in place of a channel send.
func (c *Coordinator) streamProviderLoop(
	ctx context.Context,
	pm llmadapter.ProviderModel,
	spec llmadapter.LLMCallSpec,
	history *[]*llmadapter.Message,
	router *toolrouter.Router,
	tools []llmadapter.UnifiedTool,
	budget *toolbudget.Budget,
	ledger *[]llmadapter.ToolResultRecord,
	cycles *[]redact.Cycle,
	yield func(llmadapter.Event, error) bool,
) (*llmadapter.LLMResponse, error) {
	cm, err := c.compatFactory(pm.Provider)
	if err != nil {
		return nil, llmerr.Transient(string(pm.Provider), "no compat implementation registered", err)
	}

	for {
		ep, err := c.credentials.ResolveEndpoint(pm.Provider, pm.Model, spec.Metadata, true)
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
			effectiveTools = nil
			none := llmadapter.NoneToolChoice()
			effectiveChoice = &none
			if spec.Settings.ToolFinalPromptEnabled {
				nudge := llmadapter.SystemMessage(toolbudget.FinalPromptText)
				*history = append(*history, &nudge)
			}
		case spec.Settings.ToolFinalPromptEnabled && len(tools) > 0 && budget.WillExhaustAfter(1):
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
		for k, v := range cm.GetStreamingFlags() {
			payload[k] = v
		}
		payload = cm.ApplyProviderExtensions(payload, spec.Settings.Extras)

		chunks, errc := c.invokerFor(spec.Settings.BatchID).Stream(ctx, pm.Provider, ep, payload)

		state := cm.NewStreamState()
		agg := newStreamAggregate()

		streamErr := error(nil)
	readLoop:
		for {
			select {
			case chunk, ok := <-chunks:
				if !ok {
					// chunks and errc close together; a pending error may
					// still be sitting in errc's buffer the moment select
					// observed chunks as closed, so drain it before
					// concluding the stream ended cleanly.
					select {
					case err := <-errc:
						if err != nil {
							streamErr = err
						}
					default:
					}
					break readLoop
				}
				result, err := state.ParseChunk(chunk)
				if err != nil {
					streamErr = llmerr.BadResponse(string(pm.Provider), "parsing stream chunk", err)
					break readLoop
				}
				agg.fold(result)

				if result.Text != "" {
					if !yield(llmadapter.DeltaEvent(result.Text), nil) {
						return nil, errConsumerStopped
					}
				}
				for _, te := range result.ToolEvents {
					if !yield(llmadapter.ToolStreamEvent(te), nil) {
						return nil, errConsumerStopped
					}
					if te.Kind == llmadapter.ToolEventEnd {
						if !yield(llmadapter.ToolCallEvent(llmadapter.ToolCall{ID: te.CallID, Name: te.Name, Arguments: te.Arguments}), nil) {
							return nil, errConsumerStopped
						}
					}
				}
				if result.Usage != nil {
					if !yield(llmadapter.TokenEvent(*result.Usage), nil) {
						return nil, errConsumerStopped
					}
				}
			case err := <-errc:
				if err != nil {
					streamErr = err
				}
				break readLoop
			}
		}
		if streamErr != nil {
			return nil, streamErr
		}

		if len(agg.pendingToolCalls) == 0 {
			response := agg.toResponse(pm)
			response.Raw.ToolResults = *ledger
			return &response, nil
		}

		assistantMsg := llmadapter.Message{
			Role:      llmadapter.RoleAssistant,
			Content:   []llmadapter.ContentPart{llmadapter.Text(agg.text)},
			ToolCalls: agg.pendingToolCalls,
			Reasoning: agg.reasoning(),
		}
		*history = append(*history, &assistantMsg)

		outcomes := c.executeToolCalls(ctx, router, agg.pendingToolCalls, budget, spec.Settings.ParallelToolExecution)
		*ledger = append(*ledger, ledgerRecords(outcomes)...)

		var resultMsgs []*llmadapter.Message
		for _, outcome := range outcomes {
			msg := resultMessage(outcome, budget, spec.Settings)
			*history = append(*history, &msg)
			resultMsgs = append(resultMsgs, &msg)

			// Report exactly what was written to history, including any
			// truncation/countdown annotation resultMessage applied.
			if !yield(llmadapter.ToolStreamEvent(llmadapter.ToolEvent{
				Kind:   llmadapter.ToolEventResult,
				CallID: outcome.call.ID,
				Name:   outcome.call.Name,
				Result: msg.Content[0].ToolResult,
			}), nil) {
				return nil, errConsumerStopped
			}
		}
		*cycles = append(*cycles, redact.Cycle{Assistant: &assistantMsg, Results: resultMsgs})
	}
}

// streamAggregate accumulates one round's worth of stream chunks into
// the shape a final LLMResponse (or the next round's assistant
// message) needs: concatenated text, merged reasoning, the last usage
// seen, the last finish reason, and every completed tool call.
type streamAggregate struct {
	text             string
	reasoningText    string
	reasoningMeta    map[string]any
	usage            *llmadapter.Usage
	finishReason     *string
	pendingToolCalls []llmadapter.ToolCall
}

func newStreamAggregate() *streamAggregate {
	return &streamAggregate{}
}

// fold absorbs one ParseChunk result. Reasoning text concatenates in
// arrival order; metadata is not carried by StreamChunkResult today,
// so merge only ever sees the Text side of llmadapter.MergeReasoning's
// rule — metadata last-writer-wins still applies once a Compat module
// starts attaching it to a chunk.
func (a *streamAggregate) fold(r compat.StreamChunkResult) {
	a.text += r.Text
	a.reasoningText += r.Reasoning
	if r.Usage != nil {
		a.usage = r.Usage
	}
	if r.FinishReason != nil {
		a.finishReason = r.FinishReason
	}
	for _, te := range r.ToolEvents {
		if te.Kind == llmadapter.ToolEventEnd {
			a.pendingToolCalls = append(a.pendingToolCalls, llmadapter.ToolCall{ID: te.CallID, Name: te.Name, Arguments: te.Arguments})
		}
	}
}

func (a *streamAggregate) reasoning() *llmadapter.Reasoning {
	if a.reasoningText == "" && len(a.reasoningMeta) == 0 {
		return nil
	}
	return &llmadapter.Reasoning{Text: a.reasoningText, Metadata: a.reasoningMeta}
}

func (a *streamAggregate) toResponse(pm llmadapter.ProviderModel) llmadapter.LLMResponse {
	return llmadapter.LLMResponse{
		Provider:     pm.Provider,
		Model:        pm.Model,
		Role:         llmadapter.RoleAssistant,
		Content:      llmadapter.NormalizeContent([]llmadapter.ContentPart{llmadapter.Text(a.text)}),
		Reasoning:    a.reasoning(),
		Usage:        a.usage,
		FinishReason: a.finishReason,
	}
}
