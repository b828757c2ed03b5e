package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
	"github.com/taipm/llmadapter/invoker"
	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/tool"
)

// fakeStreamState replays a fixed slice of compat.StreamChunkResult,
// one per ParseChunk call, ignoring the chunk's actual content — the
// chunk payloads fakeInvoker.Stream emits are just placeholders to
// drive the read loop the right number of times.
type fakeStreamState struct {
	results []compat.StreamChunkResult
	i       int
}

func (s *fakeStreamState) ParseChunk(map[string]any) (compat.StreamChunkResult, error) {
	r := s.results[s.i]
	s.i++
	return r, nil
}

// fakeCompat is a test double satisfying compat.Compat. Each call to
// ParseResponse/NewStreamState advances through a queue the test sets
// up ahead of time, so one fakeCompat can drive a multi-round tool-use
// loop deterministically.
type fakeCompat struct {
	buildErr       error
	responses      []llmadapter.LLMResponse
	respIdx        int
	streamRounds   [][]compat.StreamChunkResult
	streamIdx      int
	lastMessages   []llmadapter.Message
	lastTools      []llmadapter.UnifiedTool
	lastToolChoice *llmadapter.ToolChoice
}

func (f *fakeCompat) BuildPayload(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice) (map[string]any, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	f.lastMessages = messages
	f.lastTools = tools
	f.lastToolChoice = toolChoice
	return map[string]any{"model": model}, nil
}

func (f *fakeCompat) ParseResponse(map[string]any, string) (llmadapter.LLMResponse, error) {
	r := f.responses[f.respIdx]
	f.respIdx++
	return r, nil
}

func (f *fakeCompat) NewStreamState() compat.StreamState {
	s := &fakeStreamState{results: f.streamRounds[f.streamIdx]}
	f.streamIdx++
	return s
}

func (f *fakeCompat) GetStreamingFlags() map[string]any { return map[string]any{"stream": true} }

func (f *fakeCompat) SerializeTools(tools []llmadapter.UnifiedTool) (any, error) { return tools, nil }

func (f *fakeCompat) SerializeToolChoice(choice *llmadapter.ToolChoice, tools []llmadapter.UnifiedTool) (any, error) {
	return choice, nil
}

func (f *fakeCompat) ApplyProviderExtensions(payload map[string]any, extras map[string]any) map[string]any {
	return payload
}

// fakeInvoker satisfies providerInvoker with pre-scripted Invoke
// results and Stream chunk rounds, so coordinator tests never open a
// real connection.
type fakeInvoker struct {
	invokeRaw []map[string]any
	invokeErr []error
	invokeIdx int

	streamChunkCounts []int // number of placeholder chunks to emit per round
	streamErrs        []error
	streamIdx         int
}

func (f *fakeInvoker) Invoke(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any) (map[string]any, error) {
	raw := f.invokeRaw[f.invokeIdx]
	err := f.invokeErr[f.invokeIdx]
	f.invokeIdx++
	return raw, err
}

func (f *fakeInvoker) Stream(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any) (<-chan map[string]any, <-chan error) {
	count := f.streamChunkCounts[f.streamIdx]
	streamErr := f.streamErrs[f.streamIdx]
	f.streamIdx++

	chunks := make(chan map[string]any)
	errc := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errc)
		for i := 0; i < count; i++ {
			select {
			case chunks <- map[string]any{"i": i}:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			errc <- streamErr
		}
	}()
	return chunks, errc
}

// textOf concatenates a response's text content parts, mirroring
// llmadapter.Message.TextContent for the LLMResponse shape these tests
// assert against.
func textOf(resp llmadapter.LLMResponse) string {
	var out string
	for _, part := range resp.Content {
		if part.Type == llmadapter.ContentText {
			out += part.Text
		}
	}
	return out
}

func usageRef(n int) *llmadapter.Usage {
	return &llmadapter.Usage{TotalTokens: llmadapter.IntPtr(n)}
}

func newTestCoordinator(t *testing.T, fc *fakeCompat, fi *fakeInvoker, opts ...Option) *Coordinator {
	t.Helper()
	base := []Option{
		WithCompatFactory(func(llmadapter.Provider) (compat.Compat, error) { return fc, nil }),
		WithInvoker(fi),
		WithCredentialResolver(stubCredentialResolver{}),
	}
	return New(append(base, opts...)...)
}

// stubCredentialResolver always succeeds, since these tests never hit
// the network and don't care about real endpoints.
type stubCredentialResolver struct{}

func (stubCredentialResolver) ResolveEndpoint(provider llmadapter.Provider, model string, meta llmadapter.CallMetadata, streaming bool) (invoker.Endpoint, error) {
	return invoker.Endpoint{BaseURL: "https://example.test", Path: "/"}, nil
}

func baseSpec(pm ...llmadapter.ProviderModel) llmadapter.LLMCallSpec {
	return llmadapter.LLMCallSpec{
		Messages:    []llmadapter.Message{llmadapter.UserMessage("hi")},
		LLMPriority: pm,
	}
}

func TestRunReturnsFinalResponseWithNoToolCalls(t *testing.T) {
	fc := &fakeCompat{
		responses: []llmadapter.LLMResponse{
			{Content: []llmadapter.ContentPart{llmadapter.Text("hello")}, Usage: usageRef(5)},
		},
	}
	fi := &fakeInvoker{
		invokeRaw: []map[string]any{{}},
		invokeErr: []error{nil},
	}
	c := newTestCoordinator(t, fc, fi)

	spec := baseSpec(llmadapter.ProviderModel{Provider: llmadapter.ProviderOpenAI, Model: "gpt-test"})
	resp, err := c.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "hello", textOf(*resp))
	assert.Equal(t, llmadapter.ProviderOpenAI, resp.Provider)
	assert.Empty(t, resp.Raw.ToolResults)
}

func TestRunExecutesToolCallRoundTripAndBuildsLedger(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Add(tool.New("weather", "").WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
		return "sunny", nil
	}))

	fc := &fakeCompat{
		responses: []llmadapter.LLMResponse{
			{
				Content: []llmadapter.ContentPart{llmadapter.Text("")},
				ToolCalls: []llmadapter.ToolCall{
					{ID: "call_1", Name: "weather", Arguments: map[string]any{"city": "Hanoi"}},
				},
			},
			{Content: []llmadapter.ContentPart{llmadapter.Text("it is sunny")}},
		},
	}
	fi := &fakeInvoker{
		invokeRaw: []map[string]any{{}, {}},
		invokeErr: []error{nil, nil},
	}
	c := newTestCoordinator(t, fc, fi, WithTools(reg))

	spec := baseSpec(llmadapter.ProviderModel{Provider: llmadapter.ProviderOpenAI, Model: "gpt-test"})
	resp, err := c.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "it is sunny", textOf(*resp))
	require.Len(t, resp.Raw.ToolResults, 1)
	assert.Equal(t, "weather", resp.Raw.ToolResults[0].Tool)
	assert.Equal(t, "sunny", resp.Raw.ToolResults[0].Result)

	// The second round's payload must carry the assistant tool-call
	// turn and the tool result turn appended to history.
	require.Len(t, fc.lastMessages, 3)
	assert.Equal(t, llmadapter.RoleAssistant, fc.lastMessages[1].Role)
	assert.Equal(t, llmadapter.RoleTool, fc.lastMessages[2].Role)
}

func TestRunFallsThroughOnTransientProviderError(t *testing.T) {
	fc := &fakeCompat{
		responses: []llmadapter.LLMResponse{
			{Content: []llmadapter.ContentPart{llmadapter.Text("from fallback")}},
		},
	}
	fi := &fakeInvoker{
		invokeRaw: []map[string]any{nil, {}},
		invokeErr: []error{llmerr.Transient("openai", "503", nil), nil},
	}
	c := newTestCoordinator(t, fc, fi)

	spec := baseSpec(
		llmadapter.ProviderModel{Provider: llmadapter.ProviderOpenAI, Model: "gpt-test"},
		llmadapter.ProviderModel{Provider: llmadapter.ProviderAnthropic, Model: "claude-test"},
	)
	resp, err := c.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "from fallback", textOf(*resp))
}

func TestRunStopsImmediatelyOnNonFallthroughError(t *testing.T) {
	fc := &fakeCompat{responses: []llmadapter.LLMResponse{{}}}
	fi := &fakeInvoker{
		invokeRaw: []map[string]any{nil},
		invokeErr: []error{llmerr.BadResponse("openai", "malformed json", nil)},
	}
	c := newTestCoordinator(t, fc, fi)

	spec := baseSpec(
		llmadapter.ProviderModel{Provider: llmadapter.ProviderOpenAI, Model: "gpt-test"},
		llmadapter.ProviderModel{Provider: llmadapter.ProviderAnthropic, Model: "claude-test"},
	)
	_, err := c.Run(context.Background(), spec)
	require.Error(t, err)
	kind, ok := llmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, llmerr.KindBadResponse, kind)
	// Only the first entry's Invoke should have run.
	assert.Equal(t, 1, fi.invokeIdx)
}

func TestRunStreamEmitsDeltaAndDoneEvents(t *testing.T) {
	fc := &fakeCompat{
		streamRounds: [][]compat.StreamChunkResult{
			{
				{Text: "he"},
				{Text: "llo", Usage: usageRef(3)},
			},
		},
	}
	fi := &fakeInvoker{
		streamChunkCounts: []int{2},
		streamErrs:        []error{nil},
	}
	c := newTestCoordinator(t, fc, fi)

	spec := baseSpec(llmadapter.ProviderModel{Provider: llmadapter.ProviderOpenAI, Model: "gpt-test"})

	var texts []string
	var sawToken, sawDone bool
	var final llmadapter.LLMResponse
	for ev, err := range c.RunStream(context.Background(), spec) {
		require.NoError(t, err)
		switch ev.Type {
		case llmadapter.EventDelta:
			texts = append(texts, ev.Delta)
		case llmadapter.EventToken:
			sawToken = true
		case llmadapter.EventDone:
			sawDone = true
			final = *ev.Response
		}
	}
	assert.Equal(t, []string{"he", "llo"}, texts)
	assert.True(t, sawToken)
	require.True(t, sawDone)
	assert.Equal(t, "hello", textOf(final))
}

func TestRunStreamStoppingEarlyDoesNotPanic(t *testing.T) {
	fc := &fakeCompat{
		streamRounds: [][]compat.StreamChunkResult{
			{
				{Text: "a"},
				{Text: "b"},
				{Text: "c"},
			},
		},
	}
	fi := &fakeInvoker{
		streamChunkCounts: []int{3},
		streamErrs:        []error{nil},
	}
	c := newTestCoordinator(t, fc, fi)
	spec := baseSpec(llmadapter.ProviderModel{Provider: llmadapter.ProviderOpenAI, Model: "gpt-test"})

	assert.NotPanics(t, func() {
		count := 0
		for ev, err := range c.RunStream(context.Background(), spec) {
			require.NoError(t, err)
			count++
			_ = ev
			if count == 1 {
				break
			}
		}
	})
}

func TestRunStreamToolCallRoundTrip(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Add(tool.New("weather", "").WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
		return "sunny", nil
	}))

	fc := &fakeCompat{
		streamRounds: [][]compat.StreamChunkResult{
			{
				{
					ToolEvents: []llmadapter.ToolEvent{
						{Kind: llmadapter.ToolEventEnd, CallID: "call_1", Name: "weather", Arguments: map[string]any{"city": "Hanoi"}},
					},
				},
			},
			{
				{Text: "it is sunny"},
			},
		},
	}
	fi := &fakeInvoker{
		streamChunkCounts: []int{1, 1},
		streamErrs:        []error{nil, nil},
	}
	c := newTestCoordinator(t, fc, fi, WithTools(reg))
	spec := baseSpec(llmadapter.ProviderModel{Provider: llmadapter.ProviderOpenAI, Model: "gpt-test"})

	var sawToolResult bool
	var final llmadapter.LLMResponse
	for ev, err := range c.RunStream(context.Background(), spec) {
		require.NoError(t, err)
		if ev.Type == llmadapter.EventTool && ev.Tool != nil && ev.Tool.Kind == llmadapter.ToolEventResult {
			sawToolResult = true
			assert.Equal(t, "sunny", ev.Tool.Result)
		}
		if ev.Type == llmadapter.EventDone {
			final = *ev.Response
		}
	}
	assert.True(t, sawToolResult)
	assert.Equal(t, "it is sunny", textOf(final))
	require.Len(t, final.Raw.ToolResults, 1)
	assert.Equal(t, "weather", final.Raw.ToolResults[0].Tool)
}
