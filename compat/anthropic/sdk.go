package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/invoker"
	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/sanitize"
	"github.com/taipm/llmadapter/telemetry"
)

// sdkParams is the reserved payload value an SDKInvoker looks for: the
// same call BuildPayload already renders to the REST map, rendered a
// second time into anthropic-sdk-go's native MessageNewParams. It
// travels alongside the REST keys, never instead of them, so every
// existing REST-shaped test and the raw-HTTP Invoker keep working
// unchanged — only an Anthropic SDKInvoker ever reads this key.
type sdkParams struct {
	params sdk.MessageNewParams
}

// buildSDKParams mirrors extractSystem/convertMessages/
// shouldEnableThinking/SerializeTools above field-for-field, but emits
// anthropic-sdk-go's native param types instead of REST-shaped maps.
// Grounded on haasonsaas-nexus/internal/agent/providers/anthropic.go,
// the pack's only real Anthropic SDK integration.
func buildSDKParams(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice, c *Compat) (*sdkParams, error) {
	system, rest := extractSystem(messages)

	maxTokens := int64(defaultMaxTokens)
	if settings.MaxTokens != nil {
		maxTokens = int64(*settings.MaxTokens)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
		Messages:  sdkMessages(rest),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Type: "text", Text: system}}
	}
	if settings.Temperature != nil {
		params.Temperature = sdk.Float(*settings.Temperature)
	}
	if settings.TopP != nil {
		params.TopP = sdk.Float(*settings.TopP)
	}
	if len(settings.Stop) > 0 {
		params.StopSequences = settings.Stop
	}
	if shouldEnableThinking(settings, rest) {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(settings.EffectiveReasoningBudget(defaultThinkingBudget)))
	}

	if len(tools) > 0 {
		toolParams := make([]sdk.ToolUnionParam, len(tools))
		for i, t := range tools {
			var schema sdk.ToolInputSchemaParam
			if err := remarshal(t.ParametersJSONSchema, &schema); err != nil {
				return nil, fmt.Errorf("anthropic sdk: decoding tool schema for %q: %w", t.Name, err)
			}
			toolParam := sdk.ToolUnionParamOfTool(schema, sanitize.Sanitize(t.Name))
			if toolParam.OfTool != nil {
				toolParam.OfTool.Description = sdk.String(t.Description)
			}
			toolParams[i] = toolParam
		}
		params.Tools = toolParams
	}

	// tool_choice has no role/type-based union dispatch to get wrong
	// the way a message array does, so it bridges through the same
	// REST serialization this package already trusts.
	if toolChoice != nil {
		serialized, err := c.SerializeToolChoice(toolChoice, tools)
		if err != nil {
			return nil, err
		}
		if serialized != nil {
			if err := remarshal(serialized, &params.ToolChoice); err != nil {
				return nil, fmt.Errorf("anthropic sdk: decoding tool_choice: %w", err)
			}
		}
	}

	return &sdkParams{params: params}, nil
}

// sdkMessages mirrors convertMessages' tool-result-flush state machine
// but builds anthropic.MessageParam values via the SDK's own
// NewUserMessage/NewAssistantMessage/NewToolResultBlock/NewToolUseBlock
// constructors instead of maps.
func sdkMessages(messages []llmadapter.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	var pendingResults []sdk.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) == 0 {
			return
		}
		out = append(out, sdk.NewUserMessage(pendingResults...))
		pendingResults = nil
	}

	for _, m := range messages {
		switch m.Role {
		case llmadapter.RoleTool:
			pendingResults = append(pendingResults, sdk.NewToolResultBlock(m.ToolCallID, textOnly(m.Content), false))
		case llmadapter.RoleUser:
			flush()
			out = append(out, sdk.NewUserMessage(sdkUserBlocks(m.Content)...))
		case llmadapter.RoleAssistant:
			flush()
			out = append(out, sdk.NewAssistantMessage(sdkAssistantBlocks(m)...))
		}
	}
	flush()
	return out
}

func sdkUserBlocks(parts []llmadapter.ContentPart) []sdk.ContentBlockParamUnion {
	out := make([]sdk.ContentBlockParamUnion, 0, len(parts))
	for _, p := range parts {
		if p.Type == llmadapter.ContentText && isBlank(p.Text) {
			continue
		}
		if p.Type == llmadapter.ContentText {
			out = append(out, sdk.NewTextBlock(p.Text))
		}
	}
	return out
}

func sdkAssistantBlocks(m llmadapter.Message) []sdk.ContentBlockParamUnion {
	var blocks []sdk.ContentBlockParamUnion
	if m.Reasoning != nil && m.Reasoning.Text != "" {
		signature, _ := m.Reasoning.Metadata["signature"].(string)
		blocks = append(blocks, sdk.NewThinkingBlock(signature, m.Reasoning.Text))
	}
	for _, p := range m.Content {
		if p.Type == llmadapter.ContentText && isBlank(p.Text) {
			continue
		}
		if p.Type == llmadapter.ContentText {
			blocks = append(blocks, sdk.NewTextBlock(p.Text))
		}
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Arguments, sanitize.Sanitize(tc.Name)))
	}
	return blocks
}

func remarshal(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// SDKInvoker dispatches Anthropic calls through anthropic-sdk-go
// instead of the raw-HTTP invoker, mirroring compat/google's and
// compat/openai's SDKInvoker: one client cached per API key, a
// payload's reserved "sdkParams" key type-asserted out, and the SDK's
// own response/stream types bridged back to map[string]any via JSON
// so the existing ParseResponse/ParseChunk logic never has to know
// the transport changed.
type SDKInvoker struct {
	logger telemetry.Logger
	sink   *telemetry.ExchangeSink

	mu      sync.Mutex
	clients map[string]sdk.Client
}

// NewSDKInvoker creates an SDKInvoker. logger may be nil.
func NewSDKInvoker(logger telemetry.Logger) *SDKInvoker {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &SDKInvoker{logger: logger, clients: map[string]sdk.Client{}}
}

// WithSink returns a shallow copy of s bound to a different
// telemetry.ExchangeSink, mirroring *invoker.Invoker.WithSink.
func (s *SDKInvoker) WithSink(sink *telemetry.ExchangeSink) *SDKInvoker {
	cp := *s
	cp.sink = sink
	return &cp
}

func (s *SDKInvoker) client(apiKey string) sdk.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[apiKey]; ok {
		return c
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	s.clients[apiKey] = c
	return c
}

func sdkParamsFrom(provider llmadapter.Provider, payload map[string]any) (*sdkParams, error) {
	p, ok := payload["sdkParams"].(*sdkParams)
	if !ok {
		return nil, llmerr.BadResponse(string(provider), "anthropic sdk: payload missing sdkParams", nil)
	}
	return p, nil
}

// Invoke satisfies the same providerInvoker shape as *invoker.Invoker.
func (s *SDKInvoker) Invoke(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any) (map[string]any, error) {
	p, err := sdkParamsFrom(provider, payload)
	if err != nil {
		return nil, err
	}
	client := s.client(ep.APIKey)

	resp, err := client.Messages.New(ctx, p.params)
	if err != nil {
		return nil, classifyErr(string(provider), err)
	}

	raw, err := remarshalToMap(resp)
	if err != nil {
		return nil, llmerr.BadResponse(string(provider), "encoding anthropic response", err)
	}
	s.logExchange(p.params, false, raw)
	return raw, nil
}

// Stream satisfies the streaming half of providerInvoker over the
// SDK's server-sent-events stream, folding each event into the same
// decoded shape Invoke returns so compat/anthropic/stream.go's
// ParseChunk never has to know the transport was an SDK call rather
// than raw SSE.
func (s *SDKInvoker) Stream(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any) (<-chan map[string]any, <-chan error) {
	chunks := make(chan map[string]any)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		p, err := sdkParamsFrom(provider, payload)
		if err != nil {
			errc <- err
			return
		}
		client := s.client(ep.APIKey)

		stream := client.Messages.NewStreaming(ctx, p.params)
		for stream.Next() {
			event := stream.Current()
			raw, mErr := remarshalToMap(&event)
			if mErr != nil {
				errc <- llmerr.BadResponse(string(provider), "encoding anthropic stream event", mErr)
				return
			}
			s.logExchange(p.params, true, raw)
			select {
			case chunks <- raw:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			errc <- classifyErr(string(provider), err)
		}
	}()

	return chunks, errc
}

func (s *SDKInvoker) logExchange(params sdk.MessageNewParams, streaming bool, resp map[string]any) {
	if s.sink == nil {
		return
	}
	action := "messages.create"
	if streaming {
		action = "messages.create.stream"
	}
	reqBody, _ := json.Marshal(params)
	respBody, _ := json.Marshal(resp)
	_ = s.sink.Write(telemetry.ExchangeRecord{
		Method:         "SDK_CALL",
		URL:            fmt.Sprintf("anthropic://%s", action),
		RequestBody:    string(reqBody),
		ResponseStatus: 200,
		ResponseBody:   string(respBody),
	})
}

func remarshalToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// classifyErr maps an anthropic-sdk-go client error onto the llmerr
// taxonomy. anthropic-sdk-go is generated by the same Stainless
// toolchain as openai-go and shares its error shape: a *sdk.Error
// carrying the response's HTTP status code, the same signal
// llmerr.Classify already knows how to read.
func classifyErr(provider string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		kind := llmerr.Classify(llmerr.DefaultManifest(), apiErr.StatusCode, apiErr.Message)
		return &llmerr.Error{Kind: kind, Provider: provider, Message: apiErr.Message, Err: err}
	}
	return llmerr.Transient(provider, "anthropic SDK call failed", err)
}
