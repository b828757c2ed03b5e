package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/invoker"
	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/sanitize"
	"github.com/taipm/llmadapter/telemetry"
)

// sdkParams is the reserved payload value an SDKInvoker looks for: the
// same call BuildPayload already renders to the REST map, rendered a
// second time into openai-go/v3's native ChatCompletionNewParams. It
// travels alongside the REST keys, never instead of them, so every
// existing REST-shaped test and the raw-HTTP Invoker keep working
// unchanged — only an OpenAI SDKInvoker ever reads this key.
type sdkParams struct {
	params sdk.ChatCompletionNewParams
}

// buildSDKParams mirrors convertMessages/applySettings/SerializeTools
// above field-for-field, but emits openai-go/v3's native param types
// instead of REST-shaped maps. Grounded on the teacher's
// agent/adapters/openai_adapter.go (buildChatCompletionParams) for the
// settings/message shape, and on openai-go/v3's own Stainless-style
// message/tool constructors.
func buildSDKParams(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice, c *Compat) (*sdkParams, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: sdkMessages(messages),
	}

	if settings.Temperature != nil {
		params.Temperature = sdk.Float(*settings.Temperature)
	}
	if settings.TopP != nil {
		params.TopP = sdk.Float(*settings.TopP)
	}
	if settings.MaxTokens != nil {
		params.MaxTokens = sdk.Int(int64(*settings.MaxTokens))
	}
	if settings.Seed != nil {
		params.Seed = sdk.Int(*settings.Seed)
	}
	if settings.FrequencyPenalty != nil {
		params.FrequencyPenalty = sdk.Float(*settings.FrequencyPenalty)
	}
	if settings.PresencePenalty != nil {
		params.PresencePenalty = sdk.Float(*settings.PresencePenalty)
	}
	if len(settings.LogitBias) > 0 {
		bias := make(map[string]int64, len(settings.LogitBias))
		for k, v := range settings.LogitBias {
			bias[k] = int64(v)
		}
		params.LogitBias = bias
	}
	if settings.LogProbs != nil && *settings.LogProbs {
		params.Logprobs = sdk.Bool(true)
		if settings.TopLogProbs != nil {
			params.TopLogprobs = sdk.Int(int64(*settings.TopLogProbs))
		}
	}
	if len(settings.Stop) > 0 {
		params.Stop = sdk.ChatCompletionNewParamsStopUnion{OfStringArray: settings.Stop}
	}

	if len(tools) > 0 {
		toolParams := make([]sdk.ChatCompletionToolUnionParam, len(tools))
		for i, t := range tools {
			var fnParams sdk.FunctionParameters
			if err := remarshal(t.ParametersJSONSchema, &fnParams); err != nil {
				return nil, fmt.Errorf("openai sdk: decoding tool schema for %q: %w", t.Name, err)
			}
			toolParams[i] = sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
				Name:        sanitize.Sanitize(t.Name),
				Description: sdk.String(t.Description),
				Parameters:  fnParams,
			})
		}
		params.Tools = toolParams
	}

	// tool_choice and response_format are small, self-contained JSON
	// values (a bare string, or a {"type":...} object) with no
	// role/type-based union dispatch to get wrong, so they bridge
	// safely through the same REST serialization this package already
	// trusts, rather than needing their own native constructors.
	if toolChoice != nil {
		serialized, err := c.SerializeToolChoice(toolChoice, tools)
		if err != nil {
			return nil, err
		}
		if serialized != nil {
			if err := remarshal(serialized, &params.ToolChoice); err != nil {
				return nil, fmt.Errorf("openai sdk: decoding tool_choice: %w", err)
			}
		}
	}
	if settings.ResponseFormat != nil {
		if err := remarshal(settings.ResponseFormat, &params.ResponseFormat); err != nil {
			return nil, fmt.Errorf("openai sdk: decoding response_format: %w", err)
		}
	}

	return &sdkParams{params: params}, nil
}

func sdkMessages(messages []llmadapter.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llmadapter.RoleSystem:
			out = append(out, sdk.SystemMessage(textOnly(m.Content)))
		case llmadapter.RoleTool:
			out = append(out, sdk.ToolMessage(textOnly(m.Content), m.ToolCallID))
		case llmadapter.RoleAssistant:
			out = append(out, sdkAssistantMessage(m))
		default:
			out = append(out, sdkUserMessage(m))
		}
	}
	return out
}

func sdkUserMessage(m llmadapter.Message) sdk.ChatCompletionMessageParamUnion {
	if !hasImagePart(m.Content) {
		return sdk.UserMessage(textOnly(m.Content))
	}
	parts := make([]sdk.ChatCompletionContentPartUnionParam, 0, len(m.Content))
	for _, p := range m.Content {
		parts = append(parts, sdkContentPart(p))
	}
	return sdk.ChatCompletionMessageParamUnion{
		OfUser: &sdk.ChatCompletionUserMessageParam{
			Content: sdk.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
		},
	}
}

func hasImagePart(parts []llmadapter.ContentPart) bool {
	for _, p := range parts {
		if p.Type == llmadapter.ContentImage {
			return true
		}
	}
	return false
}

func sdkContentPart(p llmadapter.ContentPart) sdk.ChatCompletionContentPartUnionParam {
	if p.Type == llmadapter.ContentImage {
		url := p.URL
		if url == "" && len(p.Base64) > 0 {
			url = "data:" + p.MimeType + ";base64," + base64.StdEncoding.EncodeToString(p.Base64)
		}
		return sdk.ChatCompletionContentPartUnionParam{
			OfImageURL: &sdk.ChatCompletionContentPartImageParam{
				ImageURL: sdk.ChatCompletionContentPartImageImageURLParam{URL: url},
			},
		}
	}
	return sdk.ChatCompletionContentPartUnionParam{OfText: &sdk.ChatCompletionContentPartTextParam{Text: p.Text}}
}

// sdkAssistantMessage builds an assistant turn natively: a plain
// openai.AssistantMessage when there are no tool calls to attach, or a
// manually constructed ChatCompletionAssistantMessageParam when there
// are, since AssistantMessage's helper signature has no room for
// tool_calls.
func sdkAssistantMessage(m llmadapter.Message) sdk.ChatCompletionMessageParamUnion {
	if len(m.ToolCalls) == 0 {
		return sdk.AssistantMessage(textOnly(m.Content))
	}

	param := &sdk.ChatCompletionAssistantMessageParam{}
	if text := textOnly(m.Content); text != "" {
		param.Content = sdk.ChatCompletionAssistantMessageParamContentUnion{
			OfString: sdk.String(text),
		}
	}
	calls := make([]sdk.ChatCompletionMessageToolCallUnionParam, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		calls[i] = sdk.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &sdk.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      sanitize.Sanitize(tc.Name),
					Arguments: string(args),
				},
			},
		}
	}
	param.ToolCalls = calls
	return sdk.ChatCompletionMessageParamUnion{OfAssistant: param}
}

func remarshal(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// SDKInvoker dispatches OpenAI calls through openai-go/v3 instead of
// the raw-HTTP invoker, mirroring compat/google's SDKInvoker: one
// client is cached per API key, a payload's reserved "sdkParams" key
// is type-asserted out, and the SDK's own response/stream types are
// bridged back to map[string]any via JSON so the existing
// ParseResponse/ParseChunk logic never has to know the transport
// changed.
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
		return nil, llmerr.BadResponse(string(provider), "openai sdk: payload missing sdkParams", nil)
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

	resp, err := client.Chat.Completions.New(ctx, p.params)
	if err != nil {
		return nil, classifyErr(string(provider), err)
	}

	raw, err := remarshalToMap(resp)
	if err != nil {
		return nil, llmerr.BadResponse(string(provider), "encoding openai response", err)
	}
	s.logExchange(p.params, false, raw)
	return raw, nil
}

// Stream satisfies the streaming half of providerInvoker over the
// SDK's server-sent-events iterator, folding each chunk into the same
// decoded shape Invoke returns.
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

		stream := client.Chat.Completions.NewStreaming(ctx, p.params)
		for stream.Next() {
			chunk := stream.Current()
			raw, mErr := remarshalToMap(&chunk)
			if mErr != nil {
				errc <- llmerr.BadResponse(string(provider), "encoding openai stream chunk", mErr)
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

func (s *SDKInvoker) logExchange(params sdk.ChatCompletionNewParams, streaming bool, resp map[string]any) {
	if s.sink == nil {
		return
	}
	action := "chat.completions.create"
	if streaming {
		action = "chat.completions.create.stream"
	}
	reqBody, _ := json.Marshal(params)
	respBody, _ := json.Marshal(resp)
	_ = s.sink.Write(telemetry.ExchangeRecord{
		Method:         "SDK_CALL",
		URL:            fmt.Sprintf("openai://%s", action),
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

// classifyErr maps an openai-go client error onto the llmerr taxonomy.
// The SDK surfaces provider-side failures as *sdk.Error, which carries
// the response's HTTP status code — the same signal
// llmerr.Classify already knows how to read.
func classifyErr(provider string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		kind := llmerr.Classify(llmerr.DefaultManifest(), apiErr.StatusCode, apiErr.Message)
		return &llmerr.Error{Kind: kind, Provider: provider, Message: apiErr.Message, Err: err}
	}
	return llmerr.Transient(provider, "openai SDK call failed", err)
}
