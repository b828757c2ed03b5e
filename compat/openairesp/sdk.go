package openairesp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/invoker"
	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/sanitize"
	"github.com/taipm/llmadapter/telemetry"
)

// sdkParams is the reserved payload value an SDKInvoker looks for: the
// same call BuildPayload already renders to the REST map, rendered a
// second time into openai-go/v3's native responses.ResponseNewParams.
// Built from the Responses API's published item-based request shape,
// the same way compat/openai builds ChatCompletionNewParams, but with
// no pack-internal reference implementation of the Responses API to
// ground the item union against directly — disclosed in DESIGN.md.
type sdkParams struct {
	params responses.ResponseNewParams
}

func buildSDKParams(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice, c *Compat) (*sdkParams, error) {
	var instructions string
	var items responses.ResponseInputParam

	for _, m := range messages {
		switch m.Role {
		case llmadapter.RoleSystem:
			instructions += textOnly(m.Content)
		case llmadapter.RoleTool:
			items = append(items, responses.ResponseInputItemUnionParam{
				OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
					CallID: m.ToolCallID,
					Output: responses.ResponseInputItemFunctionCallOutputOutputUnionParam{
						OfString: sdk.String(textOnly(m.Content)),
					},
				},
			})
		case llmadapter.RoleAssistant:
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				items = append(items, responses.ResponseInputItemUnionParam{
					OfFunctionCall: &responses.ResponseFunctionToolCallParam{
						CallID:    tc.ID,
						Name:      sanitize.Sanitize(tc.Name),
						Arguments: string(args),
					},
				})
			}
			if text := textOnly(m.Content); text != "" {
				items = append(items, responses.ResponseInputItemUnionParam{
					OfMessage: &responses.EasyInputMessageParam{
						Role: responses.EasyInputMessageRoleAssistant,
						Content: responses.EasyInputMessageContentUnionParam{
							OfString: sdk.String(text),
						},
					},
				})
			}
		default:
			items = append(items, responses.ResponseInputItemUnionParam{
				OfMessage: &responses.EasyInputMessageParam{
					Role: responses.EasyInputMessageRoleUser,
					Content: responses.EasyInputMessageContentUnionParam{
						OfString: sdk.String(textOnly(m.Content)),
					},
				},
			})
		}
	}

	params := responses.ResponseNewParams{
		Model: responses.ResponsesModel(model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	if instructions != "" {
		params.Instructions = sdk.String(instructions)
	}
	if settings.Temperature != nil {
		params.Temperature = sdk.Float(*settings.Temperature)
	}
	if settings.TopP != nil {
		params.TopP = sdk.Float(*settings.TopP)
	}
	if settings.MaxTokens != nil {
		params.MaxOutputTokens = sdk.Int(int64(*settings.MaxTokens))
	}
	if settings.ReasoningEnabled() && settings.Reasoning != nil && settings.Reasoning.Effort != "" {
		params.Reasoning.Effort = sdk.ReasoningEffort(settings.Reasoning.Effort)
	}

	if len(tools) > 0 {
		toolParams := make([]responses.ToolUnionParam, len(tools))
		for i, t := range tools {
			var fnParams sdk.FunctionParameters
			if err := remarshal(t.ParametersJSONSchema, &fnParams); err != nil {
				return nil, fmt.Errorf("openairesp sdk: decoding tool schema for %q: %w", t.Name, err)
			}
			toolParams[i] = responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:       sanitize.Sanitize(t.Name),
					Parameters: fnParams,
				},
			}
			if toolParams[i].OfFunction != nil {
				toolParams[i].OfFunction.Description = sdk.String(t.Description)
			}
		}
		params.Tools = toolParams
	}

	if toolChoice != nil {
		serialized, err := c.SerializeToolChoice(toolChoice, tools)
		if err != nil {
			return nil, err
		}
		if serialized != nil {
			if err := remarshal(serialized, &params.ToolChoice); err != nil {
				return nil, fmt.Errorf("openairesp sdk: decoding tool_choice: %w", err)
			}
		}
	}

	return &sdkParams{params: params}, nil
}

func remarshal(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// SDKInvoker dispatches OpenAI Responses-API calls through
// openai-go/v3's responses client instead of the raw-HTTP invoker,
// mirroring compat/openai's SDKInvoker for chat-completions.
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
		return nil, llmerr.BadResponse(string(provider), "openairesp sdk: payload missing sdkParams", nil)
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

	resp, err := client.Responses.New(ctx, p.params)
	if err != nil {
		return nil, classifyErr(string(provider), err)
	}

	raw, err := remarshalToMap(resp)
	if err != nil {
		return nil, llmerr.BadResponse(string(provider), "encoding responses payload", err)
	}
	s.logExchange(p.params, false, raw)
	return raw, nil
}

// Stream satisfies the streaming half of providerInvoker over the
// SDK's server-sent-events iterator.
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

		stream := client.Responses.NewStreaming(ctx, p.params)
		for stream.Next() {
			event := stream.Current()
			raw, mErr := remarshalToMap(&event)
			if mErr != nil {
				errc <- llmerr.BadResponse(string(provider), "encoding responses stream event", mErr)
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

func (s *SDKInvoker) logExchange(params responses.ResponseNewParams, streaming bool, resp map[string]any) {
	if s.sink == nil {
		return
	}
	action := "responses.create"
	if streaming {
		action = "responses.create.stream"
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

func classifyErr(provider string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		kind := llmerr.Classify(llmerr.DefaultManifest(), apiErr.StatusCode, apiErr.Message)
		return &llmerr.Error{Kind: kind, Provider: provider, Message: apiErr.Message, Err: err}
	}
	return llmerr.Transient(provider, "openai responses SDK call failed", err)
}
