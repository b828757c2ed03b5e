package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/invoker"
	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/sanitize"
	"github.com/taipm/llmadapter/schema"
	"github.com/taipm/llmadapter/telemetry"
)

// sdkRequest is the reserved payload value an SDKInvoker looks for:
// the same call BuildPayload already renders to the REST map, rendered
// a second time into google.golang.org/genai's native request types.
// It travels alongside the REST keys, never instead of them, so every
// existing REST-shaped test and the raw-HTTP Invoker both keep working
// unchanged; only a Google SDKInvoker ever reads this key.
type sdkRequest struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

// buildSDKRequest mirrors convertMessages/aggregateSystemInstruction/
// SerializeTools above field-for-field, but emits genai's native types
// instead of REST-shaped maps. Grounded on the teacher's
// agent/gemini_v3.go (convertMessages, createGenerationConfig,
// convertToolSchema) and haasonsaas-nexus's toolconv/gemini.go.
func buildSDKRequest(model string, settings llmadapter.CallSettings, messages []llmadapter.Message, tools []llmadapter.UnifiedTool, toolChoice *llmadapter.ToolChoice) (*sdkRequest, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llmadapter.RoleSystem:
			continue
		case llmadapter.RoleTool:
			contents = append(contents, sdkFunctionResponseContent(m))
		case llmadapter.RoleAssistant:
			contents = append(contents, sdkAssistantContent(m))
		default:
			contents = append(contents, sdkUserContent(m))
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if instruction := aggregateSystemInstruction(messages); instruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}
	if settings.Temperature != nil {
		t := float32(*settings.Temperature)
		cfg.Temperature = &t
	}
	if settings.TopP != nil {
		p := float32(*settings.TopP)
		cfg.TopP = &p
	}
	if settings.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*settings.MaxTokens)
	}
	if len(settings.Stop) > 0 {
		cfg.StopSequences = settings.Stop
	}
	if settings.ReasoningEnabled() {
		budget := int32(settings.EffectiveReasoningBudget(defaultThinkingBudget))
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(tools))
		for i, t := range tools {
			var params genai.Schema
			if err := remarshal(schema.ToGemini(t.ParametersJSONSchema), &params); err != nil {
				return nil, fmt.Errorf("google sdk: decoding tool schema for %q: %w", t.Name, err)
			}
			decls[i] = &genai.FunctionDeclaration{
				Name:        sanitize.Sanitize(t.Name),
				Description: t.Description,
				Parameters:  &params,
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if toolChoice != nil {
		tc, err := sdkToolConfig(toolChoice)
		if err != nil {
			return nil, err
		}
		cfg.ToolConfig = tc
	}

	return &sdkRequest{model: model, contents: contents, config: cfg}, nil
}

func sdkUserContent(m llmadapter.Message) *genai.Content {
	parts := make([]*genai.Part, 0, len(m.Content))
	for _, p := range m.Content {
		if p.Type != llmadapter.ContentText {
			continue
		}
		parts = append(parts, &genai.Part{Text: p.Text})
	}
	return &genai.Content{Role: genai.RoleUser, Parts: parts}
}

func sdkAssistantContent(m llmadapter.Message) *genai.Content {
	parts := make([]*genai.Part, 0, len(m.Content)+len(m.ToolCalls))
	for _, p := range m.Content {
		if p.Type == llmadapter.ContentText {
			parts = append(parts, &genai.Part{Text: p.Text})
		}
	}
	for _, tc := range m.ToolCalls {
		parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Arguments}})
	}
	return &genai.Content{Role: genai.RoleModel, Parts: parts}
}

// sdkFunctionResponseContent mirrors functionResponsePart, but
// genai.FunctionResponse.Response is strictly map[string]any: a raw
// tool result that isn't already a map gets wrapped under "output" so
// it still round-trips, instead of the REST builder's "pass anything
// through" latitude.
func sdkFunctionResponseContent(m llmadapter.Message) *genai.Content {
	var texts []string
	var rawResult any
	for _, p := range m.Content {
		if p.Type == llmadapter.ContentText {
			texts = append(texts, p.Text)
		}
		if p.Type == llmadapter.ContentToolResult {
			rawResult = p.ToolResult
		}
	}

	var response map[string]any
	switch {
	case len(texts) > 0:
		response = map[string]any{"output": strings.Join(texts, "\n")}
	default:
		if asMap, ok := rawResult.(map[string]any); ok {
			response = asMap
		} else {
			response = map[string]any{"output": rawResult}
		}
	}

	part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
		Name:     sanitize.Sanitize(m.Name),
		Response: response,
	}}
	return &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}}
}

func sdkToolConfig(choice *llmadapter.ToolChoice) (*genai.ToolConfig, error) {
	switch choice.Kind {
	case llmadapter.ToolChoiceAuto:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}}, nil
	case llmadapter.ToolChoiceNone:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone}}, nil
	case llmadapter.ToolChoiceRequired:
		cfg := &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny}
		for _, n := range choice.Allowed {
			cfg.AllowedFunctionNames = append(cfg.AllowedFunctionNames, sanitize.Sanitize(n))
		}
		return &genai.ToolConfig{FunctionCallingConfig: cfg}, nil
	case llmadapter.ToolChoiceSingle:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{sanitize.Sanitize(choice.Name)},
		}}, nil
	default:
		return nil, fmt.Errorf("google: unknown tool choice kind %q", choice.Kind)
	}
}

func remarshal(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// SDKInvoker dispatches Google calls through google.golang.org/genai
// instead of the raw-HTTP invoker package. Of the supported providers
// only OpenRouter speaks plain REST over *invoker.Invoker; OpenAI, the
// OpenAI Responses API and Anthropic each have their own SDKInvoker,
// and Gemini goes through this one. One
// SDKInvoker is shared process-wide and caches one *genai.Client per
// API key, mirroring how *invoker.Invoker reuses one *http.Client.
type SDKInvoker struct {
	logger telemetry.Logger
	sink   *telemetry.ExchangeSink

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewSDKInvoker creates an SDKInvoker. logger may be nil.
func NewSDKInvoker(logger telemetry.Logger) *SDKInvoker {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &SDKInvoker{logger: logger, clients: map[string]*genai.Client{}}
}

// WithSink returns a shallow copy of s bound to a different
// telemetry.ExchangeSink, mirroring *invoker.Invoker.WithSink so the
// coordinator can route one SDKInvoker's calls to a per-batch rotating
// log file without reopening a client per batch.
func (s *SDKInvoker) WithSink(sink *telemetry.ExchangeSink) *SDKInvoker {
	cp := *s
	cp.sink = sink
	return &cp
}

func (s *SDKInvoker) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[apiKey]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	s.clients[apiKey] = c
	return c, nil
}

func sdkRequestFrom(provider llmadapter.Provider, payload map[string]any) (*sdkRequest, error) {
	req, ok := payload["sdkRequest"].(*sdkRequest)
	if !ok {
		return nil, llmerr.BadResponse(string(provider), "google sdk: payload missing sdkRequest", nil)
	}
	return req, nil
}

// Invoke satisfies the same providerInvoker shape as *invoker.Invoker,
// so the coordinator can dispatch Google calls here with no change to
// the caller's signature.
func (s *SDKInvoker) Invoke(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any) (map[string]any, error) {
	req, err := sdkRequestFrom(provider, payload)
	if err != nil {
		return nil, err
	}
	client, err := s.client(ctx, ep.APIKey)
	if err != nil {
		return nil, classifyErr(string(provider), err)
	}

	resp, err := client.Models.GenerateContent(ctx, req.model, req.contents, req.config)
	if err != nil {
		return nil, classifyErr(string(provider), err)
	}

	raw, err := remarshalToMap(resp)
	if err != nil {
		return nil, llmerr.BadResponse(string(provider), "encoding genai response", err)
	}

	s.logExchange(req.model, false, payload, resp)
	return raw, nil
}

// Stream satisfies the streaming half of providerInvoker over
// genai's GenerateContentStream iterator, folding each yielded
// response into the same decoded-chunk shape Invoke returns so
// compat/google/stream.go's ParseChunk never has to know the
// transport was an SDK call rather than SSE.
func (s *SDKInvoker) Stream(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any) (<-chan map[string]any, <-chan error) {
	chunks := make(chan map[string]any)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		req, err := sdkRequestFrom(provider, payload)
		if err != nil {
			errc <- err
			return
		}
		client, err := s.client(ctx, ep.APIKey)
		if err != nil {
			errc <- classifyErr(string(provider), err)
			return
		}

		for resp, err := range client.Models.GenerateContentStream(ctx, req.model, req.contents, req.config) {
			if err != nil {
				errc <- classifyErr(string(provider), err)
				return
			}
			chunk, mErr := remarshalToMap(resp)
			if mErr != nil {
				errc <- llmerr.BadResponse(string(provider), "encoding genai stream chunk", mErr)
				return
			}
			s.logExchange(req.model, true, payload, resp)
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunks, errc
}

func (s *SDKInvoker) logExchange(model string, streaming bool, payload map[string]any, resp *genai.GenerateContentResponse) {
	if s.sink == nil {
		return
	}
	action := "generateContent"
	if streaming {
		action = "streamGenerateContent"
	}
	reqBody, _ := json.Marshal(payload["contents"])
	respBody, _ := json.Marshal(resp)
	_ = s.sink.Write(telemetry.ExchangeRecord{
		Method:         "SDK_CALL",
		URL:            fmt.Sprintf("genai://models/%s:%s", model, action),
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

// classifyErr maps a genai client error onto the llmerr taxonomy,
// grounded on the teacher's handleError (agent/gemini_v3.go): the
// genai SDK surfaces provider-side failures as *googleapi.Error, whose
// Code is the same HTTP status llmerr.Classify already knows how to
// read.
func classifyErr(provider string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		kind := llmerr.Classify(llmerr.DefaultManifest(), apiErr.Code, apiErr.Message)
		return &llmerr.Error{Kind: kind, Provider: provider, Message: apiErr.Message, Err: err}
	}
	return llmerr.Transient(provider, "gemini SDK call failed", err)
}
