package coordinator

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
	anthropicsdk "github.com/taipm/llmadapter/compat/anthropic"
	googlesdk "github.com/taipm/llmadapter/compat/google"
	openaisdk "github.com/taipm/llmadapter/compat/openai"
	openairespsdk "github.com/taipm/llmadapter/compat/openairesp"
	"github.com/taipm/llmadapter/invoker"
	"github.com/taipm/llmadapter/mcp"
	"github.com/taipm/llmadapter/telemetry"
	"github.com/taipm/llmadapter/tool"
	"github.com/taipm/llmadapter/toolrouter"
	"github.com/taipm/llmadapter/vectorctx"
)

// providerInvoker is the subset of *invoker.Invoker the coordinator
// depends on, narrowed to an interface so coordinator_test.go can
// substitute a fake transport without standing up an httptest server
// for every case.
type providerInvoker interface {
	Invoke(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any) (map[string]any, error)
	Stream(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any) (<-chan map[string]any, <-chan error)
}

// routingInvoker dispatches by provider: Google, OpenAI, and
// Anthropic each go through their own native SDK's SDKInvoker;
// OpenRouter (which speaks OpenAI's wire format but isn't an OpenAI
// SDK target) continues over the raw-HTTP *invoker.Invoker. This is
// the only seam the SDK-vs-HTTP split touches — run.go and stream.go
// call providerInvoker.Invoke/Stream exactly as before, unaware
// dispatch now forks by provider.
type routingInvoker struct {
	http       *invoker.Invoker
	google     *googlesdk.SDKInvoker
	openai     *openaisdk.SDKInvoker
	openaiResp *openairespsdk.SDKInvoker
	anthropic  *anthropicsdk.SDKInvoker
}

func (r *routingInvoker) sdkInvoker(provider llmadapter.Provider) providerInvoker {
	switch provider {
	case llmadapter.ProviderGoogle:
		if r.google != nil {
			return r.google
		}
	case llmadapter.ProviderOpenAI:
		if r.openai != nil {
			return r.openai
		}
	case llmadapter.ProviderOpenAIResponse:
		if r.openaiResp != nil {
			return r.openaiResp
		}
	case llmadapter.ProviderAnthropic:
		if r.anthropic != nil {
			return r.anthropic
		}
	}
	return nil
}

func (r *routingInvoker) Invoke(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any) (map[string]any, error) {
	if sdk := r.sdkInvoker(provider); sdk != nil {
		return sdk.Invoke(ctx, provider, ep, payload)
	}
	return r.http.Invoke(ctx, provider, ep, payload)
}

func (r *routingInvoker) Stream(ctx context.Context, provider llmadapter.Provider, ep invoker.Endpoint, payload map[string]any) (<-chan map[string]any, <-chan error) {
	if sdk := r.sdkInvoker(provider); sdk != nil {
		return sdk.Stream(ctx, provider, ep, payload)
	}
	return r.http.Stream(ctx, provider, ep, payload)
}

// defaultMaxToolIterations is the fallback tool-call budget applied
// when a call's settings.maxToolIterations is unset, chosen to match
// the teacher's ReAct default (agent/react_config.go's
// DefaultMaxIterations) and the evoclaw orchestrator's own default
// loop cap.
const defaultMaxToolIterations = 10

// maxParallelToolCalls bounds how many tool invocations one assistant
// turn executes concurrently when parallelToolExecution is enabled.
const maxParallelToolCalls = 8

// Coordinator wires every package in this module into spec.md §4.8's
// Run and §4.9's RunStream. One Coordinator is built per process and
// is safe for concurrent Run/RunStream calls: every piece of per-call
// state (working history, tool budget, router) is constructed fresh
// inside each call; the only state a Coordinator itself owns is the
// shared infrastructure (HTTP invoker, MCP connections, vector stores,
// persistent tool registry, exchange-log sinks) spec.md §5 calls out
// as process-wide.
type Coordinator struct {
	compatFactory  compat.Factory
	credentials    CredentialResolver
	invoker        providerInvoker
	baseInvoker    *invoker.Invoker           // non-nil only when invoker wasn't overridden via WithInvoker
	googleSDK      *googlesdk.SDKInvoker      // non-nil only when invoker wasn't overridden via WithInvoker
	openaiSDK      *openaisdk.SDKInvoker      // non-nil only when invoker wasn't overridden via WithInvoker
	openaiRespSDK  *openairespsdk.SDKInvoker  // non-nil only when invoker wasn't overridden via WithInvoker
	anthropicSDK   *anthropicsdk.SDKInvoker   // non-nil only when invoker wasn't overridden via WithInvoker
	tools          *tool.Registry
	mcpManager     *mcp.Manager
	vectorInjector *vectorctx.Injector
	logger         telemetry.Logger

	logDir       string
	maxSinkMB    int
	maxSinkFiles int
	disableSinks bool
	sinksMu      sync.Mutex
	sinks        map[string]*telemetry.ExchangeSink
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithTools sets the persistent local function tool registry.
func WithTools(tools *tool.Registry) Option {
	return func(c *Coordinator) { c.tools = tools }
}

// WithMCPManager sets the MCP manager backing the "mcpServers" half of
// a call spec's tool surface.
func WithMCPManager(mgr *mcp.Manager) Option {
	return func(c *Coordinator) { c.mcpManager = mgr }
}

// WithVectorInjector sets the Vector Context Injector backing
// spec.md §4.7.
func WithVectorInjector(inj *vectorctx.Injector) Option {
	return func(c *Coordinator) { c.vectorInjector = inj }
}

// WithCredentialResolver overrides the default EnvCredentialResolver.
func WithCredentialResolver(r CredentialResolver) Option {
	return func(c *Coordinator) { c.credentials = r }
}

// WithLogger sets the structured logger every component shares.
func WithLogger(logger telemetry.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithCompatFactory overrides the package-level compat.New registry,
// primarily so tests can register fake Compat implementations without
// touching the real provider families.
func WithCompatFactory(f compat.Factory) Option {
	return func(c *Coordinator) { c.compatFactory = f }
}

// WithInvoker overrides the default rate-limited *invoker.Invoker,
// primarily for tests.
func WithInvoker(inv providerInvoker) Option {
	return func(c *Coordinator) { c.invoker = inv }
}

// WithExchangeLogDir enables per-batch exchange logging under dir, per
// spec.md §6's LLM_ADAPTER_BATCH_DIR convention. maxSizeMB/maxBackups
// configure the lumberjack rotation each batch's sink uses.
func WithExchangeLogDir(dir string, maxSizeMB, maxBackups int) Option {
	return func(c *Coordinator) {
		c.logDir = dir
		c.maxSinkMB = maxSizeMB
		c.maxSinkFiles = maxBackups
	}
}

// WithExchangeLogsDisabled turns off exchange-file logging entirely,
// mirroring LLM_ADAPTER_DISABLE_FILE_LOGS.
func WithExchangeLogsDisabled() Option {
	return func(c *Coordinator) { c.disableSinks = true }
}

// New builds a Coordinator. Sensible defaults apply when an Option is
// omitted: compat.New as the factory, EnvCredentialResolver for
// credentials, a fresh rate-limited *invoker.Invoker, a NoopLogger, and
// exchange logging disabled (no logDir configured).
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		compatFactory: compat.New,
		credentials:   EnvCredentialResolver{},
		logger:        telemetry.NoopLogger{},
		maxSinkMB:     10,
		maxSinkFiles:  5,
		sinks:         map[string]*telemetry.ExchangeSink{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.invoker == nil {
		limiter := rate.NewLimiter(rate.Limit(10), 20)
		c.baseInvoker = invoker.New(&http.Client{}, limiter, c.logger, nil)
		c.googleSDK = googlesdk.NewSDKInvoker(c.logger)
		c.openaiSDK = openaisdk.NewSDKInvoker(c.logger)
		c.openaiRespSDK = openairespsdk.NewSDKInvoker(c.logger)
		c.anthropicSDK = anthropicsdk.NewSDKInvoker(c.logger)
		c.invoker = &routingInvoker{
			http:       c.baseInvoker,
			google:     c.googleSDK,
			openai:     c.openaiSDK,
			openaiResp: c.openaiRespSDK,
			anthropic:  c.anthropicSDK,
		}
	}
	return c
}

// invokerFor returns the providerInvoker to use for one call: when a
// batch ID is set and exchange logging is enabled, a copy of the base
// invoker bound to that batch's sink; otherwise the coordinator's
// plain invoker (which may be a test double installed via
// WithInvoker, in which case per-batch logging does not apply).
func (c *Coordinator) invokerFor(batchID string) providerInvoker {
	if c.baseInvoker == nil {
		return c.invoker
	}
	sink := c.sinkFor(batchID)
	if sink == nil {
		return c.invoker
	}
	routed := &routingInvoker{http: c.baseInvoker.WithSink(sink)}
	if c.googleSDK != nil {
		routed.google = c.googleSDK.WithSink(sink)
	}
	if c.openaiSDK != nil {
		routed.openai = c.openaiSDK.WithSink(sink)
	}
	if c.openaiRespSDK != nil {
		routed.openaiResp = c.openaiRespSDK.WithSink(sink)
	}
	if c.anthropicSDK != nil {
		routed.anthropic = c.anthropicSDK.WithSink(sink)
	}
	return routed
}

// sinkFor returns the exchange sink for batchID, opening it on first
// use. It returns nil when exchange logging is disabled or batchID is
// empty — callers must tolerate a nil sink.
func (c *Coordinator) sinkFor(batchID string) *telemetry.ExchangeSink {
	if c.disableSinks || c.logDir == "" || batchID == "" {
		return nil
	}
	c.sinksMu.Lock()
	defer c.sinksMu.Unlock()
	if sink, ok := c.sinks[batchID]; ok {
		return sink
	}
	sink := telemetry.NewExchangeSink(c.logDir, batchID, c.maxSinkMB, c.maxSinkFiles)
	c.sinks[batchID] = sink
	return sink
}

// Close releases every resource this Coordinator opened: all MCP
// server sessions and every batch's exchange-log file handle.
func (c *Coordinator) Close() error {
	var firstErr error
	if c.mcpManager != nil {
		if err := c.mcpManager.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.sinksMu.Lock()
	defer c.sinksMu.Unlock()
	for id, sink := range c.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.sinks, id)
	}
	return firstErr
}

func effectiveMaxToolIterations(settings llmadapter.CallSettings) int {
	if settings.MaxToolIterations > 0 {
		return settings.MaxToolIterations
	}
	return defaultMaxToolIterations
}

// buildRouter assembles the per-call toolrouter.Router over the
// coordinator's persistent function registry (restricted to
// spec.FunctionToolNames) plus, when vector context runs in "tool" or
// "both" mode, a fresh search tool merged into a call-scoped copy of
// that registry so concurrent calls never contend over shared state.
// MCP discovery covers every server the shared manager has already
// connected; spec.MCPServers is not consulted here, and buildRouter
// itself never dials a server.
func (c *Coordinator) buildRouter(ctx context.Context, spec llmadapter.LLMCallSpec) (*toolrouter.Router, error) {
	functions := c.tools
	names := spec.FunctionToolNames

	if c.vectorInjector != nil && spec.VectorContext != nil &&
		(spec.VectorContext.Mode == llmadapter.VectorContextTool || spec.VectorContext.Mode == llmadapter.VectorContextBoth) {
		merged := tool.NewRegistry()
		if c.tools != nil {
			for _, name := range c.tools.Names() {
				if t, ok := c.tools.Get(name); ok {
					merged.Add(t)
				}
			}
		}
		searchTool := c.vectorInjector.Tool(spec.VectorContext)
		merged.Add(searchTool)
		functions = merged
		// The injected search tool is always in scope, independent of
		// spec.FunctionToolNames: it isn't one of the caller's declared
		// functions, it's the system's own follow-up search surface.
		if len(names) > 0 {
			names = append(append([]string(nil), names...), searchTool.Name)
		}
	}

	return toolrouter.New(ctx, functions, c.mcpManager, names)
}
