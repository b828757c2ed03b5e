package llmadapter

// Provider identifies a wire-format family a Compat module normalizes
// to/from. It doubles as the "compat" tag a CompatFactory keys on.
type Provider string

const (
	ProviderOpenAI         Provider = "openai"
	ProviderOpenAIResponse Provider = "openai_responses"
	ProviderAnthropic      Provider = "anthropic"
	ProviderGoogle         Provider = "google"
	ProviderOpenRouter     Provider = "openrouter"
)

// ProviderModel is one entry in a call spec's prioritized fallback
// list: try Provider with Model, then the next entry on failure.
type ProviderModel struct {
	Provider Provider `json:"provider"`
	Model    string   `json:"model"`
}

// ReasoningEffort is the coarse-grained knob some providers accept in
// place of (or in addition to) an absolute thinking-token budget.
type ReasoningEffort string

const (
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// ReasoningSettings configures extended-thinking / reasoning behavior.
// Budget (absolute token count) takes priority over Effort for
// providers that size their thinking budget in tokens; ReasoningBudget
// is the settings-bag fallback key spec.md §3 names for that same
// value when Budget is unset.
type ReasoningSettings struct {
	Enabled bool            `json:"enabled"`
	Budget  int             `json:"budget,omitempty"`
	Effort  ReasoningEffort `json:"effort,omitempty"`
	Exclude bool            `json:"exclude,omitempty"`
}

// PreservePolicy encodes the `all` | `none` | integer-N shape spec.md
// §3 gives preserveToolResults/preserveReasoning.
type PreservePolicy struct {
	// All, when true, means "never redact" (`all`).
	All bool
	// None, when true, means "redact every prior-cycle result" (`none`).
	None bool
	// Keep is the number of most-recent prior cycles whose results are
	// preserved verbatim,
	// meaningful only when All and None are both false.
	Keep int
}

// PreserveAll, PreserveNone, and PreserveLast are the three
// constructors for the three shapes PreservePolicy represents.
func PreserveAll() PreservePolicy       { return PreservePolicy{All: true} }
func PreserveNone() PreservePolicy      { return PreservePolicy{None: true} }
func PreserveLast(n int) PreservePolicy { return PreservePolicy{Keep: n} }

// CallSettings is the recognized-keys, typed view of an LLMCallSpec's
// generation settings (spec.md §3 "Settings"). Unknown/unrecognized
// keys live in Extras and are forwarded verbatim to
// Compat.ApplyProviderExtensions; they are never silently dropped by
// this type.
type CallSettings struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`

	Seed             *int64         `json:"seed,omitempty"`
	FrequencyPenalty *float64       `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64       `json:"presencePenalty,omitempty"`
	LogitBias        map[string]int `json:"logitBias,omitempty"`
	LogProbs         *bool          `json:"logprobs,omitempty"`
	TopLogProbs      *int           `json:"topLogprobs,omitempty"`
	ResponseFormat   map[string]any `json:"responseFormat,omitempty"`

	Reasoning       *ReasoningSettings `json:"reasoning,omitempty"`
	ReasoningBudget int                `json:"reasoningBudget,omitempty"`

	MaxToolIterations      int             `json:"maxToolIterations,omitempty"`
	ParallelToolExecution  bool            `json:"parallelToolExecution,omitempty"`
	ToolCountdownEnabled   bool            `json:"toolCountdownEnabled,omitempty"`
	ToolFinalPromptEnabled bool            `json:"toolFinalPromptEnabled,omitempty"`
	PreserveToolResults    *PreservePolicy `json:"preserveToolResults,omitempty"`
	PreserveReasoning      *PreservePolicy `json:"preserveReasoning,omitempty"`
	ToolResultMaxChars     int             `json:"toolResultMaxChars,omitempty"`

	// BatchID is runtime-only: written to the process-wide logging tag,
	// never sent to any provider.
	BatchID string `json:"batchId,omitempty"`

	// Extras holds every settings key this type does not recognize.
	// Compat.ApplyProviderExtensions forwards the keys a provider
	// recognizes as-is and drops the rest without failing the call; no
	// warning is logged for a dropped key.
	Extras map[string]any `json:"-"`
}

// EffectiveReasoningBudget resolves the absolute thinking-token budget
// per spec.md §4.3's Anthropic rule: reasoning.budget > reasoningBudget
// > def (def supplied by the caller, typically the compat module's
// provider-specific default).
func (s CallSettings) EffectiveReasoningBudget(def int) int {
	if s.Reasoning != nil && s.Reasoning.Budget > 0 {
		return s.Reasoning.Budget
	}
	if s.ReasoningBudget > 0 {
		return s.ReasoningBudget
	}
	return def
}

// ReasoningEnabled reports whether the caller asked for reasoning at
// all, independent of any provider-specific contiguity requirement.
func (s CallSettings) ReasoningEnabled() bool {
	return s.Reasoning != nil && s.Reasoning.Enabled
}

// CallMetadata carries caller-supplied call-scoped metadata that never
// reaches a provider wire payload.
type CallMetadata struct {
	CorrelationID string `json:"correlationId,omitempty"`

	// APIKeyOverride lets one call supply a provider's credential
	// directly (keyed by Provider string) instead of relying on the
	// process environment. A CredentialResolver checks this before
	// falling back to its environment-variable convention, per spec.md
	// §3's "resolved from environment/headers on each invocation,
	// never cached" rule — the override is read fresh every call, same
	// as the environment.
	APIKeyOverride map[string]string `json:"apiKeyOverride,omitempty"`
}

// VectorContextMode selects how the Vector Context Injector behaves
// for a given call (spec.md §4.7).
type VectorContextMode string

const (
	VectorContextAuto VectorContextMode = "auto"
	VectorContextTool VectorContextMode = "tool"
	VectorContextBoth VectorContextMode = "both"
)

// LLMCallSpec is the single declarative input to Run/RunStream.
type LLMCallSpec struct {
	Messages          []Message          `json:"messages"`
	LLMPriority       []ProviderModel    `json:"llmPriority"`
	FunctionToolNames []string           `json:"functionToolNames,omitempty"`
	MCPServers        []string           `json:"mcpServers,omitempty"`
	ToolChoice        *ToolChoice        `json:"toolChoice,omitempty"`
	Settings          CallSettings       `json:"settings,omitempty"`
	VectorContext     *VectorContextSpec `json:"vectorContext,omitempty"`
	// RateLimitRetryDelays is a caller-supplied schedule, in
	// milliseconds; an empty slice means no rate-limit retries.
	RateLimitRetryDelays []int        `json:"rateLimitRetryDelays,omitempty"`
	Metadata             CallMetadata `json:"metadata,omitempty"`
}
