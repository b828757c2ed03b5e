package llmadapter

// VectorStoreRef names one configured vector store, in priority order.
// Concrete drivers (Qdrant, in-memory, …) are resolved by the caller's
// vectorctx.Registry and are out of scope for this root package.
type VectorStoreRef struct {
	Name string `json:"name"`
}

// QueryConstruction controls how the Vector Context Injector builds a
// query string from recent conversation history (spec.md §4.7, auto
// mode).
type QueryConstruction struct {
	MessagesToInclude   int  `json:"messagesToInclude"`
	IncludeAssistant    bool `json:"includeAssistant,omitempty"`
	IncludeSystemPrompt bool `json:"includeSystemPrompt,omitempty"`
}

// VectorContextLocks fixes any subset of search parameters so the
// model cannot see or override them: locked keys are removed from the
// generated tool schema and reapplied server-side at invocation time.
type VectorContextLocks struct {
	TopK           *int     `json:"topK,omitempty"`
	Filter         string   `json:"filter,omitempty"`
	ScoreThreshold *float64 `json:"scoreThreshold,omitempty"`
	Store          string   `json:"store,omitempty"`
}

// VectorContextSpec is the `vectorContext` field of an LLMCallSpec.
type VectorContextSpec struct {
	Mode              VectorContextMode  `json:"mode"`
	Stores            []VectorStoreRef   `json:"stores"`
	QueryConstruction QueryConstruction  `json:"queryConstruction"`
	Filter            string             `json:"filter,omitempty"`
	ScoreThreshold    *float64           `json:"scoreThreshold,omitempty"`
	TopK              int                `json:"topK,omitempty"`
	InjectTemplate    string             `json:"injectTemplate,omitempty"`
	InjectAs          string             `json:"injectAs,omitempty"` // "system" | "user_prefix"
	ToolName          string             `json:"toolName,omitempty"`
	Locks             VectorContextLocks `json:"locks,omitempty"`
}
