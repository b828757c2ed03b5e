// Package vectorctx implements the Vector Context Injector (spec.md
// §4.7): constructing a query from recent history, searching a
// priority-ordered list of stores, and either injecting the results as
// a message before the first provider call, exposing them as a
// follow-up search tool, or both. Grounded on the teacher's
// agent/rag.go (query/context construction, TopK/MinScore/Separator
// config) and agent/vector_store.go (store/search contract), adapted
// from a single-store Builder method into a multi-store, lockable,
// tool-exposing component.
package vectorctx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/tool"
	"github.com/taipm/llmadapter/vectorctx/embedding"
	"github.com/taipm/llmadapter/vectorctx/store"
)

// defaultInjectTemplate is used when a VectorContextSpec omits
// InjectTemplate; spec.md §4.7 names "{{results}}" as the default bind
// point.
const defaultInjectTemplate = "Relevant context:\n{{results}}"

// Injector runs the Vector Context Injector for one coordinator call.
// It is built once per process (stores/embedder are shared
// infrastructure) and driven per call with a VectorContextSpec.
type Injector struct {
	stores   map[string]store.Store
	embedder embedding.Provider
	logger   *slog.Logger
}

// New creates an Injector over a named set of stores, searched in the
// priority order given by VectorContextSpec.Stores.
func New(stores map[string]store.Store, embedder embedding.Provider, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{stores: stores, embedder: embedder, logger: logger.With("component", "vectorctx")}
}

// SearchParams is the unlocked shape of a search call, reflected into
// a JSON schema for "tool"/"both" mode (spec.md §4.7's "tool" mode).
// Fields corresponding to locked parameters are removed from the
// generated schema by ToolSchema before the model ever sees it.
type SearchParams struct {
	Query          string   `json:"query" jsonschema:"required,description=Natural-language search query"`
	TopK           int      `json:"topK,omitempty" jsonschema:"description=Number of results to return"`
	Filter         string   `json:"filter,omitempty" jsonschema:"description=Metadata filter expression"`
	ScoreThreshold *float64 `json:"scoreThreshold,omitempty" jsonschema:"description=Minimum similarity score"`
	Store          string   `json:"store,omitempty" jsonschema:"description=Which configured store to search"`
}

// resolveQuery runs Auto mode's query construction: concatenate the
// text of the last MessagesToInclude messages, optionally including
// assistant turns and/or the system prompt, per spec.md §4.7.
func resolveQuery(messages []llmadapter.Message, qc llmadapter.QueryConstruction) string {
	var system string
	var recent []llmadapter.Message
	for _, m := range messages {
		if m.Role == llmadapter.RoleSystem && system == "" {
			system = m.TextContent()
			continue
		}
		if m.Role == llmadapter.RoleAssistant && !qc.IncludeAssistant {
			continue
		}
		if m.Role == llmadapter.RoleUser || m.Role == llmadapter.RoleAssistant {
			recent = append(recent, m)
		}
	}

	n := qc.MessagesToInclude
	if n <= 0 || n > len(recent) {
		n = len(recent)
	}
	recent = recent[len(recent)-n:]

	var parts []string
	if qc.IncludeSystemPrompt && system != "" {
		parts = append(parts, system)
	}
	for _, m := range recent {
		parts = append(parts, m.TextContent())
	}
	return strings.Join(parts, "\n")
}

// effectiveParams merges locked values over caller/model-supplied
// values: locked parameters always win, matching spec.md §4.7's
// "overridden server-side at invocation time, even if the model
// supplies a value" rule.
func effectiveParams(spec *llmadapter.VectorContextSpec, override SearchParams) SearchParams {
	p := override
	if p.TopK == 0 {
		p.TopK = spec.TopK
	}
	if p.Filter == "" {
		p.Filter = spec.Filter
	}
	if p.ScoreThreshold == nil {
		p.ScoreThreshold = spec.ScoreThreshold
	}

	if spec.Locks.TopK != nil {
		p.TopK = *spec.Locks.TopK
	}
	if spec.Locks.Filter != "" {
		p.Filter = spec.Locks.Filter
	}
	if spec.Locks.ScoreThreshold != nil {
		p.ScoreThreshold = spec.Locks.ScoreThreshold
	}
	if spec.Locks.Store != "" {
		p.Store = spec.Locks.Store
	}
	return p
}

// Search runs one search: embeds the query, then walks spec.Stores in
// priority order, returning the first store's results that has at
// least one hit (spec.md §4.7's "first store that returns ≥1 result
// wins").
func (inj *Injector) Search(ctx context.Context, spec *llmadapter.VectorContextSpec, params SearchParams) ([]store.Document, error) {
	params = effectiveParams(spec, params)

	var vector []float32
	if inj.embedder != nil && params.Query != "" {
		v, err := inj.embedder.Embed(ctx, params.Query)
		if err != nil {
			return nil, fmt.Errorf("vectorctx: embedding query: %w", err)
		}
		vector = v
	}

	threshold := 0.0
	if params.ScoreThreshold != nil {
		threshold = *params.ScoreThreshold
	}

	candidates := spec.Stores
	if params.Store != "" {
		candidates = []llmadapter.VectorStoreRef{{Name: params.Store}}
	}

	for _, ref := range candidates {
		s, ok := inj.stores[ref.Name]
		if !ok {
			continue
		}
		results, err := s.Search(ctx, store.SearchRequest{
			Collection:     ref.Name,
			QueryVector:    vector,
			QueryText:      params.Query,
			TopK:           nonZeroOr(params.TopK, 3),
			Filter:         params.Filter,
			ScoreThreshold: threshold,
		})
		if err != nil {
			inj.logger.Warn("vector search failed", "store", ref.Name, "error", err)
			continue
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	return nil, nil
}

func nonZeroOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// InjectSystemMessage runs Auto-mode injection: construct a query,
// search, and render InjectTemplate into a system message (or a
// user-prefix, per InjectAs). Returns nil, nil when the search errors
// or finds nothing — spec.md §4.7 requires the call to proceed without
// injected context rather than fail.
func (inj *Injector) InjectSystemMessage(ctx context.Context, spec *llmadapter.VectorContextSpec, messages []llmadapter.Message) *llmadapter.Message {
	query := resolveQuery(messages, spec.QueryConstruction)
	results, err := inj.Search(ctx, spec, SearchParams{Query: query})
	if err != nil {
		inj.logger.Warn("vector context injection failed, proceeding without it", "error", err)
		return nil
	}
	if len(results) == 0 {
		return nil
	}

	rendered := render(templateOrDefault(spec.InjectTemplate), results)
	if spec.InjectAs == "user_prefix" {
		msg := llmadapter.UserMessage(rendered)
		return &msg
	}
	msg := llmadapter.SystemMessage(rendered)
	return &msg
}

func templateOrDefault(t string) string {
	if t == "" {
		return defaultInjectTemplate
	}
	return t
}

func render(tmpl string, results []store.Document) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(r.Content)
	}
	return strings.ReplaceAll(tmpl, "{{results}}", b.String())
}

// Tool builds the follow-up search tool for "tool"/"both" mode: its
// schema is SearchParams with locked fields removed, and its handler
// invokes Search with spec's locks applied server-side.
func (inj *Injector) Tool(spec *llmadapter.VectorContextSpec) *tool.Tool {
	name := spec.ToolName
	if name == "" {
		name = "search_context"
	}

	t := tool.New(name, "Search the configured knowledge base for relevant context")
	t.Parameters = unlockedSchema(spec.Locks)
	t.Handler = func(ctx context.Context, args map[string]any) (any, error) {
		params := paramsFromArgs(args)
		results, err := inj.Search(ctx, spec, params)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(results))
		for _, r := range results {
			out = append(out, map[string]any{"content": r.Content, "score": r.Score, "metadata": r.Metadata})
		}
		return out, nil
	}
	return t
}

func paramsFromArgs(args map[string]any) SearchParams {
	var p SearchParams
	if q, ok := args["query"].(string); ok {
		p.Query = q
	}
	if v, ok := args["topK"].(float64); ok {
		p.TopK = int(v)
	}
	if f, ok := args["filter"].(string); ok {
		p.Filter = f
	}
	if st, ok := args["scoreThreshold"].(float64); ok {
		p.ScoreThreshold = &st
	}
	if s, ok := args["store"].(string); ok {
		p.Store = s
	}
	return p
}

// unlockedSchema reflects SearchParams into a JSON schema and strips
// any property the spec locks, per spec.md §4.7's "removed from the
// generated tool schema" rule.
func unlockedSchema(locks llmadapter.VectorContextLocks) map[string]any {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	raw := reflector.Reflect(&SearchParams{})
	encoded, err := json.Marshal(raw)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	props, ok := out["properties"].(map[string]any)
	if !ok {
		return out
	}
	if locks.TopK != nil {
		delete(props, "topK")
	}
	if locks.Filter != "" {
		delete(props, "filter")
	}
	if locks.ScoreThreshold != nil {
		delete(props, "scoreThreshold")
	}
	if locks.Store != "" {
		delete(props, "store")
	}
	return out
}
