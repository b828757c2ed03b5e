package vectorctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/vectorctx/store"
)

func TestResolveQueryIncludesOnlyRecentUserMessages(t *testing.T) {
	messages := []llmadapter.Message{
		llmadapter.SystemMessage("be helpful"),
		llmadapter.UserMessage("first"),
		llmadapter.AssistantMessage("reply"),
		llmadapter.UserMessage("second"),
	}
	query := resolveQuery(messages, llmadapter.QueryConstruction{MessagesToInclude: 1})
	assert.Equal(t, "second", query)
}

func TestResolveQueryIncludesAssistantAndSystemWhenRequested(t *testing.T) {
	messages := []llmadapter.Message{
		llmadapter.SystemMessage("system prompt"),
		llmadapter.UserMessage("first"),
		llmadapter.AssistantMessage("reply"),
	}
	query := resolveQuery(messages, llmadapter.QueryConstruction{
		MessagesToInclude:   2,
		IncludeAssistant:    true,
		IncludeSystemPrompt: true,
	})
	assert.Equal(t, "system prompt\nfirst\nreply", query)
}

func TestEffectiveParamsLocksOverrideCallerValues(t *testing.T) {
	lockedTopK := 2
	spec := &llmadapter.VectorContextSpec{
		Locks: llmadapter.VectorContextLocks{TopK: &lockedTopK},
	}
	params := effectiveParams(spec, SearchParams{TopK: 50})
	assert.Equal(t, 2, params.TopK)
}

func TestSearchReturnsFirstStoreWithResults(t *testing.T) {
	empty := store.NewMemory()
	populated := store.NewMemory()
	populated.Add("populated", []store.Document{{ID: "a", Content: "hit"}}, [][]float32{{1, 0}})

	inj := New(map[string]store.Store{
		"empty":     empty,
		"populated": populated,
	}, nil, nil)

	spec := &llmadapter.VectorContextSpec{
		Stores: []llmadapter.VectorStoreRef{{Name: "empty"}, {Name: "populated"}},
		TopK:   5,
	}
	results, err := inj.Search(context.Background(), spec, SearchParams{Query: "x"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hit", results[0].Content)
}

func TestInjectSystemMessageRendersTemplate(t *testing.T) {
	s := store.NewMemory()
	s.Add("docs", []store.Document{{ID: "a", Content: "fact one"}}, [][]float32{{1, 0}})
	inj := New(map[string]store.Store{"docs": s}, nil, nil)

	spec := &llmadapter.VectorContextSpec{
		Stores:         []llmadapter.VectorStoreRef{{Name: "docs"}},
		InjectTemplate: "Context: {{results}}",
	}
	msg := inj.InjectSystemMessage(context.Background(), spec, []llmadapter.Message{
		llmadapter.UserMessage("tell me about the fact"),
	})
	require.NotNil(t, msg)
	assert.Equal(t, llmadapter.RoleSystem, msg.Role)
	assert.Equal(t, "Context: fact one", msg.TextContent())
}

func TestInjectSystemMessageReturnsNilWhenNoResults(t *testing.T) {
	inj := New(map[string]store.Store{"docs": store.NewMemory()}, nil, nil)
	spec := &llmadapter.VectorContextSpec{Stores: []llmadapter.VectorStoreRef{{Name: "docs"}}}
	msg := inj.InjectSystemMessage(context.Background(), spec, nil)
	assert.Nil(t, msg)
}

func TestUnlockedSchemaRemovesLockedFields(t *testing.T) {
	lockedTopK := 3
	out := unlockedSchema(llmadapter.VectorContextLocks{TopK: &lockedTopK})
	props, ok := out["properties"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, props, "topK")
	assert.Contains(t, props, "query")
}

func TestToolHandlerInvokesSearch(t *testing.T) {
	s := store.NewMemory()
	s.Add("docs", []store.Document{{ID: "a", Content: "hello"}}, [][]float32{{1, 0}})
	inj := New(map[string]store.Store{"docs": s}, nil, nil)

	spec := &llmadapter.VectorContextSpec{
		Stores:   []llmadapter.VectorStoreRef{{Name: "docs"}},
		ToolName: "search_kb",
	}
	tl := inj.Tool(spec)
	assert.Equal(t, "search_kb", tl.Name)

	out, err := tl.Handler(context.Background(), map[string]any{"query": "hi"})
	require.NoError(t, err)
	results, ok := out.([]map[string]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "hello", results[0]["content"])
}
