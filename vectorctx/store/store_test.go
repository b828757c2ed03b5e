package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySearchRanksByCosineSimilarity(t *testing.T) {
	m := NewMemory()
	m.Add("docs", []Document{
		{ID: "a", Content: "close match"},
		{ID: "b", Content: "far match"},
	}, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
	})

	results, err := m.Search(context.Background(), SearchRequest{
		Collection:  "docs",
		QueryVector: []float32{1, 0, 0},
		TopK:        1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestMemorySearchAppliesScoreThreshold(t *testing.T) {
	m := NewMemory()
	m.Add("docs", []Document{{ID: "a"}}, [][]float32{{0, 1, 0}})

	results, err := m.Search(context.Background(), SearchRequest{
		Collection:     "docs",
		QueryVector:    []float32{1, 0, 0},
		ScoreThreshold: 0.5,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemorySearchAppliesMetadataFilter(t *testing.T) {
	m := NewMemory()
	m.docs["docs"] = []scoredDoc{
		{Document: Document{ID: "a", Metadata: map[string]any{"author": "alice"}}, Vector: []float32{1, 0}},
		{Document: Document{ID: "b", Metadata: map[string]any{"author": "bob"}}, Vector: []float32{1, 0}},
	}

	results, err := m.Search(context.Background(), SearchRequest{
		Collection:  "docs",
		QueryVector: []float32{1, 0},
		Filter:      `author == "bob"`,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}
