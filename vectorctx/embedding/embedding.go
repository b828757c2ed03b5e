// Package embedding provides the Vector Context Injector's
// text-to-vector step. Grounded on the teacher's
// agent/embedding.go EmbeddingProvider interface and
// agent/embedding_openai.go's OpenAI-backed implementation, narrowed
// to the single-text and batch operations the injector's query
// construction and document ingestion actually call.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Provider generates embedding vectors for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

const (
	ModelSmall = "text-embedding-3-small"
	ModelLarge = "text-embedding-3-large"
)

// OpenAI implements Provider using OpenAI's embeddings API.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI-backed embedding provider. An empty
// model defaults to ModelSmall.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = ModelSmall
	}
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	text = prepare(text)
	if text == "" {
		return nil, fmt.Errorf("embedding: text cannot be empty")
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: openai: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: openai returned no data")
	}

	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}

func (o *OpenAI) Dimensions() int {
	if o.model == ModelLarge {
		return 3072
	}
	return 1536
}

func prepare(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\t", " ")
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	return text
}
