// Package store defines the vector store interface the Vector Context
// Injector searches against, plus a Qdrant-backed implementation and
// an in-memory one for tests and small deployments. Grounded on the
// teacher's agent/vector_store.go VectorStore interface and
// agent/qdrant.go's HTTP client, narrowed to the read path (Search)
// the injector actually needs — spec.md §4.7 never writes to a store
// through this package, so Add/Delete/collection-management are
// dropped rather than carried unused.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/floats"
)

// Document is one retrievable chunk with its similarity score against
// the query that found it.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
	Score    float64
}

// SearchRequest is the parameter set a Store.Search call receives,
// after the injector has applied query construction, locks, and
// defaults.
type SearchRequest struct {
	Collection     string
	QueryVector    []float32
	QueryText      string
	TopK           int
	Filter         string
	ScoreThreshold float64
}

// Store is anything the Vector Context Injector can search. Drivers
// that only support vector search, only text search, or both satisfy
// it by implementing whichever the embedding pipeline feeds them.
type Store interface {
	Search(ctx context.Context, req SearchRequest) ([]Document, error)
}

// Memory is an in-process Store, useful for tests and for callers that
// already hold their corpus in memory. Scoring is cosine similarity
// against pre-computed embeddings; Filter, when present, is a govaluate
// boolean expression evaluated against each document's metadata
// (for example `author == "bob"`).
type Memory struct {
	docs map[string][]scoredDoc
}

type scoredDoc struct {
	Document
	Vector []float32
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: map[string][]scoredDoc{}}
}

// Add inserts docs with their embeddings into collection.
func (m *Memory) Add(collection string, docs []Document, vectors [][]float32) {
	for i, d := range docs {
		var v []float32
		if i < len(vectors) {
			v = vectors[i]
		}
		m.docs[collection] = append(m.docs[collection], scoredDoc{Document: d, Vector: v})
	}
}

func (m *Memory) Search(ctx context.Context, req SearchRequest) ([]Document, error) {
	candidates := m.docs[req.Collection]
	out := make([]Document, 0, len(candidates))
	for _, c := range candidates {
		if req.Filter != "" && !matchesFilter(c.Metadata, req.Filter) {
			continue
		}
		score := cosineSimilarity(req.QueryVector, c.Vector)
		if score < req.ScoreThreshold {
			continue
		}
		d := c.Document
		d.Score = score
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if req.TopK > 0 && len(out) > req.TopK {
		out = out[:req.TopK]
	}
	return out, nil
}

// matchesFilter evaluates filter (a boolean govaluate expression, e.g.
// `author == "alice" && year >= 2020`) against a document's metadata.
// An expression referencing a metadata key the document lacks, or that
// fails to parse, does not match — the document is excluded rather
// than the call failing, matching spec.md §4.7's tolerant-filter
// posture.
func matchesFilter(metadata map[string]any, filter string) bool {
	expr, err := govaluate.NewEvaluableExpression(filter)
	if err != nil {
		return false
	}
	params := make(map[string]any, len(metadata))
	for k, v := range metadata {
		params[k] = v
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		return false
	}
	matched, _ := result.(bool)
	return matched
}

// cosineSimilarity scores two embedding vectors with gonum/floats,
// converting to float64 once rather than accumulating in float32.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	fa, fb := toFloat64(a), toFloat64(b)
	normA, normB := floats.Norm(fa, 2), floats.Norm(fb, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(fa, fb) / (normA * normB)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Qdrant is a Store backed by a Qdrant HTTP collection's /points/search
// endpoint.
type Qdrant struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewQdrant creates a Qdrant-backed Store against baseURL (e.g.
// "http://localhost:6333").
func NewQdrant(baseURL, apiKey string) *Qdrant {
	return &Qdrant{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type qdrantSearchRequest struct {
	Vector         []float32      `json:"vector"`
	Limit          int            `json:"limit"`
	WithPayload    bool           `json:"with_payload"`
	Filter         map[string]any `json:"filter,omitempty"`
	ScoreThreshold *float32       `json:"score_threshold,omitempty"`
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float32        `json:"score"`
		Payload map[string]any `json:"payload,omitempty"`
	} `json:"result"`
	Status string `json:"status"`
}

func (q *Qdrant) Search(ctx context.Context, req SearchRequest) ([]Document, error) {
	threshold := float32(req.ScoreThreshold)
	body := qdrantSearchRequest{
		Vector:         req.QueryVector,
		Limit:          req.TopK,
		WithPayload:    true,
		ScoreThreshold: &threshold,
	}
	if req.Filter != "" {
		body.Filter = map[string]any{"must": []map[string]any{{"key": req.Filter}}}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("store: qdrant: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", q.baseURL, req.Collection)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("store: qdrant: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		httpReq.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("store: qdrant: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("store: qdrant: reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("store: qdrant: status %d: %s", resp.StatusCode, raw)
	}

	var parsed qdrantSearchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("store: qdrant: decoding response: %w", err)
	}

	out := make([]Document, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		content, _ := r.Payload["content"].(string)
		out = append(out, Document{
			ID:       fmt.Sprintf("%v", r.ID),
			Content:  content,
			Metadata: r.Payload,
			Score:    float64(r.Score),
		})
	}
	return out, nil
}
