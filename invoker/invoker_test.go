package invoker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/llmerr"
)

func TestInvokeDecodesSuccessResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"resp_1"}`))
	}))
	defer server.Close()

	inv := New(nil, nil, nil, nil)
	resp, err := inv.Invoke(context.Background(), llmadapter.ProviderOpenAI, Endpoint{BaseURL: server.URL, Path: "/v1/chat"}, map[string]any{"model": "x"})
	require.NoError(t, err)
	assert.Equal(t, "resp_1", resp["id"])
}

func TestInvokeClassifiesRateLimitStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	inv := New(nil, nil, nil, nil)
	_, err := inv.Invoke(context.Background(), llmadapter.ProviderAnthropic, Endpoint{BaseURL: server.URL, Path: "/v1/messages"}, map[string]any{})
	require.Error(t, err)
	kind, ok := llmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, llmerr.KindRateLimit, kind)
}

func TestStreamEmitsChunksUntilDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"text\":\"a\"}\n\n"))
		w.Write([]byte("data: {\"text\":\"b\"}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	inv := New(nil, nil, nil, nil)
	chunks, errc := inv.Stream(context.Background(), llmadapter.ProviderOpenAI, Endpoint{BaseURL: server.URL, Path: "/v1/chat"}, map[string]any{})

	var texts []string
	for c := range chunks {
		texts = append(texts, c["text"].(string))
	}
	require.NoError(t, <-errc)
	assert.Equal(t, []string{"a", "b"}, texts)
}
