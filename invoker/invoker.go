// Package invoker is the HTTP transport seam between a Compat module's
// map[string]any payload and a provider's wire endpoint (spec.md
// §4.3's "external detail"). Compat packages stay pure build/parse
// functions; Invoker is where a payload actually leaves the process.
// Grounded on the teacher's per-adapter Complete/Stream methods
// (agent/adapters/openai_adapter.go), which combine request building
// and HTTP dispatch in one type — split apart here so dispatch is
// provider-agnostic and every Compat module can share one Invoker.
package invoker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/llmerr"
	"github.com/taipm/llmadapter/telemetry"
)

// Endpoint configures how one provider's requests reach the wire.
type Endpoint struct {
	BaseURL        string
	Path           string
	APIKey         string
	AuthHeaderName string // e.g. "Authorization" or "x-api-key"
	AuthPrefix     string // e.g. "Bearer "
	ExtraHeaders   map[string]string
}

func (e Endpoint) url() string {
	return strings.TrimRight(e.BaseURL, "/") + e.Path
}

func (e Endpoint) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range e.ExtraHeaders {
		h[k] = v
	}
	if e.AuthHeaderName != "" {
		h[e.AuthHeaderName] = e.AuthPrefix + e.APIKey
	}
	return h
}

// Invoker dispatches a Compat-built payload over HTTP and classifies
// failures into the llmerr taxonomy (spec.md §7), so the coordinator's
// fallback/retry logic never has to parse a raw HTTP error status.
type Invoker struct {
	client   *http.Client
	limiter  *rate.Limiter
	manifest llmerr.Manifest
	logger   telemetry.Logger
	sink     *telemetry.ExchangeSink
}

// New creates an Invoker. limiter may be nil to disable client-side
// pacing; sink may be nil to disable exchange logging.
func New(client *http.Client, limiter *rate.Limiter, logger telemetry.Logger, sink *telemetry.ExchangeSink) *Invoker {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Invoker{client: client, limiter: limiter, manifest: llmerr.DefaultManifest(), logger: logger, sink: sink}
}

// WithSink returns a shallow copy of inv bound to a different
// telemetry.ExchangeSink, leaving inv itself untouched. The
// coordinator uses this to route one Invoker's requests to a
// per-batch rotating log file without reopening a client/limiter per
// batch.
func (inv *Invoker) WithSink(sink *telemetry.ExchangeSink) *Invoker {
	cp := *inv
	cp.sink = sink
	return &cp
}

// Invoke sends one non-streaming request and returns the decoded JSON
// response body. Non-2xx statuses are classified per spec.md §7 and
// returned as *llmerr.Error so coordinator fallback can read the Kind.
func (inv *Invoker) Invoke(ctx context.Context, provider llmadapter.Provider, ep Endpoint, payload map[string]any) (map[string]any, error) {
	if inv.limiter != nil {
		if err := inv.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("invoker: rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("invoker: encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invoker: building request: %w", err)
	}
	headers := ep.headers()
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		return nil, llmerr.Transient(string(provider), "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llmerr.Transient(string(provider), "reading response body", err)
	}

	if inv.sink != nil {
		_ = inv.sink.Write(telemetry.ExchangeRecord{
			Method:         http.MethodPost,
			URL:            ep.url(),
			RequestHeaders: telemetry.RedactHeaders(headers),
			RequestBody:    string(body),
			ResponseStatus: resp.StatusCode,
			ResponseBody:   string(raw),
		})
	}

	if resp.StatusCode >= 300 {
		kind := llmerr.Classify(inv.manifest, resp.StatusCode, string(raw))
		return nil, &llmerr.Error{Kind: kind, Provider: string(provider), Message: fmt.Sprintf("status %d", resp.StatusCode), Err: fmt.Errorf("%s", raw)}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, llmerr.BadResponse(string(provider), "response was not valid JSON", err)
	}
	return decoded, nil
}

// Stream sends a request expecting a server-sent-events response and
// returns a channel of decoded chunk payloads. The channel closes when
// the stream ends (a "[DONE]" sentinel or EOF) or the context is
// cancelled; a single terminal error, if any, is sent on errc.
func (inv *Invoker) Stream(ctx context.Context, provider llmadapter.Provider, ep Endpoint, payload map[string]any) (<-chan map[string]any, <-chan error) {
	chunks := make(chan map[string]any)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		if inv.limiter != nil {
			if err := inv.limiter.Wait(ctx); err != nil {
				errc <- fmt.Errorf("invoker: rate limiter: %w", err)
				return
			}
		}

		body, err := json.Marshal(payload)
		if err != nil {
			errc <- fmt.Errorf("invoker: encoding payload: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url(), bytes.NewReader(body))
		if err != nil {
			errc <- fmt.Errorf("invoker: building request: %w", err)
			return
		}
		headers := ep.headers()
		headers["Accept"] = "text/event-stream"
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := inv.client.Do(req)
		if err != nil {
			errc <- llmerr.Transient(string(provider), "stream request failed", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			kind := llmerr.Classify(inv.manifest, resp.StatusCode, string(raw))
			errc <- &llmerr.Error{Kind: kind, Provider: string(provider), Message: fmt.Sprintf("status %d", resp.StatusCode), Err: fmt.Errorf("%s", raw)}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			if data == "[DONE]" {
				return
			}
			var chunk map[string]any
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errc <- llmerr.Transient(string(provider), "stream interrupted", err)
		}
	}()

	return chunks, errc
}
