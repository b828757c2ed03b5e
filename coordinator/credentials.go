// Package coordinator wires every other package into spec.md §4.8/§4.9's
// Run and RunStream: compat selection, tool routing, tool-budget
// bookkeeping, prior-cycle redaction, vector context injection, and
// provider fallback, all driven over one Invoker.
package coordinator

import (
	"fmt"
	"os"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/invoker"
)

// CredentialResolver resolves where a (provider, model) call goes on
// the wire and what credential authorizes it. Resolution happens fresh
// on every call — spec.md §3's "resolved from environment/headers on
// each invocation, never cached across calls" — so a resolver must not
// memoize past its own constructor-time defaults.
type CredentialResolver interface {
	ResolveEndpoint(provider llmadapter.Provider, model string, meta llmadapter.CallMetadata, streaming bool) (invoker.Endpoint, error)
}

// EnvCredentialResolver is the default CredentialResolver: it reads
// each provider's conventional environment variable, falling back to
// an LLMCallSpec's metadata.apiKeyOverride when a caller supplies one
// for this particular call.
type EnvCredentialResolver struct{}

// apiKey returns meta's override for provider if present, else the
// provider's conventional environment variable(s).
func (EnvCredentialResolver) apiKey(provider llmadapter.Provider, meta llmadapter.CallMetadata) (string, error) {
	if meta.APIKeyOverride != nil {
		if key, ok := meta.APIKeyOverride[string(provider)]; ok && key != "" {
			return key, nil
		}
	}

	var envVars []string
	switch provider {
	case llmadapter.ProviderOpenAI, llmadapter.ProviderOpenAIResponse:
		envVars = []string{"OPENAI_API_KEY"}
	case llmadapter.ProviderAnthropic:
		envVars = []string{"ANTHROPIC_API_KEY"}
	case llmadapter.ProviderGoogle:
		envVars = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case llmadapter.ProviderOpenRouter:
		envVars = []string{"OPENROUTER_API_KEY"}
	default:
		return "", fmt.Errorf("coordinator: no credential convention for provider %q", provider)
	}

	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("coordinator: no credential found for provider %q (checked %v and metadata.apiKeyOverride)", provider, envVars)
}

// ResolveEndpoint builds the Endpoint for one (provider, model) call.
// OpenRouter is the only family left dispatching over the raw-HTTP
// *invoker.Invoker, so it's the only case that still needs a
// BaseURL/Path/auth-header shape; OpenAI, the OpenAI Responses API,
// Anthropic, and Google each dispatch through their own compat
// package's SDKInvoker (coordinator.routingInvoker), whose SDK client
// owns its own transport — only APIKey matters for those. streaming is
// unused for the same reason: no REST streaming path is built here for
// any SDK-driven family.
func (r EnvCredentialResolver) ResolveEndpoint(provider llmadapter.Provider, model string, meta llmadapter.CallMetadata, streaming bool) (invoker.Endpoint, error) {
	key, err := r.apiKey(provider, meta)
	if err != nil {
		return invoker.Endpoint{}, err
	}

	switch provider {
	case llmadapter.ProviderOpenAI, llmadapter.ProviderOpenAIResponse, llmadapter.ProviderAnthropic, llmadapter.ProviderGoogle:
		return invoker.Endpoint{APIKey: key}, nil
	case llmadapter.ProviderOpenRouter:
		return invoker.Endpoint{
			BaseURL: "https://openrouter.ai", Path: "/api/v1/chat/completions",
			APIKey: key, AuthHeaderName: "Authorization", AuthPrefix: "Bearer ",
		}, nil
	default:
		return invoker.Endpoint{}, fmt.Errorf("coordinator: no endpoint convention for provider %q", provider)
	}
}
