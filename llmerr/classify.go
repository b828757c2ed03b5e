package llmerr

import "strings"

// Manifest is a compat module's declaration of how to recognize the
// behavioral error kinds in its provider's wire errors: an HTTP status
// set per kind, plus phrase fragments to match against the error text
// when the provider doesn't use clean status codes (spec.md §7's
// "retryWords" concept, generalized to every kind a provider needs
// phrase-based detection for).
type Manifest struct {
	AuthStatuses     []int
	RateLimitStatus  int
	RetryWords       []string
	TransientMinCode int // inclusive lower bound, e.g. 500
}

// DefaultManifest matches the 401/429/5xx convention shared by OpenAI,
// Anthropic, and Google's HTTP-backed SDKs.
func DefaultManifest() Manifest {
	return Manifest{
		AuthStatuses:     []int{401, 403},
		RateLimitStatus:  429,
		RetryWords:       []string{"rate limit", "quota exceeded", "resource_exhausted"},
		TransientMinCode: 500,
	}
}

// Classify maps a provider status code and/or raw error text to a
// behavioral Kind using m. statusCode 0 means "unknown / not an HTTP
// error" (e.g. a stream interruption, a transport-level failure).
func Classify(m Manifest, statusCode int, errText string) Kind {
	for _, s := range m.AuthStatuses {
		if statusCode == s {
			return KindAuth
		}
	}
	if statusCode == m.RateLimitStatus {
		return KindRateLimit
	}
	if m.TransientMinCode > 0 && statusCode >= m.TransientMinCode {
		return KindTransient
	}

	lower := strings.ToLower(errText)
	for _, word := range m.RetryWords {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			return KindRateLimit
		}
	}
	if strings.Contains(lower, "api key") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid_api_key") {
		return KindAuth
	}
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") || strings.Contains(lower, "connection reset") {
		return KindTransient
	}
	return KindTransient
}
