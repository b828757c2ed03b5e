// Package sanitize canonicalizes tool names for providers that
// restrict identifiers to letters, digits, and underscore, and
// maintains the bidirectional canonical<->sanitized map a single call
// needs to translate a model's tool-call reply back into the tool
// namespace the router knows (spec.md §4.1).
package sanitize

import (
	"fmt"
	"strings"
)

// Registry is the per-call bidirectional name map. It is not safe for
// concurrent registration, but once built it is read-only and safe to
// share across goroutines for the remainder of the call (e.g. across
// parallel tool invocations).
type Registry struct {
	toSanitized map[string]string
	toCanonical map[string]string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		toSanitized: make(map[string]string),
		toCanonical: make(map[string]string),
	}
}

// Register sanitizes name and adds it to the bidirectional map.
// Collisions are resolved by registration order: the first canonical
// name to produce a given sanitized form wins; any later canonical
// name that collides is rejected with a deterministic error so callers
// can surface a clear registration-time failure instead of silently
// routing tool calls to the wrong tool.
func (r *Registry) Register(canonical string) (string, error) {
	if existing, ok := r.toSanitized[canonical]; ok {
		return existing, nil
	}
	sanitized := Sanitize(canonical)
	if prior, exists := r.toCanonical[sanitized]; exists {
		return "", fmt.Errorf("sanitize: tool name %q collides with already-registered %q (both sanitize to %q)", canonical, prior, sanitized)
	}
	r.toSanitized[canonical] = sanitized
	r.toCanonical[sanitized] = canonical
	return sanitized, nil
}

// SanitizedOf returns the sanitized form of a previously registered
// canonical name.
func (r *Registry) SanitizedOf(canonical string) (string, bool) {
	s, ok := r.toSanitized[canonical]
	return s, ok
}

// CanonicalOf returns the canonical name a sanitized form was
// registered for. If sanitized was never produced by Register (e.g.
// the model hallucinated a tool name), ok is false and callers should
// treat the name as unresolved rather than guessing.
func (r *Registry) CanonicalOf(sanitized string) (string, bool) {
	c, ok := r.toCanonical[sanitized]
	return c, ok
}

// Sanitize applies the canonicalization rule alone, without touching
// any Registry: every character outside [A-Za-z0-9_] is replaced with
// '_'; case is preserved; consecutive underscores are never collapsed
// (a literal double-underscore in the input, or two adjacent special
// characters, both survive as "__").
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isAllowed(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	default:
		return false
	}
}
