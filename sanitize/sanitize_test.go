package sanitize

import "testing"

func TestSanitizeReplacesDisallowedCharacters(t *testing.T) {
	cases := map[string]string{
		"search.docs":     "search_docs",
		"get@weather":     "get_weather",
		"already_ok_name": "already_ok_name",
		"a..b":            "a__b",
		"MixedCase.Name":  "MixedCase_Name",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	r := New()
	for _, name := range []string{"search.docs", "weather.get", "calc"} {
		sanitized, err := r.Register(name)
		if err != nil {
			t.Fatalf("Register(%q): %v", name, err)
		}
		canonical, ok := r.CanonicalOf(sanitized)
		if !ok || canonical != name {
			t.Errorf("CanonicalOf(%q) = %q, %v; want %q, true", sanitized, canonical, ok, name)
		}
	}
}

func TestRegistryCollisionRejected(t *testing.T) {
	r := New()
	if _, err := r.Register("search.docs"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := r.Register("search_docs"); err == nil {
		t.Fatalf("expected collision error registering search_docs after search.docs")
	}
}

func TestRegistryReRegisterSameNameIsIdempotent(t *testing.T) {
	r := New()
	s1, err := r.Register("tool.one")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	s2, err := r.Register("tool.one")
	if err != nil {
		t.Fatalf("Register (again): %v", err)
	}
	if s1 != s2 {
		t.Errorf("re-registering the same canonical name produced different sanitized forms: %q vs %q", s1, s2)
	}
}

func TestUnknownSanitizedNameIsUnresolved(t *testing.T) {
	r := New()
	if _, ok := r.CanonicalOf("nonexistent"); ok {
		t.Errorf("CanonicalOf on an unregistered name should be unresolved")
	}
}
