package utils

import "testing"

func TestMatchWildcard(t *testing.T) {
	if !Match("anything", "*") {
		t.Fatalf("expected * to match anything")
	}
	if !Match("", "*") {
		t.Fatalf("expected * to match empty string")
	}
}

func TestMatchExact(t *testing.T) {
	if !Match("document:1", "document:1") {
		t.Fatalf("expected exact match")
	}
	if Match("document:1", "document:2") {
		t.Fatalf("expected mismatch")
	}
}

func TestMatchPrefix(t *testing.T) {
	cases := []struct {
		value, pattern string
		want           bool
	}{
		{"document:55", "document:*", true},
		{"document:55", "doc*", true},
		{"invoice:55", "document:*", false},
		{"document", "document:*", false},
	}
	for _, c := range cases {
		if got := Match(c.value, c.pattern); got != c.want {
			t.Fatalf("Match(%q, %q) = %v, want %v", c.value, c.pattern, got, c.want)
		}
	}
}

func TestMatchSegmented(t *testing.T) {
	cases := []struct {
		value, pattern string
		want           bool
	}{
		{"/users/42", "/users/:id", true},
		{"/users/42/posts", "/users/:id", false},
		{"/users/42/posts", "/users/:id/posts", true},
		{"/admin/settings", "/admin/*", true},
		{"/admin", "/admin/*", true},
		{"/other/settings", "/admin/*", false},
		{"GET /users/42", "GET /users/:id", true},
		{"POST /users/42", "GET /users/:id", false},
		{"DELETE /users/42", "* /users/:id", true},
	}
	for _, c := range cases {
		if got := Match(c.value, c.pattern); got != c.want {
			t.Fatalf("Match(%q, %q) = %v, want %v", c.value, c.pattern, got, c.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"invoice:*", "document:55"}
	if !MatchAny("document:55", patterns) {
		t.Fatalf("expected MatchAny to hit the second pattern")
	}
	if MatchAny("document:56", patterns) {
		t.Fatalf("expected no pattern to match")
	}
	if MatchAny("anything", nil) {
		t.Fatalf("expected empty pattern list to match nothing")
	}
}
