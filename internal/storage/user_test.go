package storage

import (
	"strings"
	"testing"
)

func TestSlugFromEmail(t *testing.T) {
	cases := []struct {
		email  string
		prefix string
	}{
		{"alice@example.com", "alice-"},
		{"Bob.Smith@example.com", "bob-smith-"},
		{"under_score@example.com", "under-score-"},
		{"UPPER@example.com", "upper-"},
		{"123@example.com", "123-"},
		{"!!!@example.com", "org-"},
	}

	for _, tc := range cases {
		slug := SlugFromEmail(tc.email)
		if !strings.HasPrefix(slug, tc.prefix) {
			t.Errorf("SlugFromEmail(%q) = %q, expected prefix %q", tc.email, slug, tc.prefix)
		}
		if len(slug) != len(tc.prefix)+4 {
			t.Errorf("SlugFromEmail(%q) = %q, expected 4-char suffix", tc.email, slug)
		}
		for _, r := range slug {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				t.Errorf("SlugFromEmail(%q) = %q contains invalid rune %q", tc.email, slug, r)
			}
		}
	}
}

func TestSlugFromEmailIsRandomized(t *testing.T) {
	a := SlugFromEmail("alice@example.com")
	b := SlugFromEmail("alice@example.com")
	if a == b {
		t.Fatalf("expected distinct suffixes, got %q twice", a)
	}
}
