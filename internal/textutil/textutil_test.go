package textutil

import (
	"strings"
	"testing"
)

func TestCapitalizeWords(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"my_api-server", "My Api Server"},
		{"redis", "Redis"},
		{"  spaced  out ", "Spaced Out"},
		{"nextJS", "NextJS"},
		{"next.js", "Next.js"},
		{"__", ""},
		{"", ""},
		{"élan", "Élan"},
	}
	for _, tt := range tests {
		if got := CapitalizeWords(tt.in); got != tt.want {
			t.Errorf("CapitalizeWords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("expected unchanged, got %q", got)
	}
	exact := strings.Repeat("a", 200)
	if got := Truncate(exact, 200); got != exact {
		t.Fatal("string at the limit must not be truncated")
	}
	long := strings.Repeat("a", 250)
	got := Truncate(long, 200)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation %q (%d bytes)", got, len(got))
	}
	// "é" is two bytes; cutting at 2 would split it.
	if got := Truncate("aéb", 2); got != "a..." {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("  \n "); got != "<empty>" {
		t.Fatalf("expected <empty>, got %q", got)
	}
	if got := Snippet("a\n\tb   c"); got != "a b c" {
		t.Fatalf("expected collapsed whitespace, got %q", got)
	}
	if got := Snippet(strings.Repeat("x", 200)); len(got) != 163 {
		t.Fatalf("expected 160 runes plus ellipsis, got %d", len(got))
	}
}
