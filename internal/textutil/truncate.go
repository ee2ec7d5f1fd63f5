package textutil

import (
	"strings"
	"unicode/utf8"
)

// Truncate returns s unchanged when it is at most limit bytes long. Longer
// strings are cut at the last rune boundary at or before limit and suffixed
// with "...".
func Truncate(s string, limit int) string {
	if limit < 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Snippet collapses whitespace in content and bounds it for use in log fields.
func Snippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
