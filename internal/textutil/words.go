package textutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SplitWords breaks s on underscores, hyphens and spaces, dropping empty tokens.
func SplitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
}

// CapitalizeWords uppercases the first letter of every word in s and joins
// the words with single spaces. Only the leading rune changes, so
// "my_api-server" becomes "My Api Server" and "next.js" becomes "Next.js".
func CapitalizeWords(s string) string {
	words := SplitWords(s)
	if len(words) == 0 {
		return ""
	}
	caser := cases.Upper(language.Und)
	for i, word := range words {
		_, size := utf8.DecodeRuneInString(word)
		words[i] = caser.String(word[:size]) + word[size:]
	}
	return strings.Join(words, " ")
}
