// Package textutil holds small string helpers shared by the classifier and
// the CLI: word capitalization for display names, byte-bounded truncation
// that never splits a rune, and single-line snippets of remote payloads for
// log fields.
package textutil
