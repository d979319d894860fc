package assemble

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// openingChars never take a space after them: a token following a dash,
// opening bracket or opening quote attaches directly.
const openingChars = "-([{\"'—"

// closingChars never take a space before them: punctuation that attaches to
// the preceding token.
const closingChars = ".,!?;:%)]}"

// JoinText merges two text fragments with punctuation-aware spacing. Word
// tokens arrive as standalone strings with no embedded context, so this is
// what keeps the joined text free of double spaces and space-before-comma
// artifacts.
func JoinText(prev, next string) string {
	prev = strings.TrimRightFunc(prev, unicode.IsSpace)
	next = strings.TrimLeftFunc(next, unicode.IsSpace)
	if prev == "" {
		return next
	}
	if next == "" {
		return prev
	}
	if last, _ := utf8.DecodeLastRuneInString(prev); strings.ContainsRune(openingChars, last) {
		return prev + next
	}
	if first, _ := utf8.DecodeRuneInString(next); strings.ContainsRune(closingChars, first) {
		return prev + next
	}
	return prev + " " + next
}
