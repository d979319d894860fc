package assemble

import (
	"strings"
	"testing"
)

func TestJoinText(t *testing.T) {
	tests := []struct {
		name string
		prev string
		next string
		want string
	}{
		{"plain_words", "Hello", "there", "Hello there"},
		{"empty_prev", "", "there", "there"},
		{"empty_next", "Hello", "", "Hello"},
		{"both_empty", "", "", ""},
		{"trailing_space_trimmed", "Hello ", "there", "Hello there"},
		{"leading_space_trimmed", "Hello", "  there", "Hello there"},
		{"closing_period", "Hello", ".", "Hello."},
		{"closing_comma", "Hello", ", there", "Hello, there"},
		{"closing_question", "Really", "?", "Really?"},
		{"closing_percent", "50", "%", "50%"},
		{"closing_bracket", "done", ")", "done)"},
		{"opening_dash", "well-", "known", "well-known"},
		{"opening_paren", "(", "aside", "(aside"},
		{"opening_quote", "\"", "quoted", "\"quoted"},
		{"opening_emdash", "wait—", "what", "wait—what"},
		{"lstrip_on_empty_prev", "", "  x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JoinText(tt.prev, tt.next)
			if got != tt.want {
				t.Errorf("JoinText(%q, %q) = %q, want %q", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

func TestJoinText_NoDoubleSpace(t *testing.T) {
	words := []string{"one", "two ", " three", "four."}
	text := ""
	for _, w := range words {
		text = JoinText(text, w)
	}
	if strings.Contains(text, "  ") {
		t.Errorf("joined text contains a double space: %q", text)
	}
	if text != "one two three four." {
		t.Errorf("joined = %q", text)
	}
}
