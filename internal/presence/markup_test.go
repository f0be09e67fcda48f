package presence_test

import (
	"testing"

	"richpres/internal/presence"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"  padded  ", "padded"},
		{"<b>bold</b> text", "bold text"},
		{"one<br>two<br/>three", "one\ntwo\nthree"},
		{`<a href="https://example.com">link</a>`, "link"},
		{"fish &amp; chips", "fish & chips"},
	}
	for _, tt := range tests {
		if got := presence.StripMarkup(tt.in); got != tt.want {
			t.Errorf("StripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
