package helpers

import "testing"

func TestPlainText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"removes tags and scripts", `<p>Hello <strong>world</strong><script>alert('x')</script></p>`, "Hello world"},
		{"unescapes entities", `Tom &amp; Jerry <em>say</em> "hi"`, `Tom & Jerry say "hi"`},
		{"collapses whitespace", "  multi\n\n line\tabstract  ", "multi line abstract"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := PlainText(tt.in); got != tt.want {
				t.Fatalf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
