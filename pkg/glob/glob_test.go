package glob

import "testing"

func TestMatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"", "", true},
		{"", "a", false},
		{"abc", "abc", true},
		{"abc", "ABC", true},
		{"abc", "abd", false},
		{"group?", "groupA", true},
		{"group?", "group", false},
		{"group?", "groupAB", false},
		{"*", "", true},
		{"*", "anything", true},
		{"g*p", "gossip", true},
		{"g*p", "group", true},
		{"g*p", "groups", false},
		{"*[c-g]", "groupC", true},
		{"*[c-g]", "groupH", false},
		{"[?]", "?", true},
		{"[?]", "x", false},
		{"[*]x", "*x", true},
		{"[*]x", "ax", false},
		{"[!abc]", "d", true},
		{"[!abc]", "b", false},
		// Boundary literals: `]` after the opener, `-` before the closer.
		{"[]]", "]", true},
		{"[]a]", "a", true},
		{"[]a]", "]", true},
		{"[a-]", "-", true},
		{"[a-]", "a", true},
		{"[a-]", "b", false},
		{"[!]]", "]", false},
		{"[!]]", "x", true},
		// `[` inside a class is a literal member.
		{"[[a]", "[", true},
		{"[[a]", "a", true},
		// Ranges combine with literals.
		{"x[0-9-]", "x5", true},
		{"x[0-9-]", "x-", true},
		{"x[0-9-]", "xa", false},
	}
	for _, tt := range tests {
		got, err := Match(tt.pattern, tt.name)
		if err != nil {
			t.Fatalf("Match(%q, %q) error: %v", tt.pattern, tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("Match(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestMatchMalformed(t *testing.T) {
	t.Parallel()
	for _, pattern := range []string{"[", "[abc", "[!", "[]", "*[a", "x[0-"} {
		if _, err := Match(pattern, "anything"); err == nil {
			t.Fatalf("Match(%q) expected error", pattern)
		}
	}
	// A malformed class is an error even when matching would fail before
	// reaching it: an exhausted name, a literal mismatch ahead of the class.
	tests := []struct{ pattern, name string }{
		{"*[a", ""},
		{"?[a", ""},
		{"ab[cd", "zz"},
		{"x[0-", "y"},
	}
	for _, tt := range tests {
		if _, err := Match(tt.pattern, tt.name); err == nil {
			t.Fatalf("Match(%q, %q) expected error", tt.pattern, tt.name)
		}
	}
}
