// Package glob implements the shell-style pattern matching used to filter
// group names.
//
// The dialect is deliberately small and non-standard around class
// delimiters, so it is written as an explicit backtracking matcher rather
// than delegating to path.Match:
//
//   - `?` matches any single character.
//   - `*` matches any run of characters, including the empty run.
//   - `[...]` and `[!...]` match character classes with `a-z` ranges. A `]`
//     or `-` placed directly after the opening bracket (or the `!`), or a
//     `-` directly before the closing bracket, is a literal member. A `[`
//     inside a class is literal.
//   - There is no escape character; a literal `*` or `?` must be wrapped in
//     a one-element class.
//
// Matching is case-insensitive and always spans the entire name.
package glob

import (
	"errors"
	"strings"
)

// ErrBadPattern reports a malformed pattern (an unterminated character class).
var ErrBadPattern = errors.New("glob: malformed pattern")

// Match reports whether name matches pattern in its entirety,
// case-insensitively. A malformed pattern is always an error, even when
// matching would have failed before reaching the broken class.
func Match(pattern, name string) (bool, error) {
	p := []rune(strings.ToLower(pattern))
	if err := validate(p); err != nil {
		return false, err
	}
	n := []rune(strings.ToLower(name))
	return match(p, n), nil
}

// Validate checks pattern syntax without matching anything.
func Validate(pattern string) error {
	return validate([]rune(strings.ToLower(pattern)))
}

// validate scans the whole pattern for unterminated character classes,
// independently of any name.
func validate(p []rune) error {
	for len(p) > 0 {
		if p[0] != '[' {
			p = p[1:]
			continue
		}
		_, rest, err := parseClass(p)
		if err != nil {
			return err
		}
		p = rest
	}
	return nil
}

// match assumes p has passed validate.
func match(p, n []rune) bool {
	if len(p) == 0 {
		return len(n) == 0
	}
	switch p[0] {
	case '*':
		for i := 0; ; i++ {
			if match(p[1:], n[i:]) {
				return true
			}
			if i >= len(n) {
				return false
			}
		}
	case '?':
		if len(n) == 0 {
			return false
		}
		return match(p[1:], n[1:])
	case '[':
		cls, rest, _ := parseClass(p)
		if len(n) == 0 || !cls.contains(n[0]) {
			return false
		}
		return match(rest, n[1:])
	default:
		if len(n) == 0 || p[0] != n[0] {
			return false
		}
		return match(p[1:], n[1:])
	}
}

type class struct {
	negate bool
	ranges [][2]rune
}

func (c class) contains(r rune) bool {
	for _, rr := range c.ranges {
		if r >= rr[0] && r <= rr[1] {
			return !c.negate
		}
	}
	return c.negate
}

// parseClass consumes a class starting at p[0] == '[' and returns the parsed
// class plus the remaining pattern.
func parseClass(p []rune) (class, []rune, error) {
	var c class
	i := 1
	if i < len(p) && p[i] == '!' {
		c.negate = true
		i++
	}
	first := true
	for i < len(p) {
		if p[i] == ']' && !first {
			return c, p[i+1:], nil
		}
		lo, hi := p[i], p[i]
		// A dash forms a range only between two members; a dash whose
		// right-hand side would be the closing bracket is a literal.
		if i+2 < len(p) && p[i+1] == '-' && p[i+2] != ']' {
			hi = p[i+2]
			i += 3
		} else {
			i++
		}
		if hi < lo {
			lo, hi = hi, lo
		}
		c.ranges = append(c.ranges, [2]rune{lo, hi})
		first = false
	}
	return class{}, nil, ErrBadPattern
}
