package bot

import (
	"fmt"
	"strings"
	"time"
)

// formatList joins items in natural-language style: "a", "a and b",
// "a, b, and c". The fallback is returned for an empty list.
func formatList(items []string, fallback string) string {
	switch len(items) {
	case 0:
		return fallback
	case 1, 2:
		return strings.Join(items, " and ")
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

// titleFirst upcases the first rune only, leaving the rest alone.
func titleFirst(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// formatDelta renders a duration as a compact unit chain ("2d 5h 13m").
// Sub-minute remainders are dropped once the delta exceeds an hour.
func formatDelta(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	units := []struct {
		span  int64
		label string
	}{
		{86400, "d"},
		{3600, "h"},
		{60, "m"},
		{1, "s"},
	}
	var parts []string
	for _, u := range units {
		if n := secs / u.span; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.label))
			secs -= n * u.span
		}
		if len(parts) == 3 {
			break
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}

// formatDatetime renders a timestamp for !seen output.
func formatDatetime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// indentLines makes a multi-line description hang under its heading.
func indentLines(s string) string {
	return strings.ReplaceAll(s, "\n", "\n    ")
}
