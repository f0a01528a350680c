package report

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// runeBoundary moves i back until it sits on the start of a rune.
func runeBoundary(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	if i <= 0 {
		return 0
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// trimBounds returns the bounds of s[start:end] with surrounding whitespace
// removed. An all-whitespace range collapses to (start, start).
func trimBounds(s string, start, end int) (int, int) {
	part := s[start:end]
	trimmed := strings.TrimLeftFunc(part, unicode.IsSpace)
	if trimmed == "" {
		return start, start
	}
	lead := len(part) - len(trimmed)
	trail := len(trimmed) - len(strings.TrimRightFunc(trimmed, unicode.IsSpace))
	return start + lead, end - trail
}
