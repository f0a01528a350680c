// Package report turns extracted health check report text into normalized text,
// labeled chunks for retrieval, and best-effort report metrics.
package report

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// ErrEmptyContent is returned (wrapped in EmptyContentError) when a document has
// no usable text after normalization.
var ErrEmptyContent = errors.New("document has no extractable text")

// EmptyContentError reports a document that normalized to an empty string.
type EmptyContentError struct {
	Source string
}

func (e *EmptyContentError) Error() string {
	if e.Source == "" {
		return ErrEmptyContent.Error()
	}
	return e.Source + ": " + ErrEmptyContent.Error()
}

func (e *EmptyContentError) Unwrap() error { return ErrEmptyContent }

var (
	inlineWhitespace = regexp.MustCompile(`[^\S\n]+`)
	excessNewlines   = regexp.MustCompile(`\n{3,}`)
)

// spaceMapper folds every Unicode space variant into a plain ASCII space.
var spaceMapper = runes.Map(func(r rune) rune {
	switch r {
	case '\t', '\v', '\f', '\u0085', '\u00a0', '\u1680',
		'\u2028', '\u2029', '\u202f', '\u205f', '\u3000':
		return ' '
	}
	if r >= '\u2000' && r <= '\u200a' {
		return ' '
	}
	return r
})

// Normalize canonicalizes raw extracted text. The result has no carriage
// returns, no run of three or more newlines, no run of inline whitespace longer
// than one space and no leading or trailing whitespace on any line. An empty
// result is returned as-is; callers decide whether that is an error.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	text, _, err := transform.String(spaceMapper, raw)
	if err != nil {
		text = raw
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = inlineWhitespace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// RequireContent normalizes raw and fails with EmptyContentError when nothing
// usable remains.
func RequireContent(source, raw string) (string, error) {
	text := Normalize(raw)
	if text == "" {
		return "", &EmptyContentError{Source: source}
	}
	return text, nil
}
