package report

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeCanonicalizesWhitespace(t *testing.T) {
	raw := "  Hello\u00a0\u00a0world \r\n\r\n\r\n\r\nNext\tline  \rEnd  "
	got := Normalize(raw)
	want := "Hello world\n\nNext line\nEnd"
	if got != want {
		t.Fatalf("unexpected normalized text: %q, want %q", got, want)
	}
}

func TestNormalizeUnicodeSpaces(t *testing.T) {
	raw := "a\u00a0b\u2003c\u3000d\u2009e\u202ff\u2028g"
	if got := Normalize(raw); got != "a b c d e f g" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"plain",
		"\n\n\n\nx\n\n\n\ny\n\n",
		"tabs\t\tand  spaces   mixed\r\nwith\u2002\u2002\r\n  lines",
		"Stack Overview\nStack: acme\nPage 1 of 5\n\n\n\nActions Required",
		"\u3000leading and trailing\u00a0\u00a0",
		"a \n \n \n b",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("normalize not idempotent for %q: %q vs %q", in, once, twice)
		}
		if strings.Contains(once, "\r") || strings.Contains(once, "\n\n\n") || strings.Contains(once, "  ") {
			t.Errorf("normalized text %q still has excess whitespace", once)
		}
	}
}

func TestRequireContentRejectsEmpty(t *testing.T) {
	_, err := RequireContent("blank.txt", " \n\u00a0\n\t ")
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	var emptyErr *EmptyContentError
	if !errors.As(err, &emptyErr) || emptyErr.Source != "blank.txt" {
		t.Fatalf("expected EmptyContentError for blank.txt, got %#v", err)
	}
}

func TestRequireContentReturnsNormalized(t *testing.T) {
	text, err := RequireContent("ok.txt", "  body\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "body" {
		t.Fatalf("unexpected text %q", text)
	}
}
