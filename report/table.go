package report

import (
	"regexp"
	"strings"
)

// tableCaption matches the "Displaying 25 of 140 records" line the report
// generator prints above every table.
var tableCaption = regexp.MustCompile(`(?i)displaying\s+\d+(?:\s*(?:-|to)\s*\d+)?(?:\s+of\s+\d+)?\s+records?`)

var tableHeaderTokens = []string{
	"content type title",
	"content type uid",
	"created on",
	"updated on",
	"modified on",
	"field name",
	"field uid",
	"entry title",
	"asset name",
	"recommendation",
}

// ContainsTable reports whether the snippet looks like tabular output, either
// through a record count caption or a recognizable column header.
func ContainsTable(snippet string) bool {
	if tableCaption.MatchString(snippet) {
		return true
	}
	lower := strings.ToLower(snippet)
	for _, token := range tableHeaderTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// tableStart returns the byte offset of the first line carrying a table
// caption, or -1.
func tableStart(text string) int {
	loc := tableCaption.FindStringIndex(text)
	if loc == nil {
		return -1
	}
	return strings.LastIndexByte(text[:loc[0]], '\n') + 1
}
