package report

import (
	"regexp"
	"strings"
)

// SectionLabel names the part of a health check report a chunk belongs to.
type SectionLabel string

const (
	SectionContentModelling     SectionLabel = "Content Modelling"
	SectionActionsRequired      SectionLabel = "Actions Required"
	SectionContentTypes         SectionLabel = "Content Types"
	SectionGlobalFields         SectionLabel = "Global Fields"
	SectionAreasOfOpportunities SectionLabel = "Areas of Opportunities"
	SectionStrengths            SectionLabel = "Strengths"
	SectionNamingStandards      SectionLabel = "Naming Standards"
	SectionValidationRules      SectionLabel = "Validation Rules"
	SectionDescriptions         SectionLabel = "Descriptions"
	SectionEntries              SectionLabel = "Entries"
	SectionAssets               SectionLabel = "Assets"
	SectionWorkflows            SectionLabel = "Workflows"
	SectionWebhooks             SectionLabel = "Webhooks"
	SectionExtensions           SectionLabel = "Extensions"
	SectionUsersAndRoles        SectionLabel = "Users & Roles"
	SectionSecurity             SectionLabel = "Security"
	SectionPerformance          SectionLabel = "Performance"
	SectionRecommendations      SectionLabel = "Recommendations"
	SectionStackOverview        SectionLabel = "Stack Overview"
	SectionLocales              SectionLabel = "Locales"
	SectionEnvironments         SectionLabel = "Environments"
	SectionGeneral              SectionLabel = "General"
)

const tableDataSuffix = " - Table Data"

// TableData returns the label used for the tabular body of a section.
func (l SectionLabel) TableData() SectionLabel {
	if l.IsTableData() {
		return l
	}
	return l + tableDataSuffix
}

// IsTableData reports whether the label marks a table body chunk.
func (l SectionLabel) IsTableData() bool {
	return strings.HasSuffix(string(l), tableDataSuffix)
}

// Base strips the table data suffix, if any.
func (l SectionLabel) Base() SectionLabel {
	return SectionLabel(strings.TrimSuffix(string(l), tableDataSuffix))
}

func (l SectionLabel) String() string { return string(l) }

// classifierWindow is how much of a snippet the classifier looks at.
const classifierWindow = 300

type sectionRule struct {
	label    SectionLabel
	patterns []*regexp.Regexp
}

func rule(label SectionLabel, patterns ...string) sectionRule {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return sectionRule{label: label, patterns: compiled}
}

// sectionRules is evaluated top to bottom; the first matching pattern wins.
// Specific report sections come before the generic ones whose vocabulary they
// share (content modelling text mentions entries and assets all the time).
var sectionRules = []sectionRule{
	rule(SectionContentModelling, `content\s+modell?ing`, `content\s+models?\b`),
	rule(SectionActionsRequired, `actions?\s+required`, `action\s+items?`, `critical\s+issues?`),
	rule(SectionContentTypes, `content\s+types?`),
	rule(SectionGlobalFields, `global\s+fields?`),
	rule(SectionAreasOfOpportunities, `areas?\s+of\s+opportunit(?:y|ies)`, `opportunit(?:y|ies)\s+for\s+improvement`),
	rule(SectionStrengths, `\bstrengths?\b`, `what'?s\s+working\s+well`),
	rule(SectionNamingStandards, `naming\s+(?:standards?|conventions?)`, `\bnaming\b`),
	rule(SectionValidationRules, `validation\s+rules?`, `\bvalidations?\b`),
	rule(SectionDescriptions, `\bdescriptions?\b`),
	rule(SectionEntries, `\bentr(?:y|ies)\b`),
	rule(SectionAssets, `\bassets?\b`),
	rule(SectionWorkflows, `\bworkflows?\b`, `publish(?:ing)?\s+rules?`),
	rule(SectionWebhooks, `\bwebhooks?\b`),
	rule(SectionExtensions, `\bextensions?\b`, `marketplace\s+apps?`, `custom\s+fields?\s+apps?`),
	rule(SectionUsersAndRoles, `users?\s*(?:&|and)\s*roles?`, `\broles?\b`, `\bpermissions?\b`),
	rule(SectionSecurity, `\bsecurity\b`, `(?:management|delivery)\s+tokens?`, `two[-\s]factor`, `\bsso\b`),
	rule(SectionPerformance, `\bperformance\b`, `\bcach(?:e|ing)\b`, `response\s+times?`),
	rule(SectionRecommendations, `\brecommendations?\b`, `best\s+practices?`),
	rule(SectionStackOverview, `stack\s+overview`, `(?m)^stack\s*:`, `health\s*check\s+report`),
	rule(SectionLocales, `\blocales?\b`, `locali[sz]ation`),
	rule(SectionEnvironments, `\benvironments?\b`),
}

// ClassifySection maps a snippet to a section label. Only the first 300 bytes
// are inspected, case-folded. Labels are tried in declaration order and the
// first matching pattern wins; General is returned when nothing matches.
func ClassifySection(snippet string) SectionLabel {
	window := strings.ToLower(truncate(snippet, classifierWindow))
	for _, r := range sectionRules {
		for _, p := range r.patterns {
			if p.MatchString(window) {
				return r.label
			}
		}
	}
	return SectionGeneral
}

// Labels returns the taxonomy in priority order, General last.
func Labels() []SectionLabel {
	labels := make([]SectionLabel, 0, len(sectionRules)+1)
	for _, r := range sectionRules {
		labels = append(labels, r.label)
	}
	return append(labels, SectionGeneral)
}

// majorHeaders are the section titles that start a new top level segment when
// they open a line.
var majorHeaders = []string{
	"stack overview",
	"executive summary",
	"summary",
	"actions required",
	"areas of opportunities",
	"areas of opportunity",
	"strengths",
	"content modelling",
	"content modeling",
	"content types",
	"global fields",
	"naming standards",
	"validation rules",
	"entries",
	"assets",
	"workflows",
	"webhooks",
	"extensions",
	"users & roles",
	"users and roles",
	"security",
	"performance",
	"recommendations",
	"locales",
	"environments",
}

// isMajorHeaderLine reports whether line opens with a known section title
// followed by the end of the line or a non-letter.
func isMajorHeaderLine(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, h := range majorHeaders {
		if !strings.HasPrefix(lower, h) {
			continue
		}
		if len(lower) == len(h) {
			return true
		}
		next := lower[len(h)]
		if !(next >= 'a' && next <= 'z') {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:runeBoundary(s, n)]
}
