package report

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Metrics is the best-effort summary of a health check report's first page.
// Unset fields mean nothing trustworthy was found.
type Metrics struct {
	Organization         string `json:"organization,omitempty"`
	Stack                string `json:"stack,omitempty"`
	RunBy                string `json:"runBy,omitempty"`
	LastRun              string `json:"lastRun,omitempty"`
	TotalChecks          *int   `json:"totalChecks,omitempty"`
	PerformedChecks      *int   `json:"performedChecks,omitempty"`
	SkippedChecks        *int   `json:"skippedChecks,omitempty"`
	ActionsRequired      *int   `json:"actionsRequired,omitempty"`
	AreasOfOpportunities *int   `json:"areasOfOpportunities,omitempty"`
	Strengths            *int   `json:"strengths,omitempty"`
}

// IsEmpty reports whether no field is set.
func (m Metrics) IsEmpty() bool {
	return m.Organization == "" && m.Stack == "" && m.RunBy == "" && m.LastRun == "" &&
		m.TotalChecks == nil && m.PerformedChecks == nil && m.SkippedChecks == nil &&
		m.ActionsRequired == nil && m.AreasOfOpportunities == nil && m.Strengths == nil
}

// MetricsSource tells which strategy produced a Metrics value.
type MetricsSource string

const (
	MetricsFromDocument MetricsSource = "document"
	MetricsFromText     MetricsSource = "text"
)

// SelectMetrics applies the combination policy: document level metrics win
// whenever they carry anything; otherwise the text metrics are used whole.
// Fields are never merged across the two.
func SelectMetrics(document *Metrics, text Metrics) (Metrics, MetricsSource) {
	if document != nil && !document.IsEmpty() {
		return *document, MetricsFromDocument
	}
	return text, MetricsFromText
}

const firstPageFallback = 3000

// Breakdown estimate shares used when the counted values cannot be trusted.
const (
	strengthsShare     = 0.40
	opportunitiesShare = 0.38
	actionsShare       = 0.22
)

// probe is one labeled field with its patterns in priority order. The first
// capture group of the first matching pattern is the value.
type probe struct {
	field    string
	patterns []*regexp.Regexp
}

func newProbe(field string, patterns ...string) probe {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return probe{field: field, patterns: compiled}
}

// firstMatch runs every pattern in order and returns the trimmed first group
// of the first match.
func firstMatch(text string, patterns []*regexp.Regexp) (string, bool) {
	for _, p := range patterns {
		m := p.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return v, true
		}
	}
	return "", false
}

const (
	fieldOrganization  = "organization"
	fieldStack         = "stack"
	fieldRunBy         = "runBy"
	fieldLastRun       = "lastRun"
	fieldTotalChecks   = "totalChecks"
	fieldPerformed     = "performedChecks"
	fieldSkipped       = "skippedChecks"
	fieldActions       = "actionsRequired"
	fieldOpportunities = "areasOfOpportunities"
	fieldStrengths     = "strengths"
)

var (
	firstPageMarker = regexp.MustCompile(`(?i)page\s*1\s*(?:of|/)\s*\d+`)

	identityProbes = []probe{
		newProbe(fieldOrganization,
			`(?im)^organi[sz]ation(?:\s+name)?\s*[:\-]\s*(.+)$`,
			`(?i)organi[sz]ation\s*:\s*([^\n]+)`),
		// Anchored to the line start: the report title also says "Stack".
		newProbe(fieldStack,
			`(?im)^stack(?:\s+name)?\s*:\s*(.+)$`),
		newProbe(fieldRunBy,
			`(?im)^run\s*by\s*:?\s*(.+)$`,
			`(?im)^(?:generated|performed)\s+by\s*:\s*(.+)$`),
		newProbe(fieldLastRun,
			`(?im)^last\s*run\b(?:\s+(?:on|at))?\s*:?\s*(.+)$`,
			`(?im)^(?:run\s+date|generated\s+on)\s*:\s*(.+)$`),
	}

	countProbes = []probe{
		newProbe(fieldTotalChecks,
			`(?i)\b(\d+)[^\S\n]*total\s*checks?`),
		newProbe(fieldPerformed,
			`(?i)\b(\d+)[^\S\n]*performed\s*checks?`,
			`(?i)performed\s*checks?\s*:\s*(\d+)`),
		newProbe(fieldSkipped,
			`(?i)\b(\d+)[^\S\n]*skipped\s*checks?`,
			`(?i)skipped\s*checks?\s*:\s*(\d+)`),
		newProbe(fieldActions,
			`(?i)\b(\d+)[^\S\n]*actions?\s+required`),
		newProbe(fieldOpportunities,
			`(?i)\b(\d+)[^\S\n]*areas?\s+of\s+opportunit(?:y|ies)`),
		newProbe(fieldStrengths,
			`(?i)\b(\d+)[^\S\n]*strengths?\b`),
	}

	// combinedChecks catches performed and skipped values rendered as one
	// numeral next to both labels, e.g. "372 Performed Checks Skipped Checks".
	combinedChecks = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d{2,})[^\S\n]*performed\s*checks?\s*skipped\s*checks?`),
		regexp.MustCompile(`(?i)performed\s*checks?\s*skipped\s*checks?\s*(\d{2,})`),
	}

	breakdownHeaders = map[string]*regexp.Regexp{
		fieldActions:       regexp.MustCompile(`(?i)^actions?\s+required\s*:?$`),
		fieldOpportunities: regexp.MustCompile(`(?i)^areas?\s+of\s+opportunit(?:y|ies)\s*:?$`),
		fieldStrengths:     regexp.MustCompile(`(?i)^strengths?\s*:?$`),
	}

	itemLine = regexp.MustCompile(`^[A-Z][A-Za-z0-9 &/()'.\-]{0,79}:`)
)

// FirstPage returns the part of text up to and including the "Page 1 of N"
// marker, or the first 3000 bytes when there is no marker.
func FirstPage(text string) string {
	if loc := firstPageMarker.FindStringIndex(text); loc != nil {
		return text[:loc[1]]
	}
	return truncate(text, firstPageFallback)
}

// ExtractMetrics recovers report identity fields and check counts from
// normalized or raw report text. It never fails; fields it cannot find stay
// unset.
func ExtractMetrics(text string) Metrics {
	var m Metrics
	if strings.TrimSpace(text) == "" {
		return m
	}
	window := FirstPage(text)

	for _, p := range identityProbes {
		v, ok := firstMatch(window, p.patterns)
		if !ok {
			continue
		}
		switch p.field {
		case fieldOrganization:
			m.Organization = v
		case fieldStack:
			m.Stack = v
		case fieldRunBy:
			m.RunBy = v
		case fieldLastRun:
			m.LastRun = v
		}
	}

	counts := make(map[string]int)
	for _, p := range countProbes {
		if v, ok := firstMatch(window, p.patterns); ok {
			if n, err := strconv.Atoi(v); err == nil {
				counts[p.field] = n
			}
		}
	}

	if total, ok := counts[fieldTotalChecks]; ok {
		m.TotalChecks = intPtr(total)
	}

	if digits, ok := firstMatch(window, combinedChecks); ok {
		performed, skipped := SplitCombinedChecks(digits, m.TotalChecks)
		m.PerformedChecks = intPtr(performed)
		m.SkippedChecks = intPtr(skipped)
	} else {
		if v, ok := counts[fieldPerformed]; ok {
			m.PerformedChecks = intPtr(v)
		}
		if v, ok := counts[fieldSkipped]; ok {
			m.SkippedChecks = intPtr(v)
		}
	}

	m.ActionsRequired, m.AreasOfOpportunities, m.Strengths = breakdown(text, counts, m.PerformedChecks)
	return m
}

// SplitCombinedChecks separates a numeral holding the performed and skipped
// counts side by side. With a known total the first split, by ascending
// position, whose parts add up to the total wins. Otherwise the last digit is
// taken as skipped, or the last two when that would leave performed above the
// total.
func SplitCombinedChecks(digits string, total *int) (performed, skipped int) {
	if len(digits) < 2 {
		n, _ := strconv.Atoi(digits)
		return n, 0
	}

	if total != nil {
		for i := 1; i < len(digits); i++ {
			p, errP := strconv.Atoi(digits[:i])
			s, errS := strconv.Atoi(digits[i:])
			if errP != nil || errS != nil {
				continue
			}
			if p+s == *total {
				return p, s
			}
		}
	}

	performed, _ = strconv.Atoi(digits[:len(digits)-1])
	skipped, _ = strconv.Atoi(digits[len(digits)-1:])
	if total != nil && performed > *total && len(digits) > 2 {
		performed, _ = strconv.Atoi(digits[:len(digits)-2])
		skipped, _ = strconv.Atoi(digits[len(digits)-2:])
	}
	return performed, skipped
}

// breakdown resolves the actions / opportunities / strengths counts. Explicit
// "N Strengths" style values from the first page come first, then the
// document structure is counted. An empty or implausible total is thrown away
// in favor of a proportional estimate of the performed checks.
func breakdown(text string, explicit map[string]int, performed *int) (actions, opportunities, strengths *int) {
	values := map[string]*int{}
	for _, field := range []string{fieldActions, fieldOpportunities, fieldStrengths} {
		if v, ok := explicit[field]; ok {
			values[field] = intPtr(v)
		}
	}

	headers, items := countBreakdownSections(text)
	for field, n := range headers {
		if _, ok := values[field]; ok {
			continue
		}
		if items[field] > n {
			n = items[field]
		}
		if n > 0 {
			values[field] = intPtr(n)
		}
	}

	sum := 0
	for _, v := range values {
		sum += *v
	}
	if sum == 0 || (performed != nil && sum > 2*(*performed)) {
		values = map[string]*int{}
		if performed != nil {
			EstimateBreakdown(*performed, values)
		}
	}

	return values[fieldActions], values[fieldOpportunities], values[fieldStrengths]
}

// EstimateBreakdown fills the unset categories of values with a fixed split
// of the performed checks: 40% strengths, 38% opportunities, 22% actions.
func EstimateBreakdown(performed int, values map[string]*int) {
	shares := map[string]float64{
		fieldStrengths:     strengthsShare,
		fieldOpportunities: opportunitiesShare,
		fieldActions:       actionsShare,
	}
	for field, share := range shares {
		if _, ok := values[field]; ok {
			continue
		}
		values[field] = intPtr(int(math.Round(float64(performed) * share)))
	}
}

// countBreakdownSections counts, per category, the header lines (headers) and
// the "Label:" item lines found inside each such section with a floor of one
// per section (items).
func countBreakdownSections(text string) (headers, items map[string]int) {
	headers = map[string]int{fieldActions: 0, fieldOpportunities: 0, fieldStrengths: 0}
	items = map[string]int{}

	current := ""
	currentItems := 0
	closeSection := func() {
		if current == "" {
			return
		}
		if currentItems < 1 {
			currentItems = 1
		}
		items[current] += currentItems
		current, currentItems = "", 0
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if field := breakdownField(line); field != "" {
			closeSection()
			headers[field]++
			current = field
			continue
		}
		// "Security: rotate token" is an item named after a section, not a header.
		if isMajorHeaderLine(line) && !itemLine.MatchString(line) {
			closeSection()
			continue
		}
		if current != "" && itemLine.MatchString(line) {
			currentItems++
		}
	}
	closeSection()
	return headers, items
}

func breakdownField(line string) string {
	for field, re := range breakdownHeaders {
		if re.MatchString(line) {
			return field
		}
	}
	return ""
}

func intPtr(v int) *int { return &v }
