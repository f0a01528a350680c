package report

import (
	"strings"
	"testing"
)

func intValue(t *testing.T, name string, v *int) int {
	t.Helper()
	if v == nil {
		t.Fatalf("%s not set", name)
	}
	return *v
}

func TestExtractMetricsSampleReport(t *testing.T) {
	m := ExtractMetrics(Normalize(sampleReport))
	if m.Stack != "acme" {
		t.Fatalf("expected stack acme, got %q", m.Stack)
	}
}

func TestExtractMetricsFirstPage(t *testing.T) {
	text := strings.Join([]string{
		"Stack Health Check Report",
		"Organization: Acme Corp",
		"Stack: Marketing Site",
		"Run By: jane@acme.test",
		"Last Run: 2024-05-01 10:00",
		"39 Total Checks",
		"372 Performed Checks Skipped Checks",
		"Page 1 of 12",
		"Stack: Should Not Match",
		"Organization: Someone Else",
	}, "\n")

	m := ExtractMetrics(text)
	if m.Organization != "Acme Corp" {
		t.Errorf("organization: got %q", m.Organization)
	}
	if m.Stack != "Marketing Site" {
		t.Errorf("stack: got %q", m.Stack)
	}
	if m.RunBy != "jane@acme.test" {
		t.Errorf("run by: got %q", m.RunBy)
	}
	if m.LastRun != "2024-05-01 10:00" {
		t.Errorf("last run: got %q", m.LastRun)
	}
	if got := intValue(t, "total", m.TotalChecks); got != 39 {
		t.Errorf("total: got %d", got)
	}
	if got := intValue(t, "performed", m.PerformedChecks); got != 37 {
		t.Errorf("performed: got %d", got)
	}
	if got := intValue(t, "skipped", m.SkippedChecks); got != 2 {
		t.Errorf("skipped: got %d", got)
	}

	// No breakdown sections: estimated from 37 performed checks.
	if got := intValue(t, "strengths", m.Strengths); got != 15 {
		t.Errorf("strengths: got %d", got)
	}
	if got := intValue(t, "opportunities", m.AreasOfOpportunities); got != 14 {
		t.Errorf("opportunities: got %d", got)
	}
	if got := intValue(t, "actions", m.ActionsRequired); got != 8 {
		t.Errorf("actions: got %d", got)
	}
}

func TestExtractMetricsIndependentCheckCounts(t *testing.T) {
	m := ExtractMetrics("40 Total Checks\n37 Performed Checks\n3 Skipped Checks\nPage 1 of 2")
	if intValue(t, "performed", m.PerformedChecks) != 37 || intValue(t, "skipped", m.SkippedChecks) != 3 {
		t.Fatalf("unexpected counts %d/%d", *m.PerformedChecks, *m.SkippedChecks)
	}
}

func TestSplitCombinedChecks(t *testing.T) {
	total := func(v int) *int { return &v }
	cases := []struct {
		digits    string
		total     *int
		performed int
		skipped   int
	}{
		{"372", total(39), 37, 2},
		{"1203", total(15), 12, 3},
		{"372", nil, 37, 2},
		{"4510", total(46), 45, 10},
		{"99", total(5), 9, 9},
	}
	for _, tc := range cases {
		p, s := SplitCombinedChecks(tc.digits, tc.total)
		if p != tc.performed || s != tc.skipped {
			t.Errorf("SplitCombinedChecks(%q) = %d/%d, want %d/%d", tc.digits, p, s, tc.performed, tc.skipped)
		}
	}
}

func TestExtractMetricsEstimatesBreakdown(t *testing.T) {
	m := ExtractMetrics("50 Performed Checks\n0 Skipped Checks\nPage 1 of 3")
	if got := intValue(t, "strengths", m.Strengths); got != 20 {
		t.Errorf("strengths: got %d", got)
	}
	if got := intValue(t, "opportunities", m.AreasOfOpportunities); got != 19 {
		t.Errorf("opportunities: got %d", got)
	}
	if got := intValue(t, "actions", m.ActionsRequired); got != 11 {
		t.Errorf("actions: got %d", got)
	}
}

const breakdownReport = `20 Performed Checks
Page 1 of 4
Actions Required
Fix A: rotate the management token
Fix B: remove unused locales
Areas of Opportunities
Improve C: add field descriptions
Strengths
Good D: consistent naming
Good E: workflows in place
Good F: webhooks are healthy`

func TestExtractMetricsCountsBreakdownSections(t *testing.T) {
	m := ExtractMetrics(breakdownReport)
	if got := intValue(t, "actions", m.ActionsRequired); got != 2 {
		t.Errorf("actions: got %d", got)
	}
	if got := intValue(t, "opportunities", m.AreasOfOpportunities); got != 1 {
		t.Errorf("opportunities: got %d", got)
	}
	if got := intValue(t, "strengths", m.Strengths); got != 3 {
		t.Errorf("strengths: got %d", got)
	}
}

func TestExtractMetricsDiscardsImplausibleBreakdown(t *testing.T) {
	text := strings.Replace(breakdownReport, "20 Performed Checks", "2 Performed Checks", 1)
	m := ExtractMetrics(text)
	if got := intValue(t, "strengths", m.Strengths); got != 1 {
		t.Errorf("strengths: got %d", got)
	}
	if got := intValue(t, "opportunities", m.AreasOfOpportunities); got != 1 {
		t.Errorf("opportunities: got %d", got)
	}
	if got := intValue(t, "actions", m.ActionsRequired); got != 0 {
		t.Errorf("actions: got %d", got)
	}
}

func TestExtractMetricsCountsItemsNamedAfterSections(t *testing.T) {
	text := strings.Join([]string{
		"20 Performed Checks",
		"Page 1 of 4",
		"Actions Required",
		"Security: rotate the management token",
		"Assets: compress oversized images",
		"Webhooks: retry failed deliveries",
		"Content Types: merge duplicate page types",
		"Strengths",
		"Good D: consistent naming",
	}, "\n")

	m := ExtractMetrics(text)
	if got := intValue(t, "actions", m.ActionsRequired); got != 4 {
		t.Errorf("actions: got %d", got)
	}
	if got := intValue(t, "strengths", m.Strengths); got != 1 {
		t.Errorf("strengths: got %d", got)
	}
	if m.AreasOfOpportunities != nil {
		t.Errorf("opportunities: expected unset, got %d", *m.AreasOfOpportunities)
	}
}

func TestExtractMetricsIgnoresNumbersOnPreviousLine(t *testing.T) {
	m := ExtractMetrics("Stack: acme\nLast Run: 01/02/2024\nStrengths\nGood config: consistent naming")

	if m.LastRun != "01/02/2024" {
		t.Errorf("last run: got %q", m.LastRun)
	}
	if m.PerformedChecks != nil {
		t.Errorf("performed: expected unset, got %d", *m.PerformedChecks)
	}
	if got := intValue(t, "strengths", m.Strengths); got != 1 {
		t.Errorf("strengths: got %d", got)
	}

	m = ExtractMetrics("Generated 2024\n20 Performed Checks\nActions Required\nFix A: rotate the token")
	if got := intValue(t, "performed", m.PerformedChecks); got != 20 {
		t.Errorf("performed: got %d", got)
	}
	if got := intValue(t, "actions", m.ActionsRequired); got != 1 {
		t.Errorf("actions: got %d", got)
	}
}

func TestExtractMetricsLastRunNeedsWholeWord(t *testing.T) {
	m := ExtractMetrics("Last running job: nightly import\nLast Run: 2024-05-01")
	if m.LastRun != "2024-05-01" {
		t.Fatalf("last run: got %q", m.LastRun)
	}
}

func TestExtractMetricsEmpty(t *testing.T) {
	if m := ExtractMetrics("   "); !m.IsEmpty() {
		t.Fatalf("expected empty metrics, got %+v", m)
	}
}

func TestFirstPage(t *testing.T) {
	if got := FirstPage("intro\nPage 1 of 9\nmore"); got != "intro\nPage 1 of 9" {
		t.Fatalf("unexpected first page %q", got)
	}
	if got := FirstPage(strings.Repeat("a", 5000)); len(got) != firstPageFallback {
		t.Fatalf("expected %d bytes, got %d", firstPageFallback, len(got))
	}
}

func TestSelectMetrics(t *testing.T) {
	text := Metrics{Stack: "from-text"}

	if got, src := SelectMetrics(nil, text); got.Stack != "from-text" || src != MetricsFromText {
		t.Fatalf("nil document metrics should fall back to text, got %+v (%s)", got, src)
	}
	if got, src := SelectMetrics(&Metrics{}, text); got.Stack != "from-text" || src != MetricsFromText {
		t.Fatalf("empty document metrics should fall back to text, got %+v (%s)", got, src)
	}

	doc := &Metrics{Organization: "Acme"}
	got, src := SelectMetrics(doc, text)
	if src != MetricsFromDocument || got.Organization != "Acme" || got.Stack != "" {
		t.Fatalf("document metrics should win whole, got %+v (%s)", got, src)
	}
}
