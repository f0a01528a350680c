package chat

import (
	"fmt"
	"strings"

	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/report"
)

const metricsSystemPrompt = `You read the first page of a CMS stack health check report and return its headline figures.
Respond with a single JSON object and nothing else, using exactly these keys:
organization, stack, runBy, lastRun (strings),
totalChecks, performedChecks, skippedChecks, actionsRequired, areasOfOpportunities, strengths (integers).
Use null for anything the page does not state. Never guess a number.`

const answerSystemPrompt = `You are an assistant that answers questions about one CMS stack health check report.
Use only the supplied report excerpts. Cite every excerpt you rely on with its tag, e.g. [Chunk 3 · Actions Required].
If the excerpts do not contain the answer, say so plainly instead of guessing.
Answer in markdown, starting with the direct answer.`

const summarySystemPrompt = `You summarize CMS stack health check reports for the team that owns the stack.
Write markdown with these parts: a two-sentence overview, the most urgent actions required, notable areas of opportunity, and strengths worth keeping.
Use the metrics exactly as given and do not invent numbers.`

// chunkTag is the citation tag used in prompts and expected in answers.
func chunkTag(c ChunkResult) string {
	return fmt.Sprintf("[Chunk %d · %s]", c.ChunkIndex+1, c.Section)
}

func formatMetrics(m report.Metrics) string {
	var sb strings.Builder
	line := func(name, value string) {
		if value != "" {
			sb.WriteString("- " + name + ": " + value + "\n")
		}
	}
	count := func(v *int) string {
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%d", *v)
	}

	line("Organization", m.Organization)
	line("Stack", m.Stack)
	line("Run by", m.RunBy)
	line("Last run", m.LastRun)
	line("Total checks", count(m.TotalChecks))
	line("Performed checks", count(m.PerformedChecks))
	line("Skipped checks", count(m.SkippedChecks))
	line("Actions required", count(m.ActionsRequired))
	line("Areas of opportunities", count(m.AreasOfOpportunities))
	line("Strengths", count(m.Strengths))
	return sb.String()
}

func formatOutline(outline ReportOutline) string {
	if len(outline.RelatedReports) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Other reports for the same stack:\n")
	for _, rel := range outline.RelatedReports {
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", rel.Title, rel.FileName))
	}
	return sb.String()
}

func formatQuestionPrompt(rep *ingestion.Report, question string, chunks []ChunkResult, outline ReportOutline) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Report: %s (%s)\n", rep.Title, rep.FileName))
	if metrics := formatMetrics(rep.Metrics); metrics != "" {
		sb.WriteString("Metrics:\n")
		sb.WriteString(metrics)
	}
	sb.WriteString(formatOutline(outline))

	sb.WriteString("\nExcerpts:\n")
	if len(chunks) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, c := range chunks {
		sb.WriteString(chunkTag(c))
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(c.Content))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Question:\n")
	sb.WriteString(question)
	return sb.String()
}

// formatSummaryPrompt lists the metrics and a digest of each section, staying
// within budget bytes of excerpt text.
func formatSummaryPrompt(rep *ingestion.Report, outline ReportOutline, budget int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Report: %s (%s)\n", rep.Title, rep.FileName))
	sb.WriteString("Metrics:\n")
	if metrics := formatMetrics(rep.Metrics); metrics != "" {
		sb.WriteString(metrics)
	} else {
		sb.WriteString("- none extracted\n")
	}
	sb.WriteString(formatOutline(outline))

	sb.WriteString("\nSections:\n")
	used := 0
	for _, group := range groupBySection(rep.Chunks) {
		sb.WriteString(fmt.Sprintf("## %s (%d chunks)\n", group.label, len(group.chunks)))
		for _, c := range group.chunks {
			if used >= budget {
				break
			}
			excerpt := snippet(c.Content, min(summaryExcerptLength, budget-used))
			used += len(excerpt)
			sb.WriteString(excerpt)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

type sectionGroup struct {
	label  report.SectionLabel
	chunks []report.Chunk
}

// groupBySection groups chunks by section in order of first appearance.
func groupBySection(chunks []report.Chunk) []sectionGroup {
	index := make(map[report.SectionLabel]int)
	groups := make([]sectionGroup, 0)
	for _, c := range chunks {
		i, ok := index[c.Section]
		if !ok {
			i = len(groups)
			index[c.Section] = i
			groups = append(groups, sectionGroup{label: c.Section})
		}
		groups[i].chunks = append(groups[i].chunks, c)
	}
	return groups
}

// snippet trims s to at most n bytes on a rune boundary, marking the cut.
func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return strings.TrimSpace(s[:cut]) + "..."
}
