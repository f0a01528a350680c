package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/llm"
	"github.com/fabfab/healthcheck-agent/report"
)

const metricsMaxTokens = 400

// MetricsExtractor asks the LLM to read the report's first page and return
// its headline metrics as JSON.
type MetricsExtractor struct {
	llm    llm.Client
	logger *log.Logger
}

func NewMetricsExtractor(client llm.Client, logger *log.Logger) *MetricsExtractor {
	if logger == nil {
		logger = log.Default()
	}
	return &MetricsExtractor{llm: client, logger: logger}
}

// ExtractMetrics returns nil when the model produced nothing usable.
func (e *MetricsExtractor) ExtractMetrics(ctx context.Context, firstPage string) (*report.Metrics, error) {
	if e.llm == nil {
		return nil, fmt.Errorf("llm client is not configured")
	}
	if strings.TrimSpace(firstPage) == "" {
		return nil, nil
	}

	raw, err := e.llm.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: metricsSystemPrompt},
			{Role: llm.RoleUser, Content: "First page of the report:\n\n" + firstPage},
		},
		MaxTokens: metricsMaxTokens,
		JSON:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("llm metrics extraction: %w", err)
	}

	metrics, err := parseMetricsJSON(raw)
	if err != nil {
		return nil, err
	}
	if metrics.IsEmpty() {
		e.logger.Printf("llm metrics extraction returned an empty object")
		return nil, nil
	}
	return &metrics, nil
}

var _ ingestion.MetricsExtractor = (*MetricsExtractor)(nil)

// parseMetricsJSON reads the first JSON object in raw. Counts may arrive as
// numbers or numeric strings.
func parseMetricsJSON(raw string) (report.Metrics, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return report.Metrics{}, fmt.Errorf("decode metrics: no JSON object in completion")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return report.Metrics{}, fmt.Errorf("decode metrics: %w", err)
	}

	return report.Metrics{
		Organization:         stringField(fields, "organization"),
		Stack:                stringField(fields, "stack"),
		RunBy:                stringField(fields, "runBy"),
		LastRun:              stringField(fields, "lastRun"),
		TotalChecks:          intField(fields, "totalChecks"),
		PerformedChecks:      intField(fields, "performedChecks"),
		SkippedChecks:        intField(fields, "skippedChecks"),
		ActionsRequired:      intField(fields, "actionsRequired"),
		AreasOfOpportunities: intField(fields, "areasOfOpportunities"),
		Strengths:            intField(fields, "strengths"),
	}, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
		return ""
	}
	return s
}

func intField(fields map[string]any, key string) *int {
	switch v := fields[key].(type) {
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return nil
		}
		n := int(v)
		return &n
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return nil
		}
		return &n
	default:
		return nil
	}
}
