package mcpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/mcpserver"
	"github.com/fabfab/healthcheck-agent/report"
)

const sampleReport = "Stack Overview\nStack: acme\nOrganization: Acme Corp\nPage 1 of 5\n\nActions Required\nFix A: description text that is long enough.\n\nStrengths\nGood config: description text that is long enough."

var testImpl = &mcp.Implementation{Name: "healthcheck-test", Version: "0.1.0"}

type stubMetrics struct {
	metrics *report.Metrics
	err     error
}

func (s stubMetrics) ExtractMetrics(ctx context.Context, firstPage string) (*report.Metrics, error) {
	return s.metrics, s.err
}

func newSession(t *testing.T, metrics ingestion.MetricsExtractor) *mcp.ClientSession {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	ingest := ingestion.NewService(nil, nil, logger, ingestion.Options{})
	srv := mcpserver.New(ingest, metrics, "test", logger)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.MCP().Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any, dst any) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) returned a tool error: %+v", name, result.Content)
	}
	raw, err := json.Marshal(result.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func TestListTools(t *testing.T) {
	session := newSession(t, nil)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"parse_report", "extract_metrics"} {
		if !names[want] {
			t.Fatalf("tool %s not registered (have %v)", want, names)
		}
	}
}

func TestParseReportTool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme.txt")
	if err := os.WriteFile(path, []byte(sampleReport), 0o600); err != nil {
		t.Fatalf("write sample: %v", err)
	}

	session := newSession(t, nil)
	var out mcpserver.ParseReportOutput
	callTool(t, session, "parse_report", map[string]any{"path": path, "max_chunks": 2}, &out)

	if out.FileName != "acme.txt" || out.Format != "text" {
		t.Fatalf("unexpected header: %+v", out)
	}
	if out.ChunkCount != 3 || len(out.Chunks) != 2 {
		t.Fatalf("expected 3 chunks with 2 returned, got %d/%d", out.ChunkCount, len(out.Chunks))
	}
	if out.Metrics.Stack != "acme" || out.MetricsSource != report.MetricsFromText {
		t.Fatalf("unexpected metrics: %+v (%s)", out.Metrics, out.MetricsSource)
	}
}

func TestParseReportToolMissingFile(t *testing.T) {
	session := newSession(t, nil)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "parse_report",
		Arguments: map[string]any{"path": filepath.Join(t.TempDir(), "missing.pdf")},
	})
	if err == nil && !result.IsError {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestExtractMetricsTool(t *testing.T) {
	session := newSession(t, nil)

	var out mcpserver.ExtractMetricsOutput
	callTool(t, session, "extract_metrics", map[string]any{"text": sampleReport}, &out)
	if out.Source != report.MetricsFromText || out.Metrics.Organization != "Acme Corp" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestExtractMetricsToolPrefersDocumentMetrics(t *testing.T) {
	performed := 42
	session := newSession(t, stubMetrics{metrics: &report.Metrics{Stack: "from-llm", PerformedChecks: &performed}})

	var out mcpserver.ExtractMetricsOutput
	callTool(t, session, "extract_metrics", map[string]any{"text": sampleReport}, &out)
	if out.Source != report.MetricsFromDocument || out.Metrics.Stack != "from-llm" {
		t.Fatalf("expected document metrics, got %+v", out)
	}
	if out.Metrics.Organization != "" {
		t.Fatalf("metrics must not be merged across sources: %+v", out.Metrics)
	}

	fallback := newSession(t, stubMetrics{err: errors.New("model offline")})
	callTool(t, fallback, "extract_metrics", map[string]any{"text": sampleReport}, &out)
	if out.Source != report.MetricsFromText {
		t.Fatalf("expected text fallback, got %s", out.Source)
	}
}
