package ingestion_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/report"
	"github.com/fabfab/healthcheck-agent/session"
)

const sampleReport = "Stack Overview\nStack: acme\nPage 1 of 5\n\nActions Required\nFix A: description text that is long enough.\n\nStrengths\nGood config: description text that is long enough."

type stubMetrics struct {
	metrics *report.Metrics
	err     error
	pages   []string
}

func (s *stubMetrics) ExtractMetrics(_ context.Context, firstPage string) (*report.Metrics, error) {
	s.pages = append(s.pages, firstPage)
	return s.metrics, s.err
}

var _ ingestion.MetricsExtractor = (*stubMetrics)(nil)

type stubIndexer struct {
	err     error
	indexed []string
}

func (s *stubIndexer) IndexReport(_ context.Context, rep *ingestion.Report) error {
	s.indexed = append(s.indexed, rep.ID)
	return s.err
}

var _ ingestion.Indexer = (*stubIndexer)(nil)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want ingestion.DocumentFormat
	}{
		{name: "report.PDF", want: ingestion.FormatPDF},
		{name: "report.docx", want: ingestion.FormatDOCX},
		{name: "report.doc", want: ingestion.FormatDOC},
		{name: "notes.txt", want: ingestion.FormatText},
		{name: "notes.md", want: ingestion.FormatMarkdown},
		{name: "upload", data: []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), want: ingestion.FormatPDF},
		{name: "upload", data: []byte("Stack Overview\nStack: acme\n"), want: ingestion.FormatText},
		{name: "upload.bin", want: ingestion.FormatUnknown},
	}

	for _, tc := range cases {
		if got := ingestion.DetectFormat(tc.name, tc.data); got != tc.want {
			t.Errorf("DetectFormat(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExtractorForUnknownFormat(t *testing.T) {
	if _, err := ingestion.ExtractorFor(ingestion.FormatUnknown); !errors.Is(err, ingestion.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestDocxExtraction(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t>Actions Required</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t xml:space="preserve">Fix A: </w:t></w:r><w:r><w:t>rotate tokens</w:t></w:r></w:p>`+
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Content Type Title</w:t></w:r></w:p></w:tc>`+
			`<w:tc><w:p><w:r><w:t>Created On</w:t></w:r></w:p></w:tc></w:tr>`+
			`<w:tr><w:tc><w:p><w:r><w:t>Blog</w:t></w:r></w:p></w:tc>`+
			`<w:tc><w:p><w:r><w:t>2024-01-01</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`)

	extractor, err := ingestion.ExtractorFor(ingestion.FormatDOCX)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	text, err := extractor.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	want := "Actions Required\nFix A: rotate tokens\nContent Type Title | Created On\nBlog | 2024-01-01\n"
	if text != want {
		t.Fatalf("unexpected docx text:\n%q\nwant\n%q", text, want)
	}
}

func TestDocxMissingBody(t *testing.T) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	if _, err := zw.Create("other.xml"); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	extractor, _ := ingestion.ExtractorFor(ingestion.FormatDOCX)
	if _, err := extractor.Extract(context.Background(), buf.Bytes()); err == nil {
		t.Fatal("expected error for archive without document.xml")
	}
}

func TestLegacyDocExtraction(t *testing.T) {
	data := []byte{0xD0, 0xCF, 0x11, 0xE0}
	for _, r := range "Health Check Report" {
		data = append(data, byte(r), 0x00)
	}
	data = append(data, 0x00, 0x00, 0x01, 0x02)

	extractor, _ := ingestion.ExtractorFor(ingestion.FormatDOC)
	text, err := extractor.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(text, "Health Check Report") {
		t.Fatalf("expected recovered text, got %q", text)
	}
}

func TestPlainTextDecoding(t *testing.T) {
	extractor, _ := ingestion.ExtractorFor(ingestion.FormatText)

	text, err := extractor.Extract(context.Background(), []byte("\xef\xbb\xbfStack: acme"))
	if err != nil {
		t.Fatalf("extract utf-8: %v", err)
	}
	if text != "Stack: acme" {
		t.Fatalf("expected BOM to be stripped, got %q", text)
	}

	text, err = extractor.Extract(context.Background(), []byte("Organization: Caf\xe9"))
	if err != nil {
		t.Fatalf("extract latin-1: %v", err)
	}
	if text != "Organization: Café" {
		t.Fatalf("expected transcoded text, got %q", text)
	}
}

func TestParseTextReport(t *testing.T) {
	svc := ingestion.NewService(nil, nil, nil, ingestion.Options{})

	rep, err := svc.Parse(context.Background(), ingestion.Upload{Name: "acme.txt", Data: []byte(sampleReport)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rep.ID == "" {
		t.Fatal("expected report id")
	}
	if rep.Format != ingestion.FormatText {
		t.Fatalf("expected text format, got %q", rep.Format)
	}
	if rep.Title != "Stack Overview" {
		t.Fatalf("unexpected title %q", rep.Title)
	}
	if len(rep.Chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(rep.Chunks))
	}
	if rep.Metrics.Stack != "acme" {
		t.Fatalf("expected stack acme, got %q", rep.Metrics.Stack)
	}
	if rep.MetricsSource != report.MetricsFromText {
		t.Fatalf("expected text metrics, got %q", rep.MetricsSource)
	}
}

func TestParseRejectsEmptyAndOversized(t *testing.T) {
	svc := ingestion.NewService(nil, nil, nil, ingestion.Options{MaxUploadBytes: 16})

	_, err := svc.Parse(context.Background(), ingestion.Upload{Name: "blank.txt", Data: []byte(" \n\t\n ")})
	if !errors.Is(err, report.ErrEmptyContent) {
		t.Fatalf("expected empty content error, got %v", err)
	}

	_, err = svc.Parse(context.Background(), ingestion.Upload{Name: "big.txt", Data: []byte(sampleReport)})
	if !errors.Is(err, ingestion.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	_, err = svc.Parse(context.Background(), ingestion.Upload{Name: "image.png", Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")})
	if !errors.Is(err, ingestion.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseTruncatesLongText(t *testing.T) {
	svc := ingestion.NewService(nil, nil, nil, ingestion.Options{MaxTextChars: 40})

	rep, err := svc.Parse(context.Background(), ingestion.Upload{Name: "acme.txt", Data: []byte(sampleReport)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !rep.Truncated {
		t.Fatal("expected report to be flagged as truncated")
	}
	if len([]rune(rep.Text)) > 40 {
		t.Fatalf("expected at most 40 characters, got %d", len([]rune(rep.Text)))
	}
}

func TestProcessPrefersDocumentMetrics(t *testing.T) {
	store, err := session.New[*ingestion.Report](4)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	extractor := &stubMetrics{metrics: &report.Metrics{Organization: "Doc Org"}}
	failing := &stubIndexer{err: errors.New("index offline")}
	svc := ingestion.NewService(store, extractor, nil, ingestion.Options{}, failing)

	rep, err := svc.Process(context.Background(), ingestion.Upload{Name: "acme.txt", Data: []byte(sampleReport)})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rep.MetricsSource != report.MetricsFromDocument || rep.Metrics.Organization != "Doc Org" {
		t.Fatalf("expected document metrics, got %+v from %s", rep.Metrics, rep.MetricsSource)
	}
	if rep.Metrics.Stack != "" {
		t.Fatal("expected whole-object selection, not a field merge")
	}
	if len(extractor.pages) != 1 || !strings.HasSuffix(extractor.pages[0], "Page 1 of 5") {
		t.Fatalf("expected first page to be sent, got %q", extractor.pages)
	}
	if len(failing.indexed) != 1 {
		t.Fatalf("expected indexer call despite failure, got %d", len(failing.indexed))
	}
	if stored, ok := store.Get(rep.ID); !ok || stored != rep {
		t.Fatal("expected report to be stored in session store")
	}
}

func TestProcessFallsBackWhenDocumentMetricsFail(t *testing.T) {
	for name, extractor := range map[string]*stubMetrics{
		"error": {err: errors.New("model unavailable")},
		"empty": {metrics: &report.Metrics{}},
		"nil":   {},
	} {
		svc := ingestion.NewService(nil, extractor, nil, ingestion.Options{})
		rep, err := svc.Process(context.Background(), ingestion.Upload{Name: "acme.txt", Data: []byte(sampleReport)})
		if err != nil {
			t.Fatalf("%s: process: %v", name, err)
		}
		if rep.MetricsSource != report.MetricsFromText || rep.Metrics.Stack != "acme" {
			t.Fatalf("%s: expected text metrics fallback, got %+v from %s", name, rep.Metrics, rep.MetricsSource)
		}
	}
}

func TestProcessDirectorySkipsFailures(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"good.txt":   sampleReport,
		"empty.txt":  "   ",
		"ignored.js": "console.log('x')",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	svc := ingestion.NewService(nil, nil, nil, ingestion.Options{})
	reports, err := svc.ProcessDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("process directory: %v", err)
	}
	if len(reports) != 1 || reports[0].FileName != "good.txt" {
		t.Fatalf("expected only good.txt, got %d reports", len(reports))
	}

	if _, err := svc.ProcessDirectory(context.Background(), filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
