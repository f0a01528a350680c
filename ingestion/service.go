package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/healthcheck-agent/report"
	"github.com/fabfab/healthcheck-agent/session"
)

const (
	DefaultMaxUploadBytes = 20 << 20
	DefaultMaxTextChars   = 500_000
)

var ErrTooLarge = errors.New("upload exceeds size limit")

// Upload is a raw document as received from a client.
type Upload struct {
	Name string
	Data []byte
}

// Report is a parsed health-check report held in the session store.
type Report struct {
	ID            string               `json:"id"`
	FileName      string               `json:"fileName"`
	Title         string               `json:"title"`
	Format        DocumentFormat       `json:"format"`
	Text          string               `json:"-"`
	Truncated     bool                 `json:"truncated,omitempty"`
	Chunks        []report.Chunk       `json:"chunks"`
	Metrics       report.Metrics       `json:"metrics"`
	MetricsSource report.MetricsSource `json:"metricsSource"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// MetricsExtractor produces document-level metrics from a report's first page.
// A nil result means the extractor had nothing to offer.
type MetricsExtractor interface {
	ExtractMetrics(ctx context.Context, firstPage string) (*report.Metrics, error)
}

// Indexer receives every stored report, for example a vector store or a
// knowledge graph.
type Indexer interface {
	IndexReport(ctx context.Context, rep *Report) error
}

type Options struct {
	MaxUploadBytes int64
	MaxTextChars   int
	Chunking       report.ChunkOptions
}

type Service struct {
	store    *session.Store[*Report]
	metrics  MetricsExtractor
	indexers []Indexer
	logger   *log.Logger
	opts     Options
}

// NewService wires the upload pipeline. store may be nil for one-shot parsing;
// metrics may be nil to rely on text extraction alone.
func NewService(store *session.Store[*Report], metrics MetricsExtractor, logger *log.Logger, opts Options, indexers ...Indexer) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = DefaultMaxTextChars
	}

	return &Service{
		store:    store,
		metrics:  metrics,
		indexers: indexers,
		logger:   logger,
		opts:     opts,
	}
}

// Parse extracts, normalizes, chunks and measures an upload without storing it.
func (s *Service) Parse(ctx context.Context, upload Upload) (*Report, error) {
	if int64(len(upload.Data)) > s.opts.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(upload.Data), s.opts.MaxUploadBytes)
	}

	format := DetectFormat(upload.Name, upload.Data)
	extractor, err := ExtractorFor(format)
	if err != nil {
		return nil, err
	}

	raw, err := extractor.Extract(ctx, upload.Data)
	if err != nil {
		return nil, fmt.Errorf("extract %s text: %w", format, err)
	}

	text, err := report.RequireContent(upload.Name, raw)
	if err != nil {
		return nil, err
	}
	text, truncated := truncateChars(text, s.opts.MaxTextChars)
	if truncated {
		s.logger.Printf("truncated %s to %d characters", upload.Name, s.opts.MaxTextChars)
	}

	chunks := report.ChunkText(text, s.opts.Chunking)
	metrics, source := report.SelectMetrics(s.documentMetrics(ctx, upload.Name, text), report.ExtractMetrics(text))

	return &Report{
		ID:            uuid.NewString(),
		FileName:      upload.Name,
		Title:         reportTitle(text, upload.Name),
		Format:        format,
		Text:          text,
		Truncated:     truncated,
		Chunks:        chunks,
		Metrics:       metrics,
		MetricsSource: source,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Process parses an upload, stores it in the session store and hands it to
// every indexer. Indexing failures are logged and do not fail the upload.
func (s *Service) Process(ctx context.Context, upload Upload) (*Report, error) {
	rep, err := s.Parse(ctx, upload)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		s.store.Put(rep.ID, rep)
	}

	for _, idx := range s.indexers {
		if err := idx.IndexReport(ctx, rep); err != nil {
			s.logger.Printf("index report %s: %v", rep.ID, err)
		}
	}

	s.logger.Printf("ingested %s as %s (%d chunks, metrics from %s)", rep.FileName, rep.ID, len(rep.Chunks), rep.MetricsSource)
	return rep, nil
}

// ProcessDirectory processes every supported file below dir. Files that fail
// are logged and skipped.
func (s *Service) ProcessDirectory(ctx context.Context, dir string) ([]*Report, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("report directory: %w", err)
	}

	paths := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if DetectFormat(d.Name(), nil) != FormatUnknown {
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk report directory: %w", err)
	}

	if len(paths) == 0 {
		s.logger.Printf("no supported reports found in %s", dir)
		return nil, nil
	}

	reports := make([]*Report, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep, err := s.ProcessFile(ctx, path)
		if err != nil {
			s.logger.Printf("ingest failed for %s: %v", path, err)
			continue
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// ProcessFile reads path from disk and processes it.
func (s *Service) ProcessFile(ctx context.Context, path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return s.Process(ctx, Upload{Name: filepath.Base(path), Data: data})
}

func (s *Service) documentMetrics(ctx context.Context, name, text string) *report.Metrics {
	if s.metrics == nil {
		return nil
	}
	metrics, err := s.metrics.ExtractMetrics(ctx, report.FirstPage(text))
	if err != nil {
		s.logger.Printf("document metrics for %s failed, using text extraction: %v", name, err)
		return nil
	}
	return metrics
}

// truncateChars cuts s to at most limit runes.
func truncateChars(s string, limit int) (string, bool) {
	if limit <= 0 {
		return s, false
	}
	count := 0
	for i := range s {
		if count == limit {
			return strings.TrimSpace(s[:i]), true
		}
		count++
	}
	return s, false
}

func reportTitle(text, fileName string) string {
	if title := firstNonEmptyLine(text); title != "" {
		if len(title) > 200 {
			title, _ = truncateChars(title, 200)
		}
		return title
	}
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}

func firstNonEmptyLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
