// Package mcpserver exposes report parsing and metrics extraction as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/report"
)

const serverName = "healthcheck-agent"

type ParseReportInput struct {
	Path      string `json:"path" jsonschema:"Path to a health check report (pdf, docx, doc, txt or md)"`
	MaxChunks int    `json:"max_chunks,omitempty" jsonschema:"Maximum number of chunks to return (optional, defaults to all)"`
}

type ParseReportOutput struct {
	FileName      string               `json:"fileName"`
	Title         string               `json:"title"`
	Format        string               `json:"format"`
	Truncated     bool                 `json:"truncated"`
	ChunkCount    int                  `json:"chunkCount"`
	Chunks        []report.Chunk       `json:"chunks"`
	Metrics       report.Metrics       `json:"metrics"`
	MetricsSource report.MetricsSource `json:"metricsSource"`
}

type ExtractMetricsInput struct {
	Text string `json:"text" jsonschema:"Report text; the first page is used for document level metrics"`
}

type ExtractMetricsOutput struct {
	Metrics report.Metrics       `json:"metrics"`
	Source  report.MetricsSource `json:"source"`
}

// Server registers the report tools on an MCP server.
type Server struct {
	ingest  *ingestion.Service
	metrics ingestion.MetricsExtractor
	logger  *log.Logger
	server  *mcp.Server
}

// New builds the MCP server. metrics may be nil to rely on text extraction alone.
func New(ingest *ingestion.Service, metrics ingestion.MetricsExtractor, version string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	s := &Server{
		ingest:  ingest,
		metrics: metrics,
		logger:  logger,
		server:  mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil),
	}
	s.register()
	return s
}

// MCP returns the underlying server for custom transports.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Run serves over stdio until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Printf("%s mcp server ready on stdio", serverName)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) register() {
	mcp.AddTool(s.server,
		&mcp.Tool{
			Name:        "parse_report",
			Description: "Parse a health check report file into section-labelled chunks and extract its metrics.",
		},
		s.ParseReport,
	)

	mcp.AddTool(s.server,
		&mcp.Tool{
			Name:        "extract_metrics",
			Description: "Extract stack, organization, run details and check counts from report text.",
		},
		s.ExtractMetrics,
	)
}

func (s *Server) ParseReport(ctx context.Context, req *mcp.CallToolRequest, input ParseReportInput) (*mcp.CallToolResult, ParseReportOutput, error) {
	path := strings.TrimSpace(input.Path)
	if path == "" {
		return nil, ParseReportOutput{}, errors.New("path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ParseReportOutput{}, fmt.Errorf("read %s: %w", path, err)
	}

	rep, err := s.ingest.Parse(ctx, ingestion.Upload{Name: filepath.Base(path), Data: data})
	if err != nil {
		return nil, ParseReportOutput{}, fmt.Errorf("parse %s: %w", path, err)
	}

	chunks := rep.Chunks
	if input.MaxChunks > 0 && len(chunks) > input.MaxChunks {
		chunks = chunks[:input.MaxChunks]
	}

	s.logger.Printf("parsed %s (%d chunks)", rep.FileName, len(rep.Chunks))
	return nil, ParseReportOutput{
		FileName:      rep.FileName,
		Title:         rep.Title,
		Format:        string(rep.Format),
		Truncated:     rep.Truncated,
		ChunkCount:    len(rep.Chunks),
		Chunks:        chunks,
		Metrics:       rep.Metrics,
		MetricsSource: rep.MetricsSource,
	}, nil
}

func (s *Server) ExtractMetrics(ctx context.Context, req *mcp.CallToolRequest, input ExtractMetricsInput) (*mcp.CallToolResult, ExtractMetricsOutput, error) {
	text, err := report.RequireContent("text", input.Text)
	if err != nil {
		return nil, ExtractMetricsOutput{}, err
	}

	var document *report.Metrics
	if s.metrics != nil {
		document, err = s.metrics.ExtractMetrics(ctx, report.FirstPage(text))
		if err != nil {
			s.logger.Printf("document metrics failed, using text metrics: %v", err)
			document = nil
		}
	}

	metrics, source := report.SelectMetrics(document, report.ExtractMetrics(text))
	return nil, ExtractMetricsOutput{Metrics: metrics, Source: source}, nil
}
