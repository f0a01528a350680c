// Package api exposes the report workflows over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/fabfab/healthcheck-agent/chat"
	"github.com/fabfab/healthcheck-agent/config"
	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/llm"
	"github.com/fabfab/healthcheck-agent/report"
	"github.com/fabfab/healthcheck-agent/session"
	"github.com/fabfab/healthcheck-agent/threads"
)

const (
	uploadField     = "file"
	multipartMemory = 8 << 20
	// multipartSlack covers multipart framing around the file itself.
	multipartSlack = 1 << 20
)

// Services are the workflows the server dispatches to.
type Services struct {
	Ingestion *ingestion.Service
	Chat      *chat.Service
	Reports   *session.Store[*ingestion.Report]
	Threads   threads.Store
	// Purge removes a deleted report from persistent indexes. Optional.
	Purge func(ctx context.Context, reportID string) error
}

// Server exposes HTTP handlers for the report workflows.
type Server struct {
	cfg     config.Config
	svc     Services
	logger  *log.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type chatRequest struct {
	Question string `json:"question"`
	Limit    int    `json:"limit"`
	ThreadID string `json:"threadId"`
}

type sectionCount struct {
	Section report.SectionLabel `json:"section"`
	Chunks  int                 `json:"chunks"`
}

type reportResponse struct {
	ID            string               `json:"id"`
	FileName      string               `json:"fileName"`
	Title         string               `json:"title"`
	Format        string               `json:"format"`
	Truncated     bool                 `json:"truncated,omitempty"`
	TextLength    int                  `json:"textLength"`
	ChunkCount    int                  `json:"chunkCount"`
	Sections      []sectionCount       `json:"sections"`
	Metrics       report.Metrics       `json:"metrics"`
	MetricsSource report.MetricsSource `json:"metricsSource"`
	CreatedAt     time.Time            `json:"createdAt"`
}

type chunksResponse struct {
	ReportID string         `json:"reportId"`
	Chunks   []report.Chunk `json:"chunks"`
}

type threadResponse struct {
	ThreadID string            `json:"threadId"`
	Messages []threads.Message `json:"messages"`
}

// New constructs a Server that serves the HTTP API using the provided services.
func New(cfg config.Config, svc Services, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{cfg: cfg, svc: svc, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /openapi.yaml", s.handleOpenAPI)
	mux.HandleFunc("GET /v1/reports", s.handleListReports)
	mux.HandleFunc("POST /v1/reports", s.handleUpload)
	mux.HandleFunc("GET /v1/reports/{id}", s.handleGetReport)
	mux.HandleFunc("DELETE /v1/reports/{id}", s.handleDeleteReport)
	mux.HandleFunc("GET /v1/reports/{id}/chunks", s.handleChunks)
	mux.HandleFunc("POST /v1/reports/{id}/summary", s.handleSummary)
	mux.HandleFunc("POST /v1/reports/{id}/chat", s.handleChat)
	mux.HandleFunc("GET /v1/threads/{id}", s.handleThread)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=\"openapi.yaml\"")
	_, _ = w.Write(openAPISpecYAML)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.UploadMaxBytes
	if limit <= 0 {
		limit = ingestion.DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeError(w, uploadStatus(err), fmt.Errorf("parse upload: %w", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("multipart field %q is required: %w", uploadField, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		s.writeError(w, uploadStatus(err), fmt.Errorf("read upload: %w", err))
		return
	}

	rep, err := s.svc.Ingestion.Process(r.Context(), ingestion.Upload{Name: header.Filename, Data: data})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toReportResponse(rep))
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	ids := s.svc.Reports.IDs()
	out := make([]reportResponse, 0, len(ids))
	for _, id := range ids {
		if rep, ok := s.svc.Reports.Get(id); ok {
			out = append(out, toReportResponse(rep))
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Chat.Report(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, toReportResponse(rep))
}

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Chat.Report(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	chunks := rep.Chunks
	if section := strings.TrimSpace(r.URL.Query().Get("section")); section != "" {
		if !knownSection(section) {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown section %q", section))
			return
		}
		chunks = filterChunks(chunks, section)
	}
	if chunks == nil {
		chunks = []report.Chunk{}
	}
	s.writeJSON(w, http.StatusOK, chunksResponse{ReportID: rep.ID, Chunks: chunks})
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.svc.Reports.Delete(id) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("report %s: %w", id, session.ErrNotFound))
		return
	}

	if s.svc.Purge != nil {
		if err := s.svc.Purge(r.Context(), id); err != nil {
			s.logger.Printf("purge report %s: %v", id, err)
		}
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "report deleted"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Chat.Summarize(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("summary failed: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	answer, err := s.svc.Chat.Ask(r.Context(), r.PathValue("id"), req.Question, chat.AskOptions{
		Limit:    req.Limit,
		ThreadID: strings.TrimSpace(req.ThreadID),
	})
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("chat failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	if s.svc.Threads == nil {
		s.writeError(w, http.StatusNotFound, errors.New("threads are not enabled"))
		return
	}

	msgs, err := s.svc.Threads.List(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if len(msgs) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("thread %s not found", r.PathValue("id")))
		return
	}
	s.writeJSON(w, http.StatusOK, threadResponse{ThreadID: msgs[0].ThreadID, Messages: msgs})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var providerErr *llm.ProviderError
	switch {
	case errors.Is(err, report.ErrEmptyContent),
		errors.Is(err, ingestion.ErrUnsupportedFormat),
		errors.Is(err, chat.ErrEmptyQuestion),
		errors.Is(err, threads.ErrInvalidThreadID):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &providerErr), errors.Is(err, llm.ErrEmptyCompletion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func uploadStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func knownSection(section string) bool {
	for _, l := range report.Labels() {
		if strings.EqualFold(string(l), section) || strings.EqualFold(string(l.TableData()), section) {
			return true
		}
	}
	return false
}

func filterChunks(chunks []report.Chunk, section string) []report.Chunk {
	filtered := make([]report.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.EqualFold(string(c.Section), section) || strings.EqualFold(string(c.Section.Base()), section) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func toReportResponse(rep *ingestion.Report) reportResponse {
	counts := make([]sectionCount, 0)
	index := make(map[report.SectionLabel]int)
	for _, c := range rep.Chunks {
		i, ok := index[c.Section]
		if !ok {
			i = len(counts)
			index[c.Section] = i
			counts = append(counts, sectionCount{Section: c.Section})
		}
		counts[i].Chunks++
	}

	return reportResponse{
		ID:            rep.ID,
		FileName:      rep.FileName,
		Title:         rep.Title,
		Format:        string(rep.Format),
		Truncated:     rep.Truncated,
		TextLength:    len(rep.Text),
		ChunkCount:    len(rep.Chunks),
		Sections:      counts,
		Metrics:       rep.Metrics,
		MetricsSource: rep.MetricsSource,
		CreatedAt:     rep.CreatedAt,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
