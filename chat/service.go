// Package chat answers questions about uploaded reports and summarizes them.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/healthcheck-agent/embeddings"
	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/llm"
	"github.com/fabfab/healthcheck-agent/report"
	"github.com/fabfab/healthcheck-agent/session"
	"github.com/fabfab/healthcheck-agent/threads"
)

const (
	defaultSimilarityLimit = 5
	maxSimilarityLimit     = 20
	historyWindow          = 10
	citationLength         = 300
	summaryExcerptLength   = 400
	summaryBudget          = 6000
)

// Retrieval strategies reported on each answer.
const (
	RetrievalVector  = "vector"
	RetrievalKeyword = "keyword"
	RetrievalLeading = "leading"
)

var ErrEmptyQuestion = errors.New("question cannot be empty")

// Deps are the collaborators of a Service. Reports and LLM are required;
// everything else is optional and narrows the retrieval fallbacks.
type Deps struct {
	Reports   *session.Store[*ingestion.Report]
	LLM       llm.Client
	Vectors   VectorStore
	Embedder  embeddings.Embedder
	Text      TextSearcher
	Graph     GraphStore
	Threads   threads.Store
	MaxTokens int
}

type Service struct {
	deps   Deps
	logger *log.Logger
}

type AskOptions struct {
	Limit    int
	ThreadID string
}

func NewService(deps Deps, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{deps: deps, logger: logger}
}

// Report returns a stored report or an error wrapping session.ErrNotFound.
func (s *Service) Report(reportID string) (*ingestion.Report, error) {
	if s.deps.Reports == nil {
		return nil, fmt.Errorf("report store is not configured")
	}
	rep, ok := s.deps.Reports.Get(reportID)
	if !ok {
		return nil, fmt.Errorf("report %s: %w", reportID, session.ErrNotFound)
	}
	return rep, nil
}

func (s *Service) Ask(ctx context.Context, reportID, question string, opts AskOptions) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	rep, err := s.Report(reportID)
	if err != nil {
		return Answer{}, err
	}
	if s.deps.LLM == nil {
		return Answer{}, fmt.Errorf("llm client is not configured")
	}

	threadID := threads.NewThreadID()
	if opts.ThreadID != "" {
		if threadID, err = threads.ParseThreadID(opts.ThreadID); err != nil {
			return Answer{}, err
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSimilarityLimit
	}
	limit = min(limit, maxSimilarityLimit)

	chunks, retrieval := s.retrieve(ctx, rep, question, limit)
	if len(chunks) == 0 {
		s.logger.Printf("no context available for question on report %s", rep.ID)
	}

	messages := make([]llm.Message, 0, historyWindow+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: answerSystemPrompt})
	messages = append(messages, s.history(ctx, threadID)...)
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: formatQuestionPrompt(rep, question, chunks, s.outline(ctx, rep.ID)),
	})

	answer, err := s.deps.LLM.Generate(ctx, llm.Request{Messages: messages, MaxTokens: s.deps.MaxTokens})
	if err != nil {
		return Answer{}, fmt.Errorf("llm generate: %w", err)
	}

	if s.deps.Threads != nil {
		if err := s.deps.Threads.Append(ctx, threadID,
			threads.Message{ReportID: rep.ID, Role: threads.RoleUser, Content: question},
			threads.Message{ReportID: rep.ID, Role: threads.RoleAssistant, Content: answer},
		); err != nil {
			s.logger.Printf("record thread %s: %v", threadID, err)
		}
	}

	return Answer{
		ReportID:  rep.ID,
		ThreadID:  threadID,
		Answer:    answer,
		Retrieval: retrieval,
		Citations: citations(chunks),
	}, nil
}

func (s *Service) Summarize(ctx context.Context, reportID string) (Summary, error) {
	rep, err := s.Report(reportID)
	if err != nil {
		return Summary{}, err
	}
	if s.deps.LLM == nil {
		return Summary{}, fmt.Errorf("llm client is not configured")
	}

	text, err := s.deps.LLM.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: summarySystemPrompt},
			{Role: llm.RoleUser, Content: formatSummaryPrompt(rep, s.outline(ctx, rep.ID), summaryBudget)},
		},
		MaxTokens: s.deps.MaxTokens,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("llm generate: %w", err)
	}

	return Summary{
		ReportID:      rep.ID,
		Summary:       text,
		Metrics:       rep.Metrics,
		MetricsSource: rep.MetricsSource,
	}, nil
}

// retrieve prefers vector similarity, then keyword search, then the leading
// chunks of the report. Chunks from a section the question names come first.
func (s *Service) retrieve(ctx context.Context, rep *ingestion.Report, question string, limit int) ([]ChunkResult, string) {
	if s.deps.Vectors != nil && s.deps.Embedder != nil {
		results, err := s.vectorSearch(ctx, rep.ID, question, limit)
		if err != nil {
			s.logger.Printf("vector search for report %s: %v", rep.ID, err)
		} else if len(results) > 0 {
			return boostSection(rep, question, results, limit), RetrievalVector
		}
	}

	if s.deps.Text != nil {
		results, err := s.deps.Text.SearchChunks(ctx, rep.ID, question, limit)
		if err != nil {
			s.logger.Printf("keyword search for report %s: %v", rep.ID, err)
		} else if len(results) > 0 {
			return boostSection(rep, question, results, limit), RetrievalKeyword
		}
	}

	leading := make([]ChunkResult, 0, limit)
	for _, c := range rep.Chunks {
		if len(leading) == limit {
			break
		}
		leading = append(leading, toChunkResult(rep.ID, c))
	}
	return boostSection(rep, question, leading, limit), RetrievalLeading
}

func (s *Service) vectorSearch(ctx context.Context, reportID, question string, limit int) ([]ChunkResult, error) {
	vec, err := embeddings.EmbedOne(ctx, s.deps.Embedder, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	return s.deps.Vectors.SimilarChunks(ctx, reportID, vec, limit)
}

// boostSection puts chunks of the section named by the question ahead of the
// retrieved results.
func boostSection(rep *ingestion.Report, question string, results []ChunkResult, limit int) []ChunkResult {
	label := report.ClassifySection(question)
	if label == report.SectionGeneral {
		return results
	}

	out := make([]ChunkResult, 0, limit)
	seen := make(map[string]bool, limit)
	for _, c := range rep.Chunks {
		if len(out) == limit {
			break
		}
		if c.Section.Base() == label {
			out = append(out, toChunkResult(rep.ID, c))
			seen[c.ID] = true
		}
	}
	for _, r := range results {
		if len(out) == limit {
			break
		}
		if !seen[r.ChunkID] {
			out = append(out, r)
			seen[r.ChunkID] = true
		}
	}
	return out
}

func (s *Service) history(ctx context.Context, threadID string) []llm.Message {
	if s.deps.Threads == nil {
		return nil
	}
	msgs, err := s.deps.Threads.List(ctx, threadID)
	if err != nil {
		s.logger.Printf("load thread %s: %v", threadID, err)
		return nil
	}
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func (s *Service) outline(ctx context.Context, reportID string) ReportOutline {
	if s.deps.Graph == nil {
		return ReportOutline{}
	}
	outline, err := s.deps.Graph.ReportOutline(ctx, reportID)
	if err != nil {
		s.logger.Printf("graph outline error: %v", err)
		return ReportOutline{}
	}
	return outline
}

func toChunkResult(reportID string, c report.Chunk) ChunkResult {
	return ChunkResult{
		ChunkID:    c.ID,
		ReportID:   reportID,
		ChunkIndex: c.ChunkIndex,
		Section:    c.Section,
		Content:    c.Content,
		StartChar:  c.StartChar,
		EndChar:    c.EndChar,
	}
}

func citations(chunks []ChunkResult) []Citation {
	out := make([]Citation, len(chunks))
	for i, c := range chunks {
		out[i] = Citation{
			ChunkID:    c.ChunkID,
			ChunkIndex: c.ChunkIndex,
			Section:    c.Section,
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
			Snippet:    snippet(c.Content, citationLength),
			Score:      c.Score,
		}
	}
	return out
}
