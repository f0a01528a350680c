package chat

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/report"
)

// TextSearcher finds chunks of one report by keyword relevance.
type TextSearcher interface {
	SearchChunks(ctx context.Context, reportID, query string, limit int) ([]ChunkResult, error)
}

type indexedChunk struct {
	Content    string `json:"content"`
	Section    string `json:"section"`
	ChunkIndex int    `json:"chunk_index"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
}

// MemoryIndex keeps one in-memory bleve index per report.
type MemoryIndex struct {
	mu      sync.RWMutex
	indexes map[string]bleve.Index
	logger  *log.Logger
}

func NewMemoryIndex(logger *log.Logger) *MemoryIndex {
	if logger == nil {
		logger = log.Default()
	}
	return &MemoryIndex{indexes: make(map[string]bleve.Index), logger: logger}
}

func (m *MemoryIndex) IndexReport(_ context.Context, rep *ingestion.Report) error {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("create text index: %w", err)
	}

	batch := index.NewBatch()
	for _, c := range rep.Chunks {
		if err := batch.Index(c.ID, indexedChunk{
			Content:    c.Content,
			Section:    string(c.Section),
			ChunkIndex: c.ChunkIndex,
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
		}); err != nil {
			index.Close()
			return fmt.Errorf("add chunk %s to batch: %w", c.ID, err)
		}
	}
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			index.Close()
			return fmt.Errorf("index chunks: %w", err)
		}
	}

	m.mu.Lock()
	previous := m.indexes[rep.ID]
	m.indexes[rep.ID] = index
	m.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return nil
}

func (m *MemoryIndex) SearchChunks(_ context.Context, reportID, query string, limit int) ([]ChunkResult, error) {
	m.mu.RLock()
	index, ok := m.indexes[reportID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSimilarityLimit
	}

	search := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	search.Size = limit
	search.Fields = []string{"*"}

	found, err := index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("search text index: %w", err)
	}

	results := make([]ChunkResult, 0, len(found.Hits))
	for _, hit := range found.Hits {
		item := ChunkResult{ChunkID: hit.ID, ReportID: reportID, Score: hit.Score}
		if content, ok := hit.Fields["content"].(string); ok {
			item.Content = content
		}
		if section, ok := hit.Fields["section"].(string); ok {
			item.Section = report.SectionLabel(section)
		}
		if idx, ok := hit.Fields["chunk_index"].(float64); ok {
			item.ChunkIndex = int(idx)
		}
		if start, ok := hit.Fields["start_char"].(float64); ok {
			item.StartChar = int(start)
		}
		if end, ok := hit.Fields["end_char"].(float64); ok {
			item.EndChar = int(end)
		}
		results = append(results, item)
	}
	return results, nil
}

// Forget drops the index of a report, typically when it leaves the session store.
func (m *MemoryIndex) Forget(reportID string) {
	m.mu.Lock()
	index, ok := m.indexes[reportID]
	delete(m.indexes, reportID)
	m.mu.Unlock()

	if ok {
		if err := index.Close(); err != nil {
			m.logger.Printf("close text index for %s: %v", reportID, err)
		}
	}
}

// Len returns the number of indexed reports.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.indexes)
}

var (
	_ TextSearcher      = (*MemoryIndex)(nil)
	_ ingestion.Indexer = (*MemoryIndex)(nil)
)
