package chat

import (
	"github.com/fabfab/healthcheck-agent/report"
)

// ChunkResult is a retrieved chunk of one report.
type ChunkResult struct {
	ChunkID    string
	ReportID   string
	ChunkIndex int
	Section    report.SectionLabel
	Content    string
	StartChar  int
	EndChar    int
	Score      float64
}

// Citation points an answer back at the chunk it drew from.
type Citation struct {
	ChunkID    string              `json:"chunkId"`
	ChunkIndex int                 `json:"chunkIndex"`
	Section    report.SectionLabel `json:"section"`
	StartChar  int                 `json:"startChar"`
	EndChar    int                 `json:"endChar"`
	Snippet    string              `json:"snippet"`
	Score      float64             `json:"score"`
}

type Answer struct {
	ReportID  string     `json:"reportId"`
	ThreadID  string     `json:"threadId"`
	Answer    string     `json:"answer"`
	Retrieval string     `json:"retrieval"`
	Citations []Citation `json:"citations"`
}

type Summary struct {
	ReportID      string               `json:"reportId"`
	Summary       string               `json:"summary"`
	Metrics       report.Metrics       `json:"metrics"`
	MetricsSource report.MetricsSource `json:"metricsSource"`
}

type SectionInfo struct {
	Label      string `json:"label"`
	Order      int    `json:"order"`
	ChunkCount int    `json:"chunkCount"`
}

type RelatedReport struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}

// ReportOutline is the graph view of a report: its sections and the other
// reports that cover the same stack.
type ReportOutline struct {
	Sections       []SectionInfo   `json:"sections"`
	RelatedReports []RelatedReport `json:"relatedReports"`
}
