// Package knowledge mirrors parsed reports into a Neo4j graph:
// Report -> Section -> Chunk, with Stack and Organization nodes linking
// reports that describe the same stack.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/report"
)

type Report struct {
	ID            string
	FileName      string
	Title         string
	Format        string
	Metrics       report.Metrics
	MetricsSource string
	Sections      []Section
	Chunks        []Chunk
}

type Section struct {
	ID         string
	Label      string
	Order      int
	ChunkCount int
}

type Chunk struct {
	ID        string
	Index     int
	Text      string
	SectionID string
	StartChar int
	EndChar   int
}

// FromReport builds the graph view of a parsed report. Sections appear in
// order of their first chunk.
func FromReport(rep *ingestion.Report) Report {
	doc := Report{
		ID:            rep.ID,
		FileName:      rep.FileName,
		Title:         rep.Title,
		Format:        string(rep.Format),
		Metrics:       rep.Metrics,
		MetricsSource: string(rep.MetricsSource),
		Chunks:        make([]Chunk, 0, len(rep.Chunks)),
	}

	sectionIdx := make(map[report.SectionLabel]int)
	for _, c := range rep.Chunks {
		idx, ok := sectionIdx[c.Section]
		if !ok {
			idx = len(doc.Sections)
			sectionIdx[c.Section] = idx
			doc.Sections = append(doc.Sections, Section{
				ID:    SectionID(rep.ID, c.Section),
				Label: string(c.Section),
				Order: idx,
			})
		}
		doc.Sections[idx].ChunkCount++
		doc.Chunks = append(doc.Chunks, Chunk{
			ID:        c.ID,
			Index:     c.ChunkIndex,
			Text:      c.Content,
			SectionID: doc.Sections[idx].ID,
			StartChar: c.StartChar,
			EndChar:   c.EndChar,
		})
	}
	return doc
}

// SectionID scopes a section label to one report.
func SectionID(reportID string, label report.SectionLabel) string {
	return reportID + "/" + string(label)
}

func metricsParams(m report.Metrics) map[string]any {
	return map[string]any{
		"organization":         nullable(m.Organization),
		"stack":                nullable(m.Stack),
		"runBy":                nullable(m.RunBy),
		"lastRun":              nullable(m.LastRun),
		"totalChecks":          nullableInt(m.TotalChecks),
		"performedChecks":      nullableInt(m.PerformedChecks),
		"skippedChecks":        nullableInt(m.SkippedChecks),
		"actionsRequired":      nullableInt(m.ActionsRequired),
		"areasOfOpportunities": nullableInt(m.AreasOfOpportunities),
		"strengths":            nullableInt(m.Strengths),
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func SyncReport(ctx context.Context, driver neo4j.DriverWithContext, doc Report) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"id":             doc.ID,
		"file_name":      doc.FileName,
		"title":          doc.Title,
		"format":         doc.Format,
		"metrics_source": doc.MetricsSource,
		"metrics":        metricsParams(doc.Metrics),
		"stack":          doc.Metrics.Stack,
		"organization":   doc.Metrics.Organization,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (r:Report {id: $id})
			SET r.file_name = $file_name,
			    r.title = $title,
			    r.format = $format,
			    r.metrics_source = $metrics_source,
			    r += $metrics,
			    r.updated_at = datetime()
		`, params); err != nil {
			return nil, fmt.Errorf("upsert report node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (r:Report {id: $id})-[rel:FOR_STACK]->(:Stack)
			DELETE rel
		`, params); err != nil {
			return nil, fmt.Errorf("remove stale stack relation: %w", err)
		}
		if doc.Metrics.Stack != "" {
			if _, err := tx.Run(ctx, `
				MATCH (r:Report {id: $id})
				MERGE (s:Stack {name: $stack})
				MERGE (r)-[:FOR_STACK]->(s)
			`, params); err != nil {
				return nil, fmt.Errorf("upsert stack relation: %w", err)
			}
			if doc.Metrics.Organization != "" {
				if _, err := tx.Run(ctx, `
					MATCH (s:Stack {name: $stack})
					MERGE (o:Organization {name: $organization})
					MERGE (s)-[:OWNED_BY]->(o)
				`, params); err != nil {
					return nil, fmt.Errorf("upsert organization relation: %w", err)
				}
			}
		}

		if _, err := tx.Run(ctx, `
			MATCH (r:Report {id: $id})-[:HAS_SECTION]->(s:Section)
			DETACH DELETE s
		`, map[string]any{"id": doc.ID}); err != nil {
			return nil, fmt.Errorf("clear existing sections: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (r:Report {id: $id})-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE c
		`, map[string]any{"id": doc.ID}); err != nil {
			return nil, fmt.Errorf("clear existing chunk nodes: %w", err)
		}

		for _, section := range doc.Sections {
			if _, err := tx.Run(ctx, `
				MATCH (r:Report {id: $report_id})
				MERGE (s:Section {id: $section_id})
				SET s.label = $section_label,
				    s.order = $section_order,
				    s.chunk_count = $chunk_count
				MERGE (r)-[:HAS_SECTION {order: $section_order}]->(s)
			`, map[string]any{
				"report_id":     doc.ID,
				"section_id":    section.ID,
				"section_label": section.Label,
				"section_order": section.Order,
				"chunk_count":   section.ChunkCount,
			}); err != nil {
				return nil, fmt.Errorf("upsert section: %w", err)
			}
		}

		for _, chunk := range doc.Chunks {
			if _, err := tx.Run(ctx, `
				MATCH (r:Report {id: $report_id}), (s:Section {id: $section_id})
				MERGE (c:Chunk {id: $chunk_id})
				SET c.index = $chunk_index,
				    c.text = $chunk_text,
				    c.start_char = $start_char,
				    c.end_char = $end_char
				MERGE (r)-[:HAS_CHUNK {order: $chunk_index}]->(c)
				MERGE (s)-[:HAS_CHUNK {order: $chunk_index}]->(c)
			`, map[string]any{
				"report_id":   doc.ID,
				"section_id":  chunk.SectionID,
				"chunk_id":    chunk.ID,
				"chunk_index": chunk.Index,
				"chunk_text":  chunk.Text,
				"start_char":  chunk.StartChar,
				"end_char":    chunk.EndChar,
			}); err != nil {
				return nil, fmt.Errorf("upsert chunk node: %w", err)
			}
		}

		return nil, nil
	})

	if err == nil {
		err = pruneOrphans(ctx, session)
	}
	return err
}

// Purge removes one report and its sections and chunks. An empty reportID
// removes every report.
func Purge(ctx context.Context, driver neo4j.DriverWithContext, reportID string) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (r:Report {id: $id})
		OPTIONAL MATCH (r)-[:HAS_SECTION]->(s:Section)
		OPTIONAL MATCH (r)-[:HAS_CHUNK]->(c:Chunk)
		DETACH DELETE r, s, c
	`
	if reportID == "" {
		query = `
			MATCH (n)
			WHERE n:Report OR n:Section OR n:Chunk
			DETACH DELETE n
		`
	}

	if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, query, map[string]any{"id": reportID}); err != nil {
			return nil, fmt.Errorf("delete report nodes: %w", err)
		}
		return nil, nil
	}); err != nil {
		return err
	}

	return pruneOrphans(ctx, session)
}

func pruneOrphans(ctx context.Context, session neo4j.SessionWithContext) error {
	if _, err := session.Run(ctx, `
		MATCH (s:Stack)
		WHERE NOT (s)<-[:FOR_STACK]-(:Report)
		DETACH DELETE s
	`, nil); err != nil {
		return fmt.Errorf("prune stacks: %w", err)
	}
	if _, err := session.Run(ctx, `
		MATCH (o:Organization)
		WHERE NOT (o)<-[:OWNED_BY]-(:Stack)
		DELETE o
	`, nil); err != nil {
		return fmt.Errorf("prune organizations: %w", err)
	}
	return nil
}

// GraphIndexer syncs every processed report into Neo4j.
type GraphIndexer struct {
	driver neo4j.DriverWithContext
}

func NewGraphIndexer(driver neo4j.DriverWithContext) *GraphIndexer {
	return &GraphIndexer{driver: driver}
}

func (g *GraphIndexer) IndexReport(ctx context.Context, rep *ingestion.Report) error {
	if err := SyncReport(ctx, g.driver, FromReport(rep)); err != nil {
		return fmt.Errorf("sync knowledge graph: %w", err)
	}
	return nil
}

var _ ingestion.Indexer = (*GraphIndexer)(nil)
