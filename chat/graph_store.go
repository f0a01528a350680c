package chat

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type GraphStore interface {
	ReportOutline(ctx context.Context, reportID string) (ReportOutline, error)
}

type Neo4jGraphStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jGraphStore(driver neo4j.DriverWithContext) *Neo4jGraphStore {
	return &Neo4jGraphStore{driver: driver}
}

func (s *Neo4jGraphStore) ReportOutline(ctx context.Context, reportID string) (ReportOutline, error) {
	if s.driver == nil {
		return ReportOutline{}, fmt.Errorf("neo4j driver is nil")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (r:Report {id: $id})
		OPTIONAL MATCH (r)-[rel:HAS_SECTION]->(section:Section)
		WITH r, rel, section
		ORDER BY rel.order
		WITH r, collect({label: section.label, order: rel.order, chunkCount: section.chunk_count}) AS sectionRows
		OPTIONAL MATCH (r)-[:FOR_STACK]->(stack:Stack)<-[:FOR_STACK]-(other:Report)
		WHERE other.id <> r.id
		WITH r, sectionRows, collect(DISTINCT {id: other.id, title: other.title, fileName: other.file_name, reason: 'stack ' + stack.name}) AS related
		RETURN [s IN sectionRows WHERE s.label IS NOT NULL] AS sections,
		       [o IN related WHERE o.id IS NOT NULL] AS relatedReports
	`, map[string]any{"id": reportID})
	if err != nil {
		return ReportOutline{}, fmt.Errorf("run neo4j outline query: %w", err)
	}

	var outline ReportOutline
	if result.Next(ctx) {
		record := result.Record()
		sectionsVal, _ := record.Get("sections")
		relatedVal, _ := record.Get("relatedReports")
		outline.Sections = convertSections(sectionsVal)
		outline.RelatedReports = convertRelated(relatedVal)
	}
	if err := result.Err(); err != nil {
		return ReportOutline{}, fmt.Errorf("neo4j outline result error: %w", err)
	}

	return outline, nil
}

var _ GraphStore = (*Neo4jGraphStore)(nil)

func convertRelated(value any) []RelatedReport {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}

	related := make([]RelatedReport, 0, len(raw))
	for _, item := range raw {
		data, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := data["id"].(string)
		if id == "" {
			continue
		}
		title, _ := data["title"].(string)
		fileName, _ := data["fileName"].(string)
		reason, _ := data["reason"].(string)
		related = append(related, RelatedReport{ID: id, Title: title, FileName: fileName, Reason: reason})
	}
	return related
}

func convertSections(value any) []SectionInfo {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}

	sections := make([]SectionInfo, 0, len(raw))
	for _, item := range raw {
		data, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label, _ := data["label"].(string)
		if label == "" {
			continue
		}
		order, _ := toInt(data["order"])
		count, _ := toInt(data["chunkCount"])
		sections = append(sections, SectionInfo{Label: label, Order: order, ChunkCount: count})
	}
	return sections
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
