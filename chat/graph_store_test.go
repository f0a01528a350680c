package chat_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/healthcheck-agent/chat"
	"github.com/fabfab/healthcheck-agent/config"
	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/knowledge"
	"github.com/fabfab/healthcheck-agent/report"
)

func TestNeo4jGraphStoreRequiresDriver(t *testing.T) {
	if _, err := chat.NewNeo4jGraphStore(nil).ReportOutline(context.Background(), "r1"); err == nil {
		t.Fatal("expected error without a driver")
	}
}

func TestReportOutlineIncludesSectionsAndRelatedReports(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database connectivity checks")
	}

	cfg := config.Load()
	if !cfg.GraphEnabled() {
		t.Skip("NEO4J_URI must be set")
	}
	ctx := context.Background()

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		t.Fatalf("neo4j connection: %v", err)
	}
	defer driver.Close(ctx)

	stack := "stack-" + uuid.NewString()
	newReport := func(fileName string) *ingestion.Report {
		return &ingestion.Report{
			ID:            uuid.NewString(),
			FileName:      fileName,
			Title:         "Health check " + fileName,
			Format:        ingestion.FormatText,
			Chunks:        report.ChunkText(sampleText, report.DefaultChunkOptions()),
			Metrics:       report.Metrics{Stack: stack},
			MetricsSource: report.MetricsFromText,
			CreatedAt:     time.Now().UTC(),
		}
	}
	current, previous := newReport("2024.pdf"), newReport("2023.pdf")
	t.Cleanup(func() {
		_ = knowledge.Purge(ctx, driver, current.ID)
		_ = knowledge.Purge(ctx, driver, previous.ID)
	})

	indexer := knowledge.NewGraphIndexer(driver)
	for _, rep := range []*ingestion.Report{current, previous} {
		if err := indexer.IndexReport(ctx, rep); err != nil {
			t.Fatalf("index %s: %v", rep.FileName, err)
		}
	}

	outline, err := chat.NewNeo4jGraphStore(driver).ReportOutline(ctx, current.ID)
	if err != nil {
		t.Fatalf("report outline: %v", err)
	}

	if len(outline.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %#v", outline.Sections)
	}
	if outline.Sections[0].Label != string(report.SectionStackOverview) || outline.Sections[0].ChunkCount != 1 {
		t.Fatalf("unexpected first section %#v", outline.Sections[0])
	}
	if len(outline.RelatedReports) != 1 || outline.RelatedReports[0].ID != previous.ID {
		t.Fatalf("expected related report %s, got %#v", previous.ID, outline.RelatedReports)
	}
}
