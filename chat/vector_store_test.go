package chat_test

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/healthcheck-agent/chat"
	"github.com/fabfab/healthcheck-agent/config"
	"github.com/fabfab/healthcheck-agent/database"
	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/report"
)

func TestPostgresVectorStoreRequiresPool(t *testing.T) {
	store := chat.NewPostgresVectorStore(nil, &stubEmbedder{}, nil)

	if _, err := store.SimilarChunks(context.Background(), "r1", []float32{1}, 3); err == nil {
		t.Fatal("expected error without a pool")
	}
	if err := store.IndexReport(context.Background(), &ingestion.Report{ID: "r1"}); err == nil {
		t.Fatal("expected error without a pool")
	}
}

func TestVectorSearchRanking(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database connectivity checks")
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		t.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	dim := cfg.Embeddings.Dimension
	if err := database.EnsureReportSchema(ctx, pool, dim); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	makeVector := func(weight float32) []float32 {
		vec := make([]float32, dim)
		vec[0] = weight
		return vec
	}

	chunks := report.ChunkText(sampleText, report.DefaultChunkOptions())
	if len(chunks) != 3 {
		t.Fatalf("expected 3 sample chunks, got %d", len(chunks))
	}
	rep := &ingestion.Report{
		ID:        uuid.NewString(),
		FileName:  "acme.txt",
		Title:     "Stack Overview",
		Format:    ingestion.FormatText,
		Text:      sampleText,
		Chunks:    chunks,
		CreatedAt: time.Now().UTC(),
	}

	embedder := &stubEmbedder{vectors: [][]float32{makeVector(0.1), makeVector(1.0), makeVector(0.4)}}
	store := chat.NewPostgresVectorStore(pool, embedder, log.New(io.Discard, "", 0))
	t.Cleanup(func() { _ = store.DeleteReport(ctx, rep.ID) })

	if err := store.IndexReport(ctx, rep); err != nil {
		t.Fatalf("index report: %v", err)
	}
	// Re-indexing the same report replaces its chunks.
	if err := store.IndexReport(ctx, rep); err != nil {
		t.Fatalf("re-index report: %v", err)
	}

	results, err := store.SimilarChunks(ctx, rep.ID, makeVector(0.9), 2)
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != chunks[1].ID || results[0].Section != report.SectionActionsRequired {
		t.Fatalf("expected actions chunk first, got %+v", results[0])
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("expected first score to be higher, got %f <= %f", results[0].Score, results[1].Score)
	}

	other, err := store.SimilarChunks(ctx, uuid.NewString(), makeVector(0.9), 2)
	if err != nil {
		t.Fatalf("vector search for unknown report: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("results must be scoped to the report, got %d", len(other))
	}
}
