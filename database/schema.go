package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureReportSchema creates the report, chunk and message tables.
func EnsureReportSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	stmts, err := reportSchema(dimension)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

func reportSchema(dimension int) ([]string, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS report_documents (
			id UUID PRIMARY KEY,
			file_name TEXT NOT NULL,
			title TEXT,
			format TEXT NOT NULL,
			sha256 TEXT NOT NULL,
			metrics JSONB NOT NULL DEFAULT '{}'::jsonb,
			metrics_source TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// Chunk ids derive from content, so identical uploads share them.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS report_chunks (
			id UUID NOT NULL,
			report_id UUID NOT NULL REFERENCES report_documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			section TEXT NOT NULL,
			start_char INT NOT NULL,
			end_char INT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (report_id, chunk_index)
		)`, dimension),
		`CREATE TABLE IF NOT EXISTS report_messages (
			id UUID PRIMARY KEY,
			thread_id UUID NOT NULL,
			report_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"CREATE INDEX IF NOT EXISTS idx_report_chunks_section ON report_chunks(report_id, section)",
		"CREATE INDEX IF NOT EXISTS idx_report_chunks_embedding ON report_chunks USING ivfflat (embedding vector_l2_ops)",
		"CREATE INDEX IF NOT EXISTS idx_report_messages_thread ON report_messages(thread_id, created_at)",
	}, nil
}

// ClearReports removes every stored report, chunk and message.
func ClearReports(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "TRUNCATE report_chunks, report_documents, report_messages"); err != nil {
		return fmt.Errorf("truncate report tables: %w", err)
	}
	return nil
}
