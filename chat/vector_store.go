package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/healthcheck-agent/embeddings"
	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/report"
)

type VectorStore interface {
	SimilarChunks(ctx context.Context, reportID string, embedding []float32, limit int) ([]ChunkResult, error)
}

// PostgresVectorStore keeps chunk embeddings in pgvector and serves
// similarity search scoped to one report.
type PostgresVectorStore struct {
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
	logger   *log.Logger
}

func NewPostgresVectorStore(pool *pgxpool.Pool, embedder embeddings.Embedder, logger *log.Logger) *PostgresVectorStore {
	if logger == nil {
		logger = log.Default()
	}
	return &PostgresVectorStore{pool: pool, embedder: embedder, logger: logger}
}

// IndexReport embeds every chunk and replaces the stored copy of the report.
func (s *PostgresVectorStore) IndexReport(ctx context.Context, rep *ingestion.Report) (err error) {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if s.embedder == nil {
		return fmt.Errorf("embedder not configured")
	}
	if len(rep.Chunks) == 0 {
		return nil
	}

	texts := make([]string, len(rep.Chunks))
	for i, c := range rep.Chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(rep.Chunks) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(rep.Chunks), len(vectors))
	}

	metrics, err := json.Marshal(rep.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	hash := sha256.Sum256([]byte(rep.Text))

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Printf("rollback error: %v", rbErr)
			}
		}
	}()

	if _, err = tx.Exec(ctx, `
		INSERT INTO report_documents (id, file_name, title, format, sha256, metrics, metrics_source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE
		SET file_name = EXCLUDED.file_name,
		    title = EXCLUDED.title,
		    format = EXCLUDED.format,
		    sha256 = EXCLUDED.sha256,
		    metrics = EXCLUDED.metrics,
		    metrics_source = EXCLUDED.metrics_source,
		    updated_at = NOW()
	`, rep.ID, rep.FileName, rep.Title, string(rep.Format), hex.EncodeToString(hash[:]), metrics, string(rep.MetricsSource), rep.CreatedAt); err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}

	if _, err = tx.Exec(ctx, "DELETE FROM report_chunks WHERE report_id = $1", rep.ID); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	for i, c := range rep.Chunks {
		if _, err = tx.Exec(ctx, `
			INSERT INTO report_chunks (id, report_id, chunk_index, section, start_char, end_char, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		`, c.ID, rep.ID, c.ChunkIndex, string(c.Section), c.StartChar, c.EndChar, c.Content, pgvector.NewVector(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Printf("stored %d chunk embeddings for report %s", len(rep.Chunks), rep.ID)
	return nil
}

func (s *PostgresVectorStore) SimilarChunks(ctx context.Context, reportID string, embedding []float32, limit int) ([]ChunkResult, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	if limit <= 0 {
		limit = defaultSimilarityLimit
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := max(limit*10, 10)
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT
			id::text,
			chunk_index,
			section,
			start_char,
			end_char,
			content,
			(embedding <-> $2::vector) AS distance
		FROM report_chunks
		WHERE report_id = $1
		ORDER BY embedding <-> $2::vector
		LIMIT $3
	`, reportID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]ChunkResult, 0, limit)
	for rows.Next() {
		item := ChunkResult{ReportID: reportID}
		var (
			section  string
			distance float64
		)
		if err := rows.Scan(&item.ChunkID, &item.ChunkIndex, &section, &item.StartChar, &item.EndChar, &item.Content, &distance); err != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		item.Section = report.SectionLabel(section)
		item.Score = 1 / (1 + distance)
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar chunks: %w", err)
	}

	return results, nil
}

// DeleteReport removes a report and its chunks.
func (s *PostgresVectorStore) DeleteReport(ctx context.Context, reportID string) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM report_documents WHERE id = $1", reportID); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

var (
	_ VectorStore       = (*PostgresVectorStore)(nil)
	_ ingestion.Indexer = (*PostgresVectorStore)(nil)
)
