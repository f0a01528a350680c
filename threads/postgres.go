package threads

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists threads in the report_messages table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, threadID string, msgs ...Message) (err error) {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	_, prepared, err := prepare(threadID, msgs)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, msg := range prepared {
		if _, err = tx.Exec(ctx, `
			INSERT INTO report_messages (id, thread_id, report_id, role, content, created_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		`, msg.ID, msg.ThreadID, msg.ReportID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, threadID string) ([]Message, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	id, err := ParseThreadID(threadID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, thread_id::text, COALESCE(report_id, ''), role, content, created_at
		FROM report_messages
		WHERE thread_id = $1
		ORDER BY created_at, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.ReportID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

var _ Store = (*PostgresStore)(nil)
