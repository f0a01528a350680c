package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/healthcheck-agent/chat"
	"github.com/fabfab/healthcheck-agent/config"
	"github.com/fabfab/healthcheck-agent/database"
	"github.com/fabfab/healthcheck-agent/embeddings"
	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/knowledge"
	"github.com/fabfab/healthcheck-agent/llm"
	"github.com/fabfab/healthcheck-agent/report"
	"github.com/fabfab/healthcheck-agent/session"
	"github.com/fabfab/healthcheck-agent/threads"
)

// app holds the wired services shared by serve and ask.
type app struct {
	cfg     config.Config
	logger  *log.Logger
	reports *session.Store[*ingestion.Report]
	ingest  *ingestion.Service
	chat    *chat.Service
	threads threads.Store
	text    *chat.MemoryIndex
	pool    *pgxpool.Pool
	driver  neo4j.DriverWithContext
	vectors *chat.PostgresVectorStore
}

func newApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	reports, err := session.New[*ingestion.Report](cfg.SessionCapacity)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		reports: reports,
		text:    chat.NewMemoryIndex(logger),
		threads: threads.NewMemoryStore(),
	}
	reports.OnRemove(a.text.Forget)

	indexers := []ingestion.Indexer{a.text}
	deps := chat.Deps{
		Reports:   reports,
		LLM:       llmClient,
		Text:      a.text,
		MaxTokens: cfg.LLM.MaxTokens,
	}

	if cfg.PostgresEnabled() {
		if err := a.connectPostgres(ctx); err != nil {
			a.Close(ctx)
			return nil, err
		}
		embedder, err := embeddings.NewEmbedder(cfg)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("embedder setup: %w", err)
		}
		a.vectors = chat.NewPostgresVectorStore(a.pool, embedder, logger)
		a.threads = threads.NewPostgresStore(a.pool)
		indexers = append(indexers, a.vectors)
		deps.Vectors = a.vectors
		deps.Embedder = embedder
	}

	if cfg.GraphEnabled() {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("neo4j connection: %w", err)
		}
		a.driver = driver
		indexers = append(indexers, knowledge.NewGraphIndexer(driver))
		deps.Graph = chat.NewNeo4jGraphStore(driver)
	}

	deps.Threads = a.threads
	a.ingest = ingestion.NewService(reports, metricsExtractor(cfg, llmClient, logger), logger, ingestOptions(cfg), indexers...)
	a.chat = chat.NewService(deps, logger)
	return a, nil
}

func (a *app) connectPostgres(ctx context.Context) error {
	pool, err := database.NewPostgresPool(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	a.pool = pool
	if err := database.EnsureReportSchema(ctx, pool, a.cfg.Embeddings.Dimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// purge removes a report from the persistent indexes.
func (a *app) purge(ctx context.Context, reportID string) error {
	var errs []error
	if a.vectors != nil {
		if err := a.vectors.DeleteReport(ctx, reportID); err != nil {
			errs = append(errs, err)
		}
	}
	if a.driver != nil {
		if err := knowledge.Purge(ctx, a.driver, reportID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) Close(ctx context.Context) {
	if a.driver != nil {
		if err := a.driver.Close(ctx); err != nil {
			a.logger.Printf("close neo4j: %v", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func ingestOptions(cfg config.Config) ingestion.Options {
	return ingestion.Options{
		MaxUploadBytes: cfg.UploadMaxBytes,
		MaxTextChars:   cfg.MaxTextChars,
		Chunking: report.ChunkOptions{
			MaxChunkSize: cfg.ChunkMaxSize,
			Overlap:      cfg.ChunkOverlap,
		},
	}
}

// metricsExtractor returns nil unless document-level metrics are enabled.
func metricsExtractor(cfg config.Config, client llm.Client, logger *log.Logger) ingestion.MetricsExtractor {
	if cfg.MetricsStrategy != config.MetricsAuto || client == nil {
		return nil
	}
	return chat.NewMetricsExtractor(client, logger)
}
