package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fabfab/healthcheck-agent/api"
	"github.com/fabfab/healthcheck-agent/chat"
	"github.com/fabfab/healthcheck-agent/config"
	"github.com/fabfab/healthcheck-agent/database"
	"github.com/fabfab/healthcheck-agent/ingestion"
	"github.com/fabfab/healthcheck-agent/knowledge"
	"github.com/fabfab/healthcheck-agent/llm"
	"github.com/fabfab/healthcheck-agent/mcpserver"
)

var version = "0.1.0"

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "healthcheck-agent",
		Short: "Parse and chat with CMS health check reports",
		Long: `healthcheck-agent ingests health check reports (PDF, DOCX, DOC, TXT, MD),
splits them into section-labelled chunks, extracts the headline metrics and
answers questions grounded in the report content.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(clearCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(os.Stdout, "", log.LstdFlags)
			cfg := config.Load()
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			server := api.New(cfg, api.Services{
				Ingestion: a.ingest,
				Chat:      a.chat,
				Reports:   a.reports,
				Threads:   a.threads,
				Purge:     a.purge,
			}, logger)

			httpServer := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           server,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Printf("listening on %s (llm %s/%s, postgres %t, neo4j %t)",
					cfg.HTTPAddr, cfg.LLM.Provider, cfg.LLM.Model, cfg.PostgresEnabled(), cfg.GraphEnabled())
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Println("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func parseCmd() *cobra.Command {
	var (
		maxChunkSize    int
		overlap         int
		asJSON          bool
		documentMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "parse <file|dir>",
		Short: "Parse reports and print their chunks and metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(os.Stderr, "", log.LstdFlags)
			cfg := config.Load()
			if cmd.Flags().Changed("max-chunk-size") {
				cfg.ChunkMaxSize = maxChunkSize
			}
			if cmd.Flags().Changed("overlap") {
				cfg.ChunkOverlap = overlap
			}

			var extractor ingestion.MetricsExtractor
			if documentMetrics {
				client, err := llm.NewClient(cfg)
				if err != nil {
					return fmt.Errorf("llm setup: %w", err)
				}
				extractor = chat.NewMetricsExtractor(client, logger)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc := ingestion.NewService(nil, extractor, logger, ingestOptions(cfg))
			reports, err := parseTarget(ctx, svc, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			for _, rep := range reports {
				printReport(cmd, rep)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxChunkSize, "max-chunk-size", 1500, "maximum characters per chunk")
	cmd.Flags().IntVar(&overlap, "overlap", 200, "characters carried between windowed chunks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print reports as JSON")
	cmd.Flags().BoolVar(&documentMetrics, "document-metrics", false, "ask the LLM for first-page metrics")
	return cmd
}

func parseTarget(ctx context.Context, svc *ingestion.Service, path string) ([]*ingestion.Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return svc.ProcessDirectory(ctx, path)
	}
	rep, err := svc.ProcessFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return []*ingestion.Report{rep}, nil
}

func printReport(cmd *cobra.Command, rep *ingestion.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", rep.FileName, rep.Format)
	fmt.Fprintf(out, "  Title: %s\n", rep.Title)
	if rep.Truncated {
		fmt.Fprintln(out, "  Text truncated")
	}

	m := rep.Metrics
	fmt.Fprintf(out, "  Metrics (%s):\n", rep.MetricsSource)
	for _, field := range []struct {
		label string
		value string
	}{
		{"Organization", m.Organization},
		{"Stack", m.Stack},
		{"Run by", m.RunBy},
		{"Last run", m.LastRun},
	} {
		if field.value != "" {
			fmt.Fprintf(out, "    %s: %s\n", field.label, field.value)
		}
	}
	for _, field := range []struct {
		label string
		value *int
	}{
		{"Total checks", m.TotalChecks},
		{"Performed checks", m.PerformedChecks},
		{"Skipped checks", m.SkippedChecks},
		{"Actions required", m.ActionsRequired},
		{"Areas of opportunities", m.AreasOfOpportunities},
		{"Strengths", m.Strengths},
	} {
		if field.value != nil {
			fmt.Fprintf(out, "    %s: %d\n", field.label, *field.value)
		}
	}

	fmt.Fprintf(out, "  Chunks: %d\n", len(rep.Chunks))
	for _, c := range rep.Chunks {
		fmt.Fprintf(out, "    %d. [%s] %d-%d (%d chars)\n", c.ChunkIndex+1, c.Section, c.StartChar, c.EndChar, len(c.Content))
	}
	fmt.Fprintln(out)
}

func askCmd() *cobra.Command {
	var (
		question string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "ask <file>",
		Short: "Ask a question about a single report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(os.Stderr, "", log.LstdFlags)
			cfg := config.Load()

			if strings.TrimSpace(question) == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Enter your question: ")
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					question = scanner.Text()
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read question: %w", err)
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			rep, err := a.ingest.ProcessFile(ctx, args[0])
			if err != nil {
				return err
			}

			answer, err := a.chat.Ask(ctx, rep.ID, question, chat.AskOptions{Limit: limit})
			if err != nil {
				return fmt.Errorf("chat failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer.Answer)
			if len(answer.Citations) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Sources (%s retrieval):\n", answer.Retrieval)
				for idx, c := range answer.Citations {
					fmt.Fprintf(out, "%d. Chunk %d · %s\n", idx+1, c.ChunkIndex+1, c.Section)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "question to ask about the report")
	cmd.Flags().IntVar(&limit, "limit", 5, "number of context chunks to retrieve")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve report tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol.
			logger := log.New(os.Stderr, "", log.LstdFlags)
			cfg := config.Load()

			var extractor ingestion.MetricsExtractor
			if cfg.MetricsStrategy == config.MetricsAuto {
				client, err := llm.NewClient(cfg)
				if err != nil {
					return fmt.Errorf("llm setup: %w", err)
				}
				extractor = metricsExtractor(cfg, client, logger)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc := ingestion.NewService(nil, nil, logger, ingestOptions(cfg))
			return mcpserver.New(svc, extractor, version, logger).Run(ctx)
		},
	}
}

func clearCmd() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove indexed reports from Postgres and Neo4j",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(os.Stdout, "", log.LstdFlags)
			cfg := config.Load()

			if !cfg.PostgresEnabled() && !cfg.GraphEnabled() {
				logger.Println("no persistent stores configured; nothing to clear")
				return nil
			}

			if !confirmed {
				fmt.Fprint(cmd.OutOrStdout(), "This will permanently delete indexed reports from Postgres and Neo4j. Continue? [y/N]: ")
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if !scanner.Scan() {
					if err := scanner.Err(); err != nil {
						return fmt.Errorf("read confirmation: %w", err)
					}
					logger.Println("clear aborted")
					return nil
				}
				answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
				if answer != "y" && answer != "yes" {
					logger.Println("clear aborted")
					return nil
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if cfg.PostgresEnabled() {
				pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
				if err != nil {
					return fmt.Errorf("postgres connection: %w", err)
				}
				defer pool.Close()

				if err := database.ClearReports(ctx, pool); err != nil {
					return err
				}
				logger.Println("cleared Postgres report_documents, report_chunks and report_messages")
			}

			if cfg.GraphEnabled() {
				driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
				if err != nil {
					return fmt.Errorf("neo4j connection: %w", err)
				}
				defer driver.Close(ctx)

				if err := knowledge.Purge(ctx, driver, ""); err != nil {
					return fmt.Errorf("clear neo4j: %w", err)
				}
				logger.Println("Neo4j reports, sections and chunks cleared")
			}

			logger.Println("report data removed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip confirmation prompt")
	return cmd
}
