// Package main serves backtest results and on-demand sentiment over HTTP:
// - /api/dashboard/summary, /api/backtest/rows, /api/runs
// - /api/sentiment/analyse, /api/sentiment/daily/:ticker
// - /healthz and Prometheus /metrics
//
// Results come from PostgreSQL, or from a result CSV loaded into memory.
// Scored posts are kept in the same store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"wsb-sentiment-lab/internal/api"
	"wsb-sentiment-lab/internal/config"
	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/logger"
	"wsb-sentiment-lab/internal/observability"
	"wsb-sentiment-lab/internal/orchestrator"
	"wsb-sentiment-lab/internal/posts"
	"wsb-sentiment-lab/internal/reporting"
	"wsb-sentiment-lab/internal/sentiment"
	"wsb-sentiment-lab/internal/sentiment/lexicon"
	"wsb-sentiment-lab/internal/storage"
	"wsb-sentiment-lab/internal/storage/memory"
	"wsb-sentiment-lab/internal/storage/migrations"
	pgstore "wsb-sentiment-lab/internal/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred shutdowns always execute.
func run() error {
	// Load .env file if exists
	_ = godotenv.Load()

	configPath := flag.String("config", "", "YAML config file (defaults are used when empty)")
	addr := flag.String("addr", "", "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Serve a result CSV from memory instead of PostgreSQL")
	input := flag.String("input", "", "Result CSV for --use-memory (defaults to output.csv_path)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	cfg.ApplyEnv()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *input == "" {
		*input = cfg.Output.CSVPath
	}

	log, _ := logger.New(logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Detailed: cfg.Log.Detailed,
		Tracing:  cfg.Log.Tracing,
		Service:  "server",
	})
	defer log.Shutdown(context.Background())

	if !*useMemory && cfg.Storage.PostgresDSN == "" {
		return errors.New("--postgres-dsn is required (use --use-memory to serve a result CSV)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := createStores(ctx, cfg.Storage.PostgresDSN, *useMemory, *input, log)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics("", reg)

	client := sentiment.NewClient(newOracle(cfg, metrics, log), cfg.Oracle.BatchSize, log)
	analyser := posts.NewService(client, st.posts, defaultModel(cfg), log)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(reporting.NewGenerator(st.runs, st.evals), analyser, reg, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "results server listening", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.ErrorWithErr(shutdownCtx, "graceful shutdown failed", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	}
	return nil
}

// newOracle builds the configured oracle with metrics and logging.
func newOracle(cfg *config.Config, metrics *observability.Metrics, log *logger.Logger) sentiment.Oracle {
	var oracle sentiment.Oracle
	switch cfg.Oracle.Kind {
	case config.OracleLexicon:
		oracle = lexicon.New()
	default:
		oracle = sentiment.NewHTTPOracle(cfg.Oracle.URL, cfg.Oracle.Timeout)
	}
	return sentiment.Observe(oracle, metrics, log)
}

// defaultModel is the model used by analyse requests that name none.
func defaultModel(cfg *config.Config) string {
	if len(cfg.Oracle.Models) > 0 {
		return cfg.Oracle.Models[0]
	}
	return "distilbert"
}

type stores struct {
	runs  storage.RunStore
	evals storage.EvaluationStore
	posts storage.PostStore
	close func()
}

// createStores opens PostgreSQL, or loads a result CSV into memory stores.
func createStores(ctx context.Context, dsn string, useMemory bool, input string, log *logger.Logger) (*stores, error) {
	if useMemory {
		runs := memory.NewRunStore()
		evals := memory.NewEvaluationStore()
		if err := preload(ctx, input, runs, evals); err != nil {
			return nil, err
		}
		log.Info(ctx, "result csv loaded", "path", input)
		return &stores{runs: runs, evals: evals, posts: memory.NewPostStore(), close: func() {}}, nil
	}

	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	log.Info(ctx, "postgres migrations applied", "count", len(applied))

	return &stores{
		runs:  pgstore.NewRunStore(pool),
		evals: pgstore.NewEvaluationStore(pool),
		posts: pgstore.NewPostStore(pool),
		close: pool.Close,
	}, nil
}

// preload stores the table of a result CSV as a single run keyed by its path.
func preload(ctx context.Context, path string, runs storage.RunStore, evals storage.EvaluationStore) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	table, err := reporting.ParseCSV(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return err
	}

	run := &domain.Run{
		RunID:       path,
		Models:      table.Models,
		Outcome:     domain.OutcomeCompleted,
		RowsAligned: len(table.Rows),
		CreatedAt:   info.ModTime().UTC(),
	}
	seen := make(map[string]struct{})
	for _, r := range table.Rows {
		if _, ok := seen[r.Ticker]; !ok {
			seen[r.Ticker] = struct{}{}
			run.Tickers = append(run.Tickers, r.Ticker)
		}
	}
	if n := len(table.Rows); n > 0 {
		run.StartDate = table.Rows[0].Date
		run.EndDate = table.Rows[n-1].Date
	}

	if err := runs.Insert(ctx, run); err != nil {
		return fmt.Errorf("store run: %w", err)
	}
	return evals.InsertBulk(ctx, orchestrator.Records(run.RunID, table))
}
