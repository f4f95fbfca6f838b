// Package main runs one sentiment backtest end to end:
// corpus → sentiment oracle → daily signals → market closes → evaluation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"wsb-sentiment-lab/internal/config"
	"wsb-sentiment-lab/internal/corpus"
	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/logger"
	"wsb-sentiment-lab/internal/market"
	"wsb-sentiment-lab/internal/observability"
	"wsb-sentiment-lab/internal/orchestrator"
	"wsb-sentiment-lab/internal/reporting"
	"wsb-sentiment-lab/internal/sentiment"
	"wsb-sentiment-lab/internal/sentiment/lexicon"
	"wsb-sentiment-lab/internal/storage/clickhouse"
	"wsb-sentiment-lab/internal/storage/migrations"
	pgstore "wsb-sentiment-lab/internal/storage/postgres"
	"wsb-sentiment-lab/internal/ticker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred shutdowns always execute.
func run() error {
	// Load .env file if exists
	_ = godotenv.Load()

	configPath := flag.String("config", "", "YAML config file (defaults are used when empty)")
	corpusPath := flag.String("corpus", "", "Corpus CSV path")
	start := flag.String("start", "", "Window start (YYYY-MM-DD)")
	end := flag.String("end", "", "Window end (YYYY-MM-DD, inclusive)")
	tickers := flag.String("tickers", "", "Comma-separated tracked tickers")
	models := flag.String("models", "", "Comma-separated model identifiers")
	oracleKind := flag.String("oracle", "", "Oracle kind: http, lexicon")
	oracleURL := flag.String("oracle-url", "", "Sentiment oracle endpoint")
	batchSize := flag.Int("batch-size", 0, "Texts per oracle request")
	pricesSource := flag.String("prices", "", "Price source: yahoo, csv, clickhouse")
	pricesPath := flag.String("prices-path", "", "Price snapshot CSV (csv source)")
	minPosts := flag.Int("min-posts", -1, "Drop daily signals with fewer posts")
	output := flag.String("output", "", "Result CSV path")
	markdown := flag.String("markdown", "", "Markdown report path (skipped when empty)")
	persist := flag.Bool("persist", false, "Persist the run to PostgreSQL")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (disabled when empty)")

	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()

	// Flags override file and environment
	setString(&cfg.Corpus.Path, *corpusPath)
	setString(&cfg.Window.Start, *start)
	setString(&cfg.Window.End, *end)
	setList(&cfg.Tickers, *tickers)
	setList(&cfg.Oracle.Models, *models)
	setString(&cfg.Oracle.Kind, *oracleKind)
	setString(&cfg.Oracle.URL, *oracleURL)
	setString(&cfg.Prices.Source, *pricesSource)
	setString(&cfg.Prices.Path, *pricesPath)
	setString(&cfg.Output.CSVPath, *output)
	setString(&cfg.Output.MarkdownPath, *markdown)
	setString(&cfg.Storage.PostgresDSN, *postgresDSN)
	setString(&cfg.Storage.ClickhouseDSN, *clickhouseDSN)
	setString(&cfg.Metrics.Addr, *metricsAddr)
	if *batchSize > 0 {
		cfg.Oracle.BatchSize = *batchSize
	}
	if *minPosts >= 0 {
		cfg.Signal.MinPosts = *minPosts
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Detailed: cfg.Log.Detailed,
		Tracing:  cfg.Log.Tracing,
		Service:  "backtest",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
	}

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer log.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("", reg)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := observability.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
				log.ErrorWithErr(ctx, "metrics server stopped", err)
			}
		}()
	}

	windowStart, windowEnd, _ := cfg.Range()

	matcher, err := ticker.NewMatcher(ticker.Aliases(cfg.Tickers, cfg.Aliases))
	if err != nil {
		return fmt.Errorf("build ticker matcher: %w", err)
	}

	streamer := corpus.NewStreamer(corpus.Options{
		Path:            cfg.Corpus.Path,
		Start:           windowStart,
		End:             windowEnd,
		WindowSize:      cfg.Corpus.ChunkSize,
		TimestampColumn: cfg.Corpus.TimestampColumn,
		TitleColumn:     cfg.Corpus.TitleColumn,
		BodyColumn:      cfg.Corpus.BodyColumn,
	}, matcher, log, metrics)

	oracle := newOracle(cfg, metrics, log)

	feed, closeFeed, err := openFeed(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open price feed: %w", err)
	}
	defer closeFeed()

	opts := orchestrator.Options{
		Corpus:      streamer,
		Oracle:      oracle,
		Feed:        feed,
		Models:      cfg.Oracle.Models,
		Start:       windowStart,
		End:         windowEnd,
		Tickers:     cfg.Tickers,
		CorpusName:  cfg.Corpus.Path,
		PriceSource: cfg.Prices.Source,
		BatchSize:   cfg.Oracle.BatchSize,
		MinPosts:    cfg.Signal.MinPosts,
		PriceBuffer: cfg.PriceBuffer(),
		Logger:      log,
		Metrics:     metrics,
	}

	if *persist {
		if cfg.Storage.PostgresDSN == "" {
			return errors.New("--postgres-dsn is required with --persist")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		log.Info(ctx, "postgres migrations applied", "count", len(applied))

		opts.RunStore = pgstore.NewRunStore(pool)
		opts.EvaluationStore = pgstore.NewEvaluationStore(pool)
	}

	started := time.Now()
	result, err := orchestrator.New(opts).Run(ctx)
	if err != nil {
		log.ErrorWithErr(ctx, "backtest failed", err)
		return err
	}
	metrics.RecordPhase("total", time.Since(started))

	for model, err := range result.FailedModels {
		log.Warn(ctx, "model skipped", "model", model, "error", err)
	}

	if result.Outcome != domain.OutcomeCompleted {
		log.Warn(ctx, "backtest produced no results", "outcome", result.Outcome, "run_id", result.RunID)
		fmt.Printf("Backtest finished without results: %s\n", result.Outcome)
		return nil
	}

	if err := writeFile(cfg.Output.CSVPath, reporting.RenderCSV(result.Result.Table)); err != nil {
		return fmt.Errorf("write result csv: %w", err)
	}
	log.Info(ctx, "result table written", "path", cfg.Output.CSVPath, "rows", len(result.Result.Table.Rows))

	if cfg.Output.MarkdownPath != "" {
		report := &reporting.Report{
			GeneratedAt: time.Now().UTC(),
			Run: domain.Run{
				RunID:       result.RunID,
				StartDate:   windowStart,
				EndDate:     windowEnd,
				Tickers:     cfg.Tickers,
				Models:      result.Result.Table.Models,
				Outcome:     result.Outcome,
				RowsKept:    result.RecordsKept,
				RowsAligned: len(result.Result.Table.Rows),
				Latency:     result.Latency,
			},
			Summary:   result.Result.Summary,
			Dashboard: reporting.BuildDashboard(result.Result.Table, result.Latency),
		}
		if err := writeFile(cfg.Output.MarkdownPath, reporting.RenderMarkdown(report)); err != nil {
			return fmt.Errorf("write markdown report: %w", err)
		}
	}

	fmt.Print(reporting.RenderSummary(result.Result.Summary))
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

// openFeed builds the configured price feed and its cleanup.
func openFeed(ctx context.Context, cfg *config.Config) (market.Feed, func(), error) {
	switch cfg.Prices.Source {
	case config.PricesCSV:
		return market.NewCSVFeed(cfg.Prices.Path), func() {}, nil
	case config.PricesClickhouse:
		conn, err := clickhouse.NewConn(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		return market.NewStoreFeed(clickhouse.NewPriceStore(conn)), func() { conn.Close() }, nil
	default:
		return market.NewYahooFeed(cfg.Prices.YahooURL, 30*time.Second), func() {}, nil
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func writeFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v string) {
	if v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}
