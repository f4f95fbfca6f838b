// Package main prints reports of a finished backtest: the dashboard
// summary, or one model's rows, read from a result CSV or from PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/evaluation"
	"wsb-sentiment-lab/internal/reporting"
	pgstore "wsb-sentiment-lab/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	input := flag.String("input", "data/backtest_results.csv", "Result CSV produced by the backtest")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Read a stored run from PostgreSQL instead of a CSV")
	runID := flag.String("run", "", "Stored run ID (latest when empty; PostgreSQL only)")
	rows := flag.Bool("rows", false, "Print one model's rows instead of the dashboard summary")
	model := flag.String("model", "", "Model for --rows")
	ticker := flag.String("ticker", "", "Ticker filter for --rows")
	start := flag.String("start", "", "Window start for --rows (YYYY-MM-DD)")
	end := flag.String("end", "", "Window end for --rows (YYYY-MM-DD)")
	markdown := flag.String("markdown", "", "Also write a markdown report to this path")
	summary := flag.Bool("summary", false, "Print the console accuracy summary")
	flag.Parse()

	ctx := context.Background()

	var (
		report *reporting.Report
		table  *evaluation.Table
		err    error
	)
	if *postgresDSN != "" {
		report, table, err = loadStored(ctx, *postgresDSN, *runID)
	} else {
		report, table, err = loadCSV(*input)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading results: %v\n", err)
		os.Exit(1)
	}

	if *markdown != "" {
		if err := os.WriteFile(*markdown, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing markdown: %v\n", err)
			os.Exit(1)
		}
	}

	switch {
	case *summary:
		fmt.Print(reporting.RenderSummary(report.Summary))
	case *rows:
		views, err := reporting.QueryRows(table, reporting.RowFilter{
			Model:  *model,
			Ticker: *ticker,
			Start:  *start,
			End:    *end,
		})
		if err != nil {
			if errors.Is(err, reporting.ErrUnknownModel) {
				fmt.Fprintf(os.Stderr, "Unknown model: %s (available: %v)\n", *model, table.Models)
			} else {
				fmt.Fprintf(os.Stderr, "Error querying rows: %v\n", err)
			}
			os.Exit(1)
		}
		printJSON(map[string]any{"rows": views})
	default:
		printJSON(report.Dashboard)
	}
}

// loadCSV rebuilds a report from a result table. Latency is not part of
// the table, so latency figures are zero.
func loadCSV(path string) (*reporting.Report, *evaluation.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	table, err := reporting.ParseCSV(f)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	run := domain.Run{RunID: path, Models: table.Models, Outcome: domain.OutcomeCompleted, RowsAligned: len(table.Rows)}
	if n := len(table.Rows); n > 0 {
		run.StartDate = table.Rows[0].Date
		run.EndDate = table.Rows[n-1].Date
	}

	return &reporting.Report{
		GeneratedAt: time.Now().UTC(),
		Run:         run,
		Summary:     evaluation.Summarize(table, nil),
		Dashboard:   reporting.BuildDashboard(table, nil),
	}, table, nil
}

func loadStored(ctx context.Context, dsn, runID string) (*reporting.Report, *evaluation.Table, error) {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	gen := reporting.NewGenerator(pgstore.NewRunStore(pool), pgstore.NewEvaluationStore(pool))
	if runID == "" {
		if runID, err = gen.Latest(ctx); err != nil {
			return nil, nil, fmt.Errorf("latest run: %w", err)
		}
	}

	report, err := gen.Generate(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("generate report for %s: %w", runID, err)
	}
	table, err := gen.Table(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("load table for %s: %w", runID, err)
	}
	return report, table, nil
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
