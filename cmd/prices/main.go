// Package main snapshots daily closes so backtests can run offline and
// reproducibly: from Yahoo (or an existing CSV) into ClickHouse or a CSV file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wsb-sentiment-lab/internal/config"
	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/logger"
	"wsb-sentiment-lab/internal/market"
	"wsb-sentiment-lab/internal/storage/clickhouse"
	"wsb-sentiment-lab/internal/storage/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "prices: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if exists
	_ = godotenv.Load()

	defaults := config.Default()

	source := flag.String("source", config.PricesYahoo, "Source: yahoo, csv")
	input := flag.String("input", "", "Input CSV for the csv source")
	yahooURL := flag.String("yahoo-url", defaults.Prices.YahooURL, "Yahoo chart API base URL")
	tickers := flag.String("tickers", strings.Join(defaults.Tickers, ","), "Comma-separated tickers")
	start := flag.String("start", defaults.Window.Start, "First date (YYYY-MM-DD)")
	end := flag.String("end", defaults.Window.End, "Last signal date (YYYY-MM-DD)")
	bufferDays := flag.Int("buffer-days", defaults.Prices.BufferDays, "Extra days fetched after --end")
	output := flag.String("output", "", "Write a CSV snapshot to this path")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "Store closes in ClickHouse")
	migrate := flag.Bool("migrate", true, "Apply ClickHouse migrations before storing")
	flag.Parse()

	if *output == "" && *clickhouseDSN == "" {
		return errors.New("--output or --clickhouse-dsn is required")
	}

	log, _ := logger.New(logger.ConfigFromEnv())
	defer log.Shutdown(context.Background())

	from, err := domain.ParseDate(*start)
	if err != nil {
		return fmt.Errorf("parse --start: %w", err)
	}
	to, err := domain.ParseDate(*end)
	if err != nil {
		return fmt.Errorf("parse --end: %w", err)
	}
	from, to = market.FetchRange(from, to, time.Duration(*bufferDays)*24*time.Hour)

	var symbols []string
	for _, t := range strings.Split(*tickers, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			symbols = append(symbols, t)
		}
	}

	var feed market.Feed
	switch *source {
	case config.PricesYahoo:
		feed = market.NewYahooFeed(*yahooURL, 30*time.Second)
	case config.PricesCSV:
		if *input == "" {
			return errors.New("csv source: --input is required")
		}
		feed = market.NewCSVFeed(*input)
	default:
		return fmt.Errorf("unknown source %q", *source)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info(ctx, "fetching closes", "source", *source, "tickers", symbols,
		"start", domain.FormatDate(from), "end", domain.FormatDate(to))

	if *output != "" {
		points, err := feed.Closes(ctx, symbols, from, to)
		if err != nil {
			return fmt.Errorf("fetch closes: %w", err)
		}
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		if err := market.WriteCSV(f, points); err != nil {
			f.Close()
			return fmt.Errorf("write csv snapshot: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close output: %w", err)
		}
		log.Info(ctx, "csv snapshot written", "path", *output, "points", len(points))
	}

	if *clickhouseDSN != "" {
		var conn *clickhouse.Conn
		if *migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		} else {
			conn, err = clickhouse.NewConn(ctx, *clickhouseDSN)
		}
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()

		n, err := market.Snapshot(ctx, feed, clickhouse.NewPriceStore(conn), symbols, from, to)
		if err != nil {
			return fmt.Errorf("snapshot closes: %w", err)
		}
		log.Info(ctx, "closes stored", "inserted", n)
	}
	return nil
}
