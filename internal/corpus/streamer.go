// Package corpus streams a tabular text corpus in bounded windows and
// attributes each row to a single tracked ticker.
package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/logger"
	"wsb-sentiment-lab/internal/observability"
)

// Matcher attributes a text to a tracked ticker. hits is the number of
// distinct tickers mentioned; ticker is set only when hits is 1.
type Matcher interface {
	Attribute(text string) (ticker string, hits int)
}

// Options configures a Streamer.
type Options struct {
	Path            string
	Start, End      time.Time // inclusive calendar dates
	WindowSize      int       // rows held in memory at once
	TimestampColumn string
	TitleColumn     string
	BodyColumn      string
}

// Stats counts rows by what happened to them.
type Stats struct {
	Windows      int
	RowsRead     int
	BadTimestamp int
	OutOfRange   int
	Unmatched    int
	Ambiguous    int
	Kept         int
}

// Streamer produces AttributedRecords from a CSV corpus. Every call to
// Stream re-reads the source from the start.
type Streamer struct {
	opts    Options
	matcher Matcher
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewStreamer creates a Streamer. log and metrics may be nil.
func NewStreamer(opts Options, matcher Matcher, log *logger.Logger, metrics *observability.Metrics) *Streamer {
	if opts.TimestampColumn == "" {
		opts.TimestampColumn = "timestamp"
	}
	if opts.TitleColumn == "" {
		opts.TitleColumn = "title"
	}
	if opts.BodyColumn == "" {
		opts.BodyColumn = "body"
	}
	return &Streamer{opts: opts, matcher: matcher, log: log, metrics: metrics}
}

// columns holds resolved header positions; -1 means absent.
type columns struct {
	timestamp, title, body int
}

// window is one batch of raw rows handed from the reader to the consumer.
type window struct {
	rows [][]string
	err  error
}

// Stream emits every attributed record in corpus order. It stops at the
// first error returned by emit.
func (s *Streamer) Stream(ctx context.Context, emit func(domain.AttributedRecord) error) (Stats, error) {
	var stats Stats

	if s.opts.WindowSize <= 0 {
		return stats, &ConfigError{Path: s.opts.Path, Err: fmt.Errorf("window size must be positive, got %d", s.opts.WindowSize)}
	}

	f, err := os.Open(s.opts.Path)
	if err != nil {
		return stats, &ConfigError{Path: s.opts.Path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty file")
		}
		return stats, &ConfigError{Path: s.opts.Path, Err: fmt.Errorf("read header: %w", err)}
	}
	cols, err := s.resolveColumns(header)
	if err != nil {
		return stats, &ConfigError{Path: s.opts.Path, Err: err}
	}

	op := s.log.StartOperation(ctx, "corpus.stream", "path", s.opts.Path)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	windows := make(chan window)
	consumed := make(chan struct{}, 1)
	go produceWindows(ctx, r, s.opts.WindowSize, windows, consumed)

	for w := range windows {
		if w.err != nil {
			err := fmt.Errorf("read corpus %s: %w", s.opts.Path, w.err)
			op.EndWithError(err)
			return stats, err
		}
		stats.Windows++
		s.metrics.RecordCorpusWindow()

		for _, row := range w.rows {
			rec, ok := s.attribute(row, cols, &stats)
			if !ok {
				continue
			}
			if err := emit(rec); err != nil {
				op.EndWithError(err)
				return stats, err
			}
		}
		s.log.Debug(ctx, "corpus window consumed", "window", stats.Windows, "rows", len(w.rows), "kept", stats.Kept)
		consumed <- struct{}{}
	}

	if err := ctx.Err(); err != nil {
		op.EndWithError(err)
		return stats, err
	}

	op.End("rows_read", stats.RowsRead, "rows_kept", stats.Kept)
	s.log.Info(ctx, "corpus streamed",
		"windows", stats.Windows,
		"rows_read", stats.RowsRead,
		"bad_timestamp", stats.BadTimestamp,
		"out_of_range", stats.OutOfRange,
		"unmatched", stats.Unmatched,
		"ambiguous", stats.Ambiguous,
		"kept", stats.Kept,
	)
	return stats, nil
}

// Collect streams the whole corpus into a slice.
func (s *Streamer) Collect(ctx context.Context) ([]domain.AttributedRecord, Stats, error) {
	var out []domain.AttributedRecord
	stats, err := s.Stream(ctx, func(r domain.AttributedRecord) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// produceWindows reads one window at a time and does not read the next one
// until the consumer acknowledges the previous window.
func produceWindows(ctx context.Context, r *csv.Reader, size int, out chan<- window, consumed <-chan struct{}) {
	defer close(out)

	for {
		rows, err := readWindow(r, size)
		eof := errors.Is(err, io.EOF)
		if eof {
			err = nil
		}

		if len(rows) > 0 || err != nil {
			select {
			case out <- window{rows: rows, err: err}:
			case <-ctx.Done():
				return
			}
		}
		if eof || err != nil {
			return
		}

		select {
		case <-consumed:
		case <-ctx.Done():
			return
		}
	}
}

// readWindow reads up to size records. It returns io.EOF together with the
// final partial window.
func readWindow(r *csv.Reader, size int) ([][]string, error) {
	rows := make([][]string, 0, size)
	for len(rows) < size {
		rec, err := r.Read()
		if err != nil {
			return rows, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func (s *Streamer) resolveColumns(header []string) (columns, error) {
	cols := columns{timestamp: -1, title: -1, body: -1}
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch name {
		case s.opts.TimestampColumn:
			if cols.timestamp < 0 {
				cols.timestamp = i
			}
		case s.opts.TitleColumn:
			if cols.title < 0 {
				cols.title = i
			}
		case s.opts.BodyColumn:
			if cols.body < 0 {
				cols.body = i
			}
		}
	}
	if cols.timestamp < 0 {
		return cols, fmt.Errorf("%w %q", ErrMissingColumn, s.opts.TimestampColumn)
	}
	return cols, nil
}

// attribute applies normalization, the date filter and the single-ticker
// policy to one raw row.
func (s *Streamer) attribute(row []string, cols columns, stats *Stats) (domain.AttributedRecord, bool) {
	stats.RowsRead++

	ts, err := parseTimestamp(field(row, cols.timestamp))
	if err != nil {
		stats.BadTimestamp++
		s.metrics.RecordCorpusRow(observability.RowBadTimestamp)
		return domain.AttributedRecord{}, false
	}
	date := domain.DateOf(ts)
	if date.Before(s.opts.Start) || date.After(s.opts.End) {
		stats.OutOfRange++
		s.metrics.RecordCorpusRow(observability.RowOutOfRange)
		return domain.AttributedRecord{}, false
	}

	text := strings.TrimSpace(field(row, cols.title) + " " + field(row, cols.body))

	tk, hits := s.matcher.Attribute(text)
	switch hits {
	case 1:
	case 0:
		stats.Unmatched++
		s.metrics.RecordCorpusRow(observability.RowUnmatched)
		return domain.AttributedRecord{}, false
	default:
		stats.Ambiguous++
		s.metrics.RecordCorpusRow(observability.RowAmbiguous)
		return domain.AttributedRecord{}, false
	}

	stats.Kept++
	s.metrics.RecordCorpusRow(observability.RowKept)
	return domain.AttributedRecord{Date: date, Ticker: tk, Text: text}, true
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
