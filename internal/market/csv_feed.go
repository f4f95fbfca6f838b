package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"wsb-sentiment-lab/internal/domain"
)

// csvHeader is the column layout of a price snapshot file.
var csvHeader = []string{"date", "ticker", "close"}

// CSVFeed serves closes from a snapshot file with a date,ticker,close header.
// The file is read on every call so a rerun sees the same bytes it was given.
type CSVFeed struct {
	path string
}

// NewCSVFeed creates a feed over the snapshot at path.
func NewCSVFeed(path string) *CSVFeed {
	return &CSVFeed{path: path}
}

// Closes implements Feed.
func (f *CSVFeed) Closes(ctx context.Context, tickers []string, start, end time.Time) ([]domain.PricePoint, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open price snapshot: %w", err)
	}
	defer file.Close()

	all, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("read price snapshot %s: %w", f.path, err)
	}

	match := wanted(tickers)
	out := make([]domain.PricePoint, 0, len(all))
	for _, p := range all {
		if match(p.Ticker) && inRange(p.Date, start, end) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoPriceData
	}
	return out, ctx.Err()
}

// ReadCSV parses a price snapshot. Column order follows the header.
func ReadCSV(r io.Reader) ([]domain.PricePoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range csvHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []domain.PricePoint
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		field := func(col string) string {
			i := idx[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		date, err := domain.ParseDate(field("date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		raw := field("close")
		if raw == "" {
			continue // no quote that day
		}
		closePx, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse close %q: %w", line, raw, err)
		}
		out = append(out, domain.PricePoint{
			Ticker: strings.ToUpper(field("ticker")),
			Date:   date,
			Close:  closePx,
		})
	}
	return out, nil
}

// WriteCSV writes points as a snapshot file, ordered by ticker then date.
func WriteCSV(w io.Writer, points []domain.PricePoint) error {
	sorted := make([]domain.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Ticker != sorted[j].Ticker {
			return sorted[i].Ticker < sorted[j].Ticker
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range sorted {
		rec := []string{
			domain.FormatDate(p.Date),
			p.Ticker,
			strconv.FormatFloat(p.Close, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
