package clickhouse

import (
	"context"
	"fmt"
	"time"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/storage"
)

// PriceStore implements storage.PriceStore using ClickHouse.
type PriceStore struct {
	conn *Conn
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(conn *Conn) *PriceStore {
	return &PriceStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (ticker, date).
// MergeTree does not enforce uniqueness, so duplicates are checked before insert.
func (s *PriceStore) InsertBulk(ctx context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		ticker string
		date   time.Time
	}
	seen := make(map[key]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.Ticker == "" || p.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		k := key{p.Ticker, domain.DateOf(p.Date)}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for k := range seen {
		exists, err := s.exists(ctx, k.ticker, k.date)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO daily_closes (ticker, date, close)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(p.Ticker, domain.DateOf(p.Date), p.Close); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTickerRange retrieves closes for a ticker within [start, end] (inclusive), ordered by date ASC.
func (s *PriceStore) GetByTickerRange(ctx context.Context, ticker string, start, end time.Time) ([]*domain.PricePoint, error) {
	query := `
		SELECT ticker, date, close
		FROM daily_closes
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, ticker, domain.DateOf(start), domain.DateOf(end))
	if err != nil {
		return nil, fmt.Errorf("query by ticker range: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// exists checks if a close for (ticker, date) exists.
func (s *PriceStore) exists(ctx context.Context, ticker string, date time.Time) (bool, error) {
	query := `
		SELECT count(*) FROM daily_closes
		WHERE ticker = ? AND date = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, ticker, date).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanPricePoints scans multiple rows.
func scanPricePoints(rows chRows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Ticker, &p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("scan daily close row: %w", err)
		}
		p.Date = domain.DateOf(p.Date)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily close rows: %w", err)
	}

	return points, nil
}
