package market

import (
	"context"
	"fmt"
	"time"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/storage"
)

// StoreFeed serves closes previously snapshotted into a PriceStore.
type StoreFeed struct {
	store storage.PriceStore
}

// NewStoreFeed creates a feed over store.
func NewStoreFeed(store storage.PriceStore) *StoreFeed {
	return &StoreFeed{store: store}
}

// Closes implements Feed.
func (f *StoreFeed) Closes(ctx context.Context, tickers []string, start, end time.Time) ([]domain.PricePoint, error) {
	var out []domain.PricePoint
	for _, ticker := range tickers {
		points, err := f.store.GetByTickerRange(ctx, ticker, domain.DateOf(start), domain.DateOf(end))
		if err != nil {
			return nil, fmt.Errorf("load %s closes: %w", ticker, err)
		}
		for _, p := range points {
			out = append(out, *p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoPriceData
	}
	return out, nil
}

// Snapshot copies closes from feed into store. Points already stored for a
// (ticker, date) are skipped, so repeated snapshots of the same range are
// no-ops. Returns the number of inserted points.
func Snapshot(ctx context.Context, feed Feed, store storage.PriceStore, tickers []string, start, end time.Time) (int, error) {
	points, err := feed.Closes(ctx, tickers, start, end)
	if err != nil {
		return 0, err
	}

	existing := make(map[string]map[time.Time]struct{})
	for _, ticker := range tickers {
		stored, err := store.GetByTickerRange(ctx, ticker, domain.DateOf(start), domain.DateOf(end))
		if err != nil {
			return 0, fmt.Errorf("load stored %s closes: %w", ticker, err)
		}
		dates := make(map[time.Time]struct{}, len(stored))
		for _, p := range stored {
			dates[domain.DateOf(p.Date)] = struct{}{}
		}
		existing[ticker] = dates
	}

	var fresh []*domain.PricePoint
	for i := range points {
		p := points[i]
		p.Date = domain.DateOf(p.Date)
		if _, ok := existing[p.Ticker][p.Date]; ok {
			continue
		}
		if existing[p.Ticker] == nil {
			existing[p.Ticker] = make(map[time.Time]struct{})
		}
		existing[p.Ticker][p.Date] = struct{}{}
		fresh = append(fresh, &p)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := store.InsertBulk(ctx, fresh); err != nil {
		return 0, fmt.Errorf("store closes: %w", err)
	}
	return len(fresh), nil
}
