package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/storage"
)

// PriceStore is an in-memory implementation of storage.PriceStore.
type PriceStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PricePoint // keyed by (ticker, date)
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		data: make(map[string]*domain.PricePoint),
	}
}

// priceKey generates a unique key for a daily close.
func priceKey(ticker string, date time.Time) string {
	return fmt.Sprintf("%s|%s", ticker, domain.FormatDate(date))
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *PriceStore) InsertBulk(_ context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(points))

	// First pass: check for duplicates (existing + intra-batch)
	for _, p := range points {
		if p == nil || p.Ticker == "" || p.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := priceKey(p.Ticker, p.Date)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range points {
		pointCopy := *p
		pointCopy.Date = domain.DateOf(p.Date)
		s.data[priceKey(p.Ticker, p.Date)] = &pointCopy
	}

	return nil
}

// GetByTickerRange retrieves closes for a ticker within [start, end] (inclusive), ordered by date ASC.
func (s *PriceStore) GetByTickerRange(_ context.Context, ticker string, start, end time.Time) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end = domain.DateOf(start), domain.DateOf(end)
	var result []*domain.PricePoint
	for _, p := range s.data {
		if p.Ticker == ticker && !p.Date.Before(start) && !p.Date.After(end) {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}

var _ storage.PriceStore = (*PriceStore)(nil)
