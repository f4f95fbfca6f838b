package memory

import (
	"context"
	"sort"
	"sync"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/storage"
)

// EvaluationStore is an in-memory implementation of storage.EvaluationStore.
type EvaluationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.EvaluationRecord // keyed by row_id
}

// NewEvaluationStore creates a new in-memory evaluation store.
func NewEvaluationStore() *EvaluationStore {
	return &EvaluationStore{
		data: make(map[string]*domain.EvaluationRecord),
	}
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *EvaluationStore) InsertBulk(_ context.Context, records []*domain.EvaluationRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.RowID == "" || r.RunID == "" || r.Model == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.RowID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.RowID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.RowID] = struct{}{}
	}

	for _, r := range records {
		recordCopy := *r
		s.data[r.RowID] = &recordCopy
	}
	return nil
}

// GetByRunID retrieves all records of a run, ordered by (date, ticker, model) ASC.
func (s *EvaluationStore) GetByRunID(_ context.Context, runID string) ([]*domain.EvaluationRecord, error) {
	return s.filter(func(r *domain.EvaluationRecord) bool {
		return r.RunID == runID
	}), nil
}

func (s *EvaluationStore) filter(keep func(*domain.EvaluationRecord) bool) []*domain.EvaluationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EvaluationRecord
	for _, r := range s.data {
		if keep(r) {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		return a.Model < b.Model
	})

	return result
}

var _ storage.EvaluationStore = (*EvaluationStore)(nil)
