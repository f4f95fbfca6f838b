package memory

import (
	"context"
	"sort"
	"sync"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Run // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.Run),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(_ context.Context, r *domain.Run) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	s.data[r.RunID] = copyRun(r)
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyRun(r), nil
}

// List retrieves all runs, newest first.
func (s *RunStore) List(_ context.Context) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Run, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, copyRun(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].RunID < result[j].RunID
	})

	return result, nil
}

// Delete removes a run. Returns ErrNotFound if not exists.
func (s *RunStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, runID)
	return nil
}

func copyRun(r *domain.Run) *domain.Run {
	c := *r
	c.Tickers = append([]string(nil), r.Tickers...)
	c.Models = append([]string(nil), r.Models...)
	c.Latency = append([]domain.ModelLatency(nil), r.Latency...)
	return &c
}

var _ storage.RunStore = (*RunStore)(nil)
