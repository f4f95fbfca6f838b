package memory

import (
	"context"
	"sort"
	"sync"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/storage"
)

// PostStore is an in-memory implementation of storage.PostStore.
type PostStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ScoredPost // keyed by post_id
}

// NewPostStore creates a new in-memory post store.
func NewPostStore() *PostStore {
	return &PostStore{
		data: make(map[string]*domain.ScoredPost),
	}
}

// InsertBulk adds multiple posts atomically. Fails entire batch on any duplicate.
func (s *PostStore) InsertBulk(_ context.Context, posts []*domain.ScoredPost) error {
	if len(posts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		if p == nil || p.PostID == "" || p.Ticker == "" || p.Model == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[p.PostID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[p.PostID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[p.PostID] = struct{}{}
	}

	for _, p := range posts {
		postCopy := *p
		s.data[p.PostID] = &postCopy
	}
	return nil
}

// GetByTicker retrieves a ticker's posts, ordered by (created_at, post_id) ASC.
func (s *PostStore) GetByTicker(_ context.Context, ticker, model string) ([]*domain.ScoredPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScoredPost
	for _, p := range s.data {
		if p.Ticker != ticker || (model != "" && p.Model != model) {
			continue
		}
		postCopy := *p
		result = append(result, &postCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.PostID < b.PostID
	})

	return result, nil
}

var _ storage.PostStore = (*PostStore)(nil)
