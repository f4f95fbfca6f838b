package storage

import (
	"context"
	"time"

	"wsb-sentiment-lab/internal/domain"
)

// PriceStore provides access to daily_closes storage.
type PriceStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (ticker, date).
	InsertBulk(ctx context.Context, points []*domain.PricePoint) error

	// GetByTickerRange retrieves closes for a ticker with date within [start, end] (inclusive),
	// ordered by date ASC.
	GetByTickerRange(ctx context.Context, ticker string, start, end time.Time) ([]*domain.PricePoint, error)
}

// RunStore provides access to backtest_runs storage.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.Run) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.Run, error)

	// List retrieves all runs, newest first (created_at DESC, run_id ASC).
	List(ctx context.Context) ([]*domain.Run, error)

	// Delete removes a run that has no evaluation rows. Returns ErrNotFound
	// if run_id does not exist.
	Delete(ctx context.Context, runID string) error
}

// ResultWriter stores a run together with its evaluation records: either
// both are written or neither is. Returns ErrDuplicateKey if run_id exists.
type ResultWriter interface {
	Persist(ctx context.Context, r *domain.Run, records []*domain.EvaluationRecord) error
}

// EvaluationStore provides access to evaluation_rows storage.
type EvaluationStore interface {
	// InsertBulk adds multiple records atomically. Fails entire batch on duplicate row_id.
	InsertBulk(ctx context.Context, records []*domain.EvaluationRecord) error

	// GetByRunID retrieves all records of a run, ordered by (date, ticker, model) ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.EvaluationRecord, error)
}

// PostStore provides access to scored_posts storage.
type PostStore interface {
	// InsertBulk adds multiple posts atomically. Fails entire batch on duplicate post_id.
	InsertBulk(ctx context.Context, posts []*domain.ScoredPost) error

	// GetByTicker retrieves a ticker's posts scored by model, or by every
	// model when model is empty, ordered by (created_at, post_id) ASC.
	GetByTicker(ctx context.Context, ticker, model string) ([]*domain.ScoredPost, error)
}
