package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.RunStore     = (*RunStore)(nil)
	_ storage.ResultWriter = (*RunStore)(nil)
)

// latencyJSON is the stored form of domain.ModelLatency.
type latencyJSON struct {
	Model      string  `json:"model"`
	TextCount  int     `json:"text_count"`
	ElapsedMs  int64   `json:"elapsed_ms"`
	SecPerText float64 `json:"sec_per_text"`
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.Run) error {
	return insertRun(ctx, s.pool, r)
}

// Persist stores the run and its evaluation records in one transaction.
// Nothing is written when either insert fails.
func (s *RunStore) Persist(ctx context.Context, r *domain.Run, records []*domain.EvaluationRecord) error {
	if err := validateRecords(records); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertRun(ctx, tx, r); err != nil {
		return err
	}
	if err := insertEvaluationRows(ctx, tx, records); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete removes a run without evaluation rows. Returns ErrNotFound if not exists.
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM backtest_runs WHERE run_id = $1`, runID)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: run %s still has evaluation rows", storage.ErrInvalidInput, runID)
		}
		return fmt.Errorf("delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func insertRun(ctx context.Context, db execer, r *domain.Run) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	latency := make([]latencyJSON, 0, len(r.Latency))
	for _, l := range r.Latency {
		latency = append(latency, latencyJSON{
			Model:      l.Model,
			TextCount:  l.TextCount,
			ElapsedMs:  l.Elapsed.Milliseconds(),
			SecPerText: l.SecPerText,
		})
	}
	latencyData, err := json.Marshal(latency)
	if err != nil {
		return fmt.Errorf("marshal latency: %w", err)
	}

	query := `
		INSERT INTO backtest_runs (
			run_id, start_date, end_date, tickers, models,
			outcome, rows_kept, rows_aligned, latency, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = db.Exec(ctx, query,
		r.RunID, r.StartDate, r.EndDate, nonNil(r.Tickers), nonNil(r.Models),
		r.Outcome, r.RowsKept, r.RowsAligned, latencyData, r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.Run, error) {
	query := `
		SELECT run_id, start_date, end_date, tickers, models,
			outcome, rows_kept, rows_aligned, latency, created_at
		FROM backtest_runs
		WHERE run_id = $1
	`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// List retrieves all runs, newest first.
func (s *RunStore) List(ctx context.Context) ([]*domain.Run, error) {
	query := `
		SELECT run_id, start_date, end_date, tickers, models,
			outcome, rows_kept, rows_aligned, latency, created_at
		FROM backtest_runs
		ORDER BY created_at DESC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// scanRun scans a single row into a Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var r domain.Run
	var latencyData []byte

	err := row.Scan(
		&r.RunID, &r.StartDate, &r.EndDate, &r.Tickers, &r.Models,
		&r.Outcome, &r.RowsKept, &r.RowsAligned, &latencyData, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	var latency []latencyJSON
	if len(latencyData) > 0 {
		if err := json.Unmarshal(latencyData, &latency); err != nil {
			return nil, fmt.Errorf("unmarshal latency: %w", err)
		}
	}
	for _, l := range latency {
		r.Latency = append(r.Latency, domain.ModelLatency{
			Model:      l.Model,
			TextCount:  l.TextCount,
			Elapsed:    time.Duration(l.ElapsedMs) * time.Millisecond,
			SecPerText: l.SecPerText,
		})
	}
	r.CreatedAt = r.CreatedAt.UTC()

	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
