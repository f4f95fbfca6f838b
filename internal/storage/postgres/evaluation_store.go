package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/storage"
)

// EvaluationStore implements storage.EvaluationStore using PostgreSQL.
type EvaluationStore struct {
	pool *Pool
}

// NewEvaluationStore creates a new EvaluationStore.
func NewEvaluationStore(pool *Pool) *EvaluationStore {
	return &EvaluationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EvaluationStore = (*EvaluationStore)(nil)

const evaluationColumns = `
	row_id, run_id, model, date, ticker,
	post_count, predicted, mean_score,
	positive_count, neutral_count, negative_count,
	next_trading_date, close_t, close_t1, realized, correct
`

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *EvaluationStore) InsertBulk(ctx context.Context, records []*domain.EvaluationRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertEvaluationRows(ctx, tx, records); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func validateRecords(records []*domain.EvaluationRecord) error {
	for _, r := range records {
		if r == nil || r.RowID == "" || r.RunID == "" || r.Model == "" {
			return storage.ErrInvalidInput
		}
	}
	return nil
}

// insertEvaluationRows queues every record in one batch on tx.
func insertEvaluationRows(ctx context.Context, tx pgx.Tx, records []*domain.EvaluationRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO evaluation_rows (` + evaluationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query,
			r.RowID, r.RunID, r.Model, r.Date, r.Ticker,
			r.PostCount, int16(r.Signal), r.MeanScore,
			r.PositiveCount, r.NeutralCount, r.NegativeCount,
			r.NextTradingDate, r.CloseT, r.CloseT1, int16(r.RealizedDirection), r.Correct,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			if isForeignKeyError(err) {
				return fmt.Errorf("%w: run %s does not exist", storage.ErrInvalidInput, records[0].RunID)
			}
			return fmt.Errorf("insert evaluation row in bulk: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves all records of a run, ordered by (date, ticker, model) ASC.
func (s *EvaluationStore) GetByRunID(ctx context.Context, runID string) ([]*domain.EvaluationRecord, error) {
	query := `
		SELECT ` + evaluationColumns + `
		FROM evaluation_rows
		WHERE run_id = $1
		ORDER BY date ASC, ticker ASC, model ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get evaluation rows by run id: %w", err)
	}
	defer rows.Close()

	return scanEvaluationRecords(rows)
}

// scanEvaluationRecords scans multiple rows into a slice of EvaluationRecord.
func scanEvaluationRecords(rows pgx.Rows) ([]*domain.EvaluationRecord, error) {
	var records []*domain.EvaluationRecord

	for rows.Next() {
		var r domain.EvaluationRecord
		var predicted, realized int16

		err := rows.Scan(
			&r.RowID, &r.RunID, &r.Model, &r.Date, &r.Ticker,
			&r.PostCount, &predicted, &r.MeanScore,
			&r.PositiveCount, &r.NeutralCount, &r.NegativeCount,
			&r.NextTradingDate, &r.CloseT, &r.CloseT1, &realized, &r.Correct,
		)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}

		r.Signal = domain.Direction(predicted)
		r.RealizedDirection = domain.Direction(realized)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluation rows: %w", err)
	}

	return records, nil
}
