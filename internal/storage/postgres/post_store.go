package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"wsb-sentiment-lab/internal/domain"
	"wsb-sentiment-lab/internal/storage"
)

// PostStore implements storage.PostStore using PostgreSQL.
type PostStore struct {
	pool *Pool
}

// NewPostStore creates a new PostStore.
func NewPostStore(pool *Pool) *PostStore {
	return &PostStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PostStore = (*PostStore)(nil)

const postColumns = `
	post_id, ticker, model, title, body, subreddit,
	label, polarity, score, created_at
`

// InsertBulk adds multiple posts atomically. Fails entire batch on any duplicate.
func (s *PostStore) InsertBulk(ctx context.Context, posts []*domain.ScoredPost) error {
	if len(posts) == 0 {
		return nil
	}
	for _, p := range posts {
		if p == nil || p.PostID == "" || p.Ticker == "" || p.Model == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO scored_posts (` + postColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	batch := &pgx.Batch{}
	for _, p := range posts {
		batch.Queue(query,
			p.PostID, p.Ticker, p.Model, p.Title, p.Body, p.Subreddit,
			p.Label, int16(p.Polarity), p.Score, p.CreatedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range posts {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert scored post in bulk: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByTicker retrieves a ticker's posts, ordered by (created_at, post_id) ASC.
// An empty model matches every model.
func (s *PostStore) GetByTicker(ctx context.Context, ticker, model string) ([]*domain.ScoredPost, error) {
	query := `
		SELECT ` + postColumns + `
		FROM scored_posts
		WHERE ticker = $1 AND ($2 = '' OR model = $2)
		ORDER BY created_at ASC, post_id ASC
	`

	rows, err := s.pool.Query(ctx, query, ticker, model)
	if err != nil {
		return nil, fmt.Errorf("get scored posts by ticker: %w", err)
	}
	defer rows.Close()

	var posts []*domain.ScoredPost
	for rows.Next() {
		var p domain.ScoredPost
		var polarity int16

		err := rows.Scan(
			&p.PostID, &p.Ticker, &p.Model, &p.Title, &p.Body, &p.Subreddit,
			&p.Label, &polarity, &p.Score, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan scored post: %w", err)
		}

		p.Polarity = domain.Polarity(polarity)
		p.CreatedAt = p.CreatedAt.UTC()
		posts = append(posts, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scored posts: %w", err)
	}

	return posts, nil
}
