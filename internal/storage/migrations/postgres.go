package migrations

import (
	"context"
	"fmt"

	"wsb-sentiment-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded PostgreSQL files in lexical order
// and returns their names. Every file uses IF NOT EXISTS, so reapplying
// is a no-op.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(files))
	for _, m := range files {
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}
