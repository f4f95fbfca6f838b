package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the connection pool shared by RunStore and EvaluationStore.
type Pool struct {
	*pgxpool.Pool
}

const applicationName = "wsb-sentiment-lab"

// execer is satisfied by *Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Pool sizing. Backtests write one run at a time and the results API is
// read-mostly, so a small pool is enough.
const (
	defaultMaxConns        = 8
	defaultMaxConnIdleTime = 5 * time.Minute
)

// NewPool parses dsn, applies the pool defaults the DSN leaves unset and
// pings the server before returning.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	if !dsnSets(config, "pool_max_conns") {
		config.MaxConns = defaultMaxConns
	}
	if !dsnSets(config, "pool_max_conn_idle_time") {
		config.MaxConnIdleTime = defaultMaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", config.ConnConfig.Host, err)
	}
	return &Pool{Pool: pool}, nil
}

// dsnSets reports whether the DSN sets key explicitly.
func dsnSets(config *pgxpool.Config, key string) bool {
	return strings.Contains(config.ConnString(), key+"=")
}

// SQLSTATE codes the stores translate into storage errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// isDuplicateKeyError reports a second insert of the same run or row key.
func isDuplicateKeyError(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// isForeignKeyError reports evaluation rows whose run was never stored.
func isForeignKeyError(err error) bool {
	return hasCode(err, codeForeignKeyViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
