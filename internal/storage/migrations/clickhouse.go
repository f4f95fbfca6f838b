package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	chstore "wsb-sentiment-lab/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database when missing, applies the
// embedded ClickHouse files and returns a connection to that database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	database, err := chstore.DatabaseName(dsn)
	if err != nil {
		return nil, err
	}

	files, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}
	plan := make(map[string][]string, len(files))
	for _, m := range files {
		stmts, err := statements(m.SQL)
		if err != nil {
			return nil, fmt.Errorf("parse migration %s: %w", m.Name, err)
		}
		plan[m.Name] = stmts
	}

	if err := ensureDatabase(ctx, dsn, database); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse database %s: %w", database, err)
	}
	for _, m := range files {
		for _, stmt := range plan[m.Name] {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
	}
	return conn, nil
}

func ensureDatabase(ctx context.Context, dsn, database string) error {
	admin, err := chstore.NewConn(ctx, dsn, chstore.WithDatabase(""))
	if err != nil {
		return fmt.Errorf("connect clickhouse server: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(database)); err != nil {
		return fmt.Errorf("create database %s: %w", database, err)
	}
	return nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// statements splits a migration file into single statements for the native
// driver, which runs one per Exec. Line comments are dropped and semicolons
// inside quoted literals do not end a statement.
func statements(sql string) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		quote   byte
		comment bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case comment:
			if ch == '\n' {
				comment = false
				cur.WriteByte(ch)
			}
		case quote != 0:
			cur.WriteByte(ch)
			if ch == '\\' && i+1 < len(sql) {
				i++
				cur.WriteByte(sql[i])
			} else if ch == quote {
				if i+1 < len(sql) && sql[i+1] == quote {
					i++
					cur.WriteByte(sql[i])
				} else {
					quote = 0
				}
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			cur.WriteByte(ch)
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			comment = true
			i++
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quoted literal")
	}
	flush()
	return out, nil
}
