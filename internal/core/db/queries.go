package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries provides access to named SQL queries loaded from embedded .sql
// files. Uses dotsql for named query management and sqlx for execution.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
}

// LoadQueries loads all .sql files from the embedded filesystem.
// Named queries accessible by name (e.g., "get-audience", "list-audiences").
func LoadQueries(conn *sqlx.DB) (*Queries, error) {
	var combinedSQL string

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}

		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		combinedSQL += string(content) + "\n"
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combinedSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	return &Queries{dot: dot, db: conn}, nil
}

// ExecContext executes a named query with placeholder conversion for
// database compatibility. sqlx Rebind converts ? placeholders to $1, $2
// for PostgreSQL.
func (q *Queries) ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return nil, fmt.Errorf("query not found: %s", name)
	}
	return q.db.ExecContext(ctx, q.db.Rebind(query), args...)
}

// GetContext retrieves a single row into dest struct using a named query.
func (q *Queries) GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	query, err := q.dot.Raw(name)
	if err != nil {
		return fmt.Errorf("query not found: %s", name)
	}
	return q.db.GetContext(ctx, dest, q.db.Rebind(query), args...)
}

// SelectContext retrieves multiple rows into dest slice using a named query.
func (q *Queries) SelectContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	query, err := q.dot.Raw(name)
	if err != nil {
		return fmt.Errorf("query not found: %s", name)
	}
	return q.db.SelectContext(ctx, dest, q.db.Rebind(query), args...)
}
