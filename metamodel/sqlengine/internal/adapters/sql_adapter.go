package adapters

import (
	"context"
	"database/sql"
)

// SQLAdapter implements DBAdapter for sql.DB, e.g. with the pure Go sqlite driver.
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter creates a new SQL adapter.
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

// Exec executes a statement using the sql.DB.
func (s *SQLAdapter) Exec(ctx context.Context, statement string) (int64, error) {
	result, err := s.db.ExecContext(ctx, statement)
	if err != nil {
		return 0, err
	}

	return rowsAffected(result)
}

// QueryColumn scans every row of a single-column query.
func (s *SQLAdapter) QueryColumn(ctx context.Context, query string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return collectColumn(rows)
}
