package adapters

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// SQLXAdapter implements DBAdapter for sqlx.DB.
type SQLXAdapter struct {
	db *sqlx.DB
}

// NewSQLXAdapter creates a new SQLX adapter.
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

// Exec executes a statement using the sqlx.DB.
func (s *SQLXAdapter) Exec(ctx context.Context, statement string) (int64, error) {
	result, err := s.db.ExecContext(ctx, statement)
	if err != nil {
		return 0, err
	}

	return rowsAffected(result)
}

// QueryColumn lets sqlx scan the single column straight into a slice.
func (s *SQLXAdapter) QueryColumn(ctx context.Context, query string) ([][]byte, error) {
	var values [][]byte
	if err := s.db.SelectContext(ctx, &values, query); err != nil {
		return nil, err
	}

	return values, nil
}
