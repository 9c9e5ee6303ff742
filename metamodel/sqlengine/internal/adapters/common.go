package adapters

import (
	"context"
	"database/sql"
	"errors"
)

// DBAdapter defines the database operations the snapshot store needs.
// Statements arrive fully rendered by the query builder, so no placeholders are passed.
type DBAdapter interface {
	// Exec runs a statement and reports the number of affected rows.
	Exec(ctx context.Context, statement string) (int64, error)

	// QueryColumn runs a single-column query and returns the raw bytes of every row in order.
	// Snapshot names and payloads are both read this way.
	QueryColumn(ctx context.Context, query string) ([][]byte, error)
}

// collectColumn drains rows of a single-column result and always closes them.
func collectColumn(rows *sql.Rows) (values [][]byte, err error) {
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}

		values = append(values, value)
	}

	return values, rows.Err()
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		// some drivers cannot report it; the statement itself succeeded
		return -1, nil
	}

	return n, nil
}
