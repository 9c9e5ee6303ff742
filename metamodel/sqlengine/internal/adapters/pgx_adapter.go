package adapters

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGXAdapter implements DBAdapter for pgxpool.Pool.
// Reads go to the replica pool if one is configured; writes always go to the primary.
type PGXAdapter struct {
	primary *pgxpool.Pool
	replica *pgxpool.Pool
}

// NewPGXAdapter creates a PGX adapter on a single pool.
func NewPGXAdapter(pool *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{primary: pool}
}

// NewPGXAdapterWithReplica creates a PGX adapter that sends snapshot loads and listings to replica.
func NewPGXAdapterWithReplica(pool *pgxpool.Pool, replica *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{primary: pool, replica: replica}
}

// Exec runs a statement on the primary pool.
func (p *PGXAdapter) Exec(ctx context.Context, statement string) (int64, error) {
	tag, err := p.primary.Exec(ctx, statement)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

// QueryColumn collects a single text or json column as raw bytes.
func (p *PGXAdapter) QueryColumn(ctx context.Context, query string) ([][]byte, error) {
	rows, err := p.reader().Query(ctx, query)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowTo[[]byte])
}

func (p *PGXAdapter) reader() *pgxpool.Pool {
	if p.replica != nil {
		return p.replica
	}

	return p.primary
}
