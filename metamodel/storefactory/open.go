package storefactory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver for the sql and sqlx clients
	_ "modernc.org/sqlite" // pure Go sqlite driver

	"github.com/AntonStoeckl/metamodel-go/metamodel"
	"github.com/AntonStoeckl/metamodel-go/metamodel/filestore"
	"github.com/AntonStoeckl/metamodel-go/metamodel/s3store"
	"github.com/AntonStoeckl/metamodel-go/metamodel/sqlengine"
)

var (
	// ErrUnknownDriver is returned for drivers other than fs, s3, sqlite and postgres.
	ErrUnknownDriver = errors.New("unknown snapshot store driver")

	// ErrUnknownClient is returned for postgres clients other than pgx, sql and sqlx.
	ErrUnknownClient = errors.New("unknown postgres client")

	// ErrMissingDSN is returned when the postgres driver is selected without a DSN.
	ErrMissingDSN = errors.New("postgres dsn required")
)

// Handle owns an opened store and the connections behind it.
type Handle struct {
	Store   metamodel.SnapshotStore
	Driver  string
	closers []func() error
}

// Close releases the connections opened for the store.
func (h *Handle) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i]())
	}
	h.closers = nil

	return errors.Join(errs...)
}

// Open opens the store cfg selects. SQL options are passed to sqlengine for the sql drivers.
func Open(ctx context.Context, cfg Config, sqlOptions ...sqlengine.Option) (*Handle, error) {
	switch cfg.Driver {
	case DriverFS:
		store, err := filestore.New(cfg.Dir)
		if err != nil {
			return nil, err
		}

		return &Handle{Store: store, Driver: cfg.Driver}, nil

	case DriverS3:
		store, err := s3store.New(ctx, s3store.Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			SessionToken:    cfg.S3.SessionToken,
			PathStyle:       cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}

		return &Handle{Store: store, Driver: cfg.Driver}, nil

	case DriverSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}

		options := append([]sqlengine.Option{sqlengine.WithDialect(sqlengine.DialectSQLite)}, sqlOptions...)
		store, err := sqlengine.NewSnapshotStoreFromSQLDB(db, withTable(cfg, options)...)

		return finishSQL(ctx, cfg, store, err, db.Close)

	case DriverPostgres:
		return openPostgres(ctx, cfg, sqlOptions)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg Config, sqlOptions []sqlengine.Option) (*Handle, error) {
	if cfg.PostgresDSN == "" {
		return nil, ErrMissingDSN
	}

	options := withTable(cfg, append([]sqlengine.Option{sqlengine.WithDialect(sqlengine.DialectPostgres)}, sqlOptions...))

	switch cfg.PostgresClient {
	case ClientPGX:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open pgx pool: %w", err)
		}

		store, err := sqlengine.NewSnapshotStoreFromPGXPool(pool, options...)

		return finishSQL(ctx, cfg, store, err, func() error { pool.Close(); return nil })

	case ClientSQL:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}

		store, err := sqlengine.NewSnapshotStoreFromSQLDB(db, options...)

		return finishSQL(ctx, cfg, store, err, db.Close)

	case ClientSQLX:
		db, err := sqlx.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}

		store, err := sqlengine.NewSnapshotStoreFromSQLX(db, options...)

		return finishSQL(ctx, cfg, store, err, db.Close)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownClient, cfg.PostgresClient)
	}
}

func withTable(cfg Config, options []sqlengine.Option) []sqlengine.Option {
	if cfg.Table == "" {
		return options
	}

	return append(options, sqlengine.WithTableName(cfg.Table))
}

// finishSQL creates the table if configured and closes the connection on any failure.
func finishSQL(ctx context.Context, cfg Config, store *sqlengine.SnapshotStore, err error, closeDB func() error) (*Handle, error) {
	if err != nil {
		return nil, errors.Join(err, closeDB())
	}

	if cfg.CreateTable {
		if err := store.CreateTable(ctx); err != nil {
			return nil, errors.Join(err, closeDB())
		}
	}

	return &Handle{Store: store, Driver: cfg.Driver, closers: []func() error{closeDB}}, nil
}
