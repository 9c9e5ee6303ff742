package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
	"github.com/AntonStoeckl/metamodel-go/metamodel/sqlengine/internal/adapters"
)

const (
	// DialectPostgres renders statements for PostgreSQL.
	DialectPostgres = "postgres"

	// DialectSQLite renders statements for SQLite.
	DialectSQLite = "sqlite3"

	defaultTableName = "metamodel_snapshots"
	colName          = "name"
	colSnapshotID    = "snapshot_id"
	colPayload       = "payload"
	colSavedAt       = "saved_at"
)

var (
	// ErrNilDatabaseConnection is returned when a constructor receives a nil connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when WithTableName receives an empty name.
	ErrEmptyTableName = errors.New("snapshot table name must not be empty")

	// ErrInvalidTableName is returned for table names that are not plain identifiers.
	ErrInvalidTableName = errors.New("snapshot table name must be a plain identifier")

	// ErrUnsupportedDialect is returned for dialects other than postgres and sqlite3.
	ErrUnsupportedDialect = errors.New("unsupported sql dialect")

	// ErrNilClock is returned when WithClock receives nil.
	ErrNilClock = errors.New("clock must not be nil")

	// ErrCreatingTableFailed is returned when CreateTable fails.
	ErrCreatingTableFailed = errors.New("creating snapshot table failed")

	// ErrListingSnapshotsFailed is returned when List fails.
	ErrListingSnapshotsFailed = errors.New("listing snapshots failed")
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var createTableDDL = map[string]string{
	DialectPostgres: `CREATE TABLE IF NOT EXISTS %q (
	name TEXT PRIMARY KEY,
	snapshot_id UUID NOT NULL,
	payload JSON NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
)`,
	DialectSQLite: `CREATE TABLE IF NOT EXISTS %q (
	name TEXT PRIMARY KEY,
	snapshot_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	saved_at TEXT NOT NULL
)`,
}

// SnapshotStore keeps snapshot records in one SQL table, one row per snapshot key.
// Save replaces an existing row by deleting and inserting; the two statements are not atomic.
type SnapshotStore struct {
	db               adapters.DBAdapter
	tableName        string
	dialect          string
	clock            metamodel.Clock
	logger           metamodel.Logger
	contextualLogger metamodel.ContextualLogger
	metricsCollector metamodel.MetricsCollector
	tracingCollector metamodel.TracingCollector
}

// NewSnapshotStoreFromPGXPool creates a new SnapshotStore using a pgx Pool with optional configuration.
func NewSnapshotStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*SnapshotStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewPGXAdapter(db), options)
}

// NewSnapshotStoreFromPGXPoolWithReplica creates a new SnapshotStore whose loads and listings go to a replica.
func NewSnapshotStoreFromPGXPoolWithReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*SnapshotStore, error) {
	if db == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewPGXAdapterWithReplica(db, replica), options)
}

// NewSnapshotStoreFromSQLDB creates a new SnapshotStore using a sql.DB with optional configuration.
func NewSnapshotStoreFromSQLDB(db *sql.DB, options ...Option) (*SnapshotStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewSQLAdapter(db), options)
}

// NewSnapshotStoreFromSQLX creates a new SnapshotStore using a sqlx.DB with optional configuration.
func NewSnapshotStoreFromSQLX(db *sqlx.DB, options ...Option) (*SnapshotStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewSQLXAdapter(db), options)
}

func newSnapshotStore(db adapters.DBAdapter, options []Option) (*SnapshotStore, error) {
	s := &SnapshotStore{
		db:        db,
		tableName: defaultTableName,
		dialect:   DialectPostgres,
		clock:     metamodel.SystemClock(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// TableName returns the configured table name.
func (s *SnapshotStore) TableName() string {
	return s.tableName
}

// CreateTable creates the snapshot table if it does not exist yet.
func (s *SnapshotStore) CreateTable(ctx context.Context) error {
	ddl := fmt.Sprintf(createTableDDL[s.dialect], s.tableName)

	start := time.Now()
	_, err := s.db.Exec(ctx, ddl)
	s.logSQL(ctx, operationCreateTable, ddl, time.Since(start))

	if err != nil {
		s.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, ddl)
		s.recordError(ctx, operationCreateTable, errorTypeDatabaseExec)

		return errors.Join(ErrCreatingTableFailed, err)
	}

	return nil
}

// Save implements metamodel.SnapshotStore.
func (s *SnapshotStore) Save(ctx context.Context, key string, data []byte) error {
	name, err := metamodel.CleanSnapshotKey(key)
	if err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, operationSave, name)
	start := time.Now()

	fail := func(errorType string, cause error) error {
		s.recordError(ctx, operationSave, errorType)
		s.recordDuration(ctx, operationSave, statusError, time.Since(start))
		s.finishSpan(span, statusError, errorType, time.Since(start))

		return errors.Join(metamodel.ErrSavingSnapshotFailed, cause)
	}

	deleteSQL, _, err := s.builder().Delete(s.tableName).Where(goqu.C(colName).Eq(name)).ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildDeleteQueryFailed, err)
		return fail(errorTypeBuildQuery, err)
	}

	insertSQL, _, err := s.builder().Insert(s.tableName).Rows(goqu.Record{
		colName:       name,
		colSnapshotID: uuid.NewString(),
		colPayload:    string(data),
		colSavedAt:    s.clock.Now().UTC(),
	}).ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildInsertQueryFailed, err)
		return fail(errorTypeBuildQuery, err)
	}

	if err := s.exec(ctx, operationSave, deleteSQL); err != nil {
		return fail(errorTypeDatabaseExec, err)
	}

	if err := s.exec(ctx, operationSave, insertSQL); err != nil {
		return fail(errorTypeDatabaseExec, err)
	}

	duration := time.Since(start)
	s.logOperation(ctx, logMsgSnapshotSaved, logAttrSnapshotKey, name, logAttrBytes, len(data), logAttrDurationMS, toMilliseconds(duration))
	s.recordDuration(ctx, operationSave, statusSuccess, duration)
	s.finishSpan(span, statusSuccess, "", duration)

	return nil
}

// Load implements metamodel.SnapshotStore.
func (s *SnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	name, err := metamodel.CleanSnapshotKey(key)
	if err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, operationLoad, name)
	start := time.Now()

	fail := func(errorType string, cause error) ([]byte, error) {
		s.recordError(ctx, operationLoad, errorType)
		s.recordDuration(ctx, operationLoad, statusError, time.Since(start))
		s.finishSpan(span, statusError, errorType, time.Since(start))

		return nil, cause
	}

	selectSQL, _, err := s.builder().
		From(s.tableName).
		Select(colPayload).
		Where(goqu.C(colName).Eq(name)).
		Limit(1).
		ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildSelectQueryFailed, err)
		return fail(errorTypeBuildQuery, errors.Join(metamodel.ErrLoadingSnapshotFailed, err))
	}

	payloads, err := s.queryColumn(ctx, operationLoad, selectSQL)
	if err != nil {
		return fail(errorTypeDatabaseQuery, errors.Join(metamodel.ErrLoadingSnapshotFailed, err))
	}

	if len(payloads) == 0 {
		return fail(errorTypeNotFound, fmt.Errorf("%w: %s", metamodel.ErrSnapshotNotFound, name))
	}

	duration := time.Since(start)
	s.logOperation(ctx, logMsgSnapshotLoaded, logAttrSnapshotKey, name, logAttrBytes, len(payloads[0]), logAttrDurationMS, toMilliseconds(duration))
	s.recordDuration(ctx, operationLoad, statusSuccess, duration)
	s.finishSpan(span, statusSuccess, "", duration)

	return payloads[0], nil
}

// List implements metamodel.SnapshotLister. Keys come back in lexical order.
func (s *SnapshotStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, span := s.startSpan(ctx, operationList, prefix)
	start := time.Now()

	fail := func(errorType string, cause error) ([]string, error) {
		s.recordError(ctx, operationList, errorType)
		s.recordDuration(ctx, operationList, statusError, time.Since(start))
		s.finishSpan(span, statusError, errorType, time.Since(start))

		return nil, errors.Join(ErrListingSnapshotsFailed, cause)
	}

	ds := s.builder().From(s.tableName).Select(colName).Order(goqu.C(colName).Asc())
	if prefix != "" {
		ds = ds.Where(goqu.L("? LIKE ? ESCAPE '"+likeEscape+"'", goqu.C(colName), likePrefixPattern(prefix)))
	}

	selectSQL, _, err := ds.ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildSelectQueryFailed, err)
		return fail(errorTypeBuildQuery, err)
	}

	names, err := s.queryColumn(ctx, operationList, selectSQL)
	if err != nil {
		return fail(errorTypeDatabaseQuery, err)
	}

	keys := make([]string, 0, len(names))
	for _, n := range names {
		// sqlite matches LIKE case-insensitively, so the prefix is checked exactly here.
		if strings.HasPrefix(string(n), prefix) {
			keys = append(keys, string(n))
		}
	}

	duration := time.Since(start)
	s.recordDuration(ctx, operationList, statusSuccess, duration)
	s.finishSpan(span, statusSuccess, "", duration)

	return keys, nil
}

const likeEscape = "!"

var likeEscaper = strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")

// likePrefixPattern matches every value starting with prefix, with LIKE wildcards taken literally.
// An explicit escape character keeps backslashes literal in both dialects.
func likePrefixPattern(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

func (s *SnapshotStore) builder() goqu.DialectWrapper {
	return goqu.Dialect(s.dialect)
}

// exec executes one statement and logs it with its duration.
func (s *SnapshotStore) exec(ctx context.Context, operation, statement string) error {
	start := time.Now()
	_, err := s.db.Exec(ctx, statement)
	s.logSQL(ctx, operation, statement, time.Since(start))

	if err != nil {
		s.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, statement)
		return err
	}

	return nil
}

// queryColumn runs a single-column query and collects every value.
func (s *SnapshotStore) queryColumn(ctx context.Context, operation, query string) ([][]byte, error) {
	start := time.Now()
	values, err := s.db.QueryColumn(ctx, query)
	s.logSQL(ctx, operation, query, time.Since(start))

	if err != nil {
		s.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, query)
		return nil, err
	}

	return values, nil
}

var (
	_ metamodel.SnapshotStore  = (*SnapshotStore)(nil)
	_ metamodel.SnapshotLister = (*SnapshotStore)(nil)
)
