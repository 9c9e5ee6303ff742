package sqlengine

import (
	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

// Option defines a functional option for configuring SnapshotStore.
type Option func(*SnapshotStore) error

// WithTableName sets the table name for the SnapshotStore.
// Only letters, digits and underscores are accepted because the name ends up in DDL.
func WithTableName(tableName string) Option {
	return func(s *SnapshotStore) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		if !tableNamePattern.MatchString(tableName) {
			return ErrInvalidTableName
		}

		s.tableName = tableName

		return nil
	}
}

// WithDialect selects the SQL dialect used to render statements: "postgres" (default) or "sqlite3".
func WithDialect(dialect string) Option {
	return func(s *SnapshotStore) error {
		switch dialect {
		case DialectPostgres, DialectSQLite:
			s.dialect = dialect
			return nil
		default:
			return ErrUnsupportedDialect
		}
	}
}

// WithClock sets the clock used for the saved_at column.
func WithClock(clock metamodel.Clock) Option {
	return func(s *SnapshotStore) error {
		if clock == nil {
			return ErrNilClock
		}

		s.clock = clock

		return nil
	}
}

// WithLogger sets the logger for the SnapshotStore.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: saved and loaded snapshots with durations (production-safe)
// Error level: Failures that cause the operation to fail.
func WithLogger(logger metamodel.Logger) Option {
	return func(s *SnapshotStore) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the SnapshotStore.
// It receives the same messages as WithLogger, with the context for trace correlation.
func WithContextualLogger(logger metamodel.ContextualLogger) Option {
	return func(s *SnapshotStore) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the SnapshotStore.
// It receives save/load/list durations and database error counts.
func WithMetrics(collector metamodel.MetricsCollector) Option {
	return func(s *SnapshotStore) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the SnapshotStore.
func WithTracing(collector metamodel.TracingCollector) Option {
	return func(s *SnapshotStore) error {
		s.tracingCollector = collector
		return nil
	}
}
