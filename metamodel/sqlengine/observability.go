package sqlengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

const (
	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgBuildDeleteQueryFailed = "failed to build delete query"
	logMsgBuildInsertQueryFailed = "failed to build insert query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgDBExecFailed           = "database execution failed"
	logMsgSnapshotSaved          = "snapshot saved"
	logMsgSnapshotLoaded         = "snapshot loaded"
	logMsgSQLExecuted            = "executed sql for: "
	logMsgOperation              = "snapshot store operation: "
	logAttrError                 = "error"
	logAttrQuery                 = "query"
	logAttrSnapshotKey           = "snapshot_key"
	logAttrBytes                 = "bytes"
	logAttrDurationMS            = "duration_ms"

	metricStoreDuration = "metamodel_sqlstore_duration_seconds"
	metricStoreErrors   = "metamodel_sqlstore_errors_total"

	spanNamePrefix      = "metamodel.sqlstore."
	spanAttrOperation   = "operation"
	spanAttrSnapshotKey = "snapshot_key"
	spanAttrTable       = "table"
	spanAttrErrorType   = "error_type"
	spanAttrDurationMS  = "duration_ms"
	labelStatus         = "status"

	operationCreateTable = "create_table"
	operationSave        = "save"
	operationLoad        = "load"
	operationList        = "list"

	statusSuccess = "success"
	statusError   = "error"

	errorTypeBuildQuery    = "build_query"
	errorTypeDatabaseExec  = "database_exec"
	errorTypeDatabaseQuery = "database_query"
	errorTypeNotFound      = "not_found"
)

// logSQL logs SQL statements with execution time at debug level.
func (s *SnapshotStore) logSQL(ctx context.Context, action, statement string, duration time.Duration) {
	args := []any{logAttrDurationMS, toMilliseconds(duration), logAttrQuery, statement}

	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
	}
}

// logOperation logs operational information at info level.
func (s *SnapshotStore) logOperation(ctx context.Context, action string, args ...any) {
	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

// logError logs error information at the error level.
func (s *SnapshotStore) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if s.logger != nil {
		s.logger.Error(message, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// recordDuration records the duration of a store operation, context-aware if the collector supports it.
func (s *SnapshotStore) recordDuration(ctx context.Context, operation, status string, duration time.Duration) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       status,
	}

	if contextual, ok := s.metricsCollector.(metamodel.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricStoreDuration, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metricStoreDuration, duration, labels)
}

// recordError increments the database error counter.
func (s *SnapshotStore) recordError(ctx context.Context, operation, errorType string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       statusError,
		spanAttrErrorType: errorType,
	}

	if contextual, ok := s.metricsCollector.(metamodel.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricStoreErrors, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metricStoreErrors, labels)
}

// startSpan starts a tracing span for a store operation if the tracing collector is configured.
func (s *SnapshotStore) startSpan(ctx context.Context, operation, key string) (context.Context, metamodel.SpanContext) {
	if s.tracingCollector == nil {
		return ctx, nil
	}

	return s.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{
		spanAttrOperation:   operation,
		spanAttrSnapshotKey: key,
		spanAttrTable:       s.tableName,
	})
}

// finishSpan finishes a span with its status, duration and, for failures, the error type.
func (s *SnapshotStore) finishSpan(span metamodel.SpanContext, status, errorType string, duration time.Duration) {
	if s.tracingCollector == nil || span == nil {
		return
	}

	attrs := map[string]string{
		spanAttrDurationMS: fmt.Sprintf("%.3f", toMilliseconds(duration)),
	}

	if errorType != "" {
		attrs[spanAttrErrorType] = errorType
	}

	s.tracingCollector.FinishSpan(span, status, attrs)
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
