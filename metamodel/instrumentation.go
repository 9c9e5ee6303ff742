package metamodel

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	logMsgOperation            = "metamodel operation: "
	logMsgDispatched           = "dispatched"
	logMsgDispatchFailed       = "dispatch failed"
	logMsgRegistryAttached     = "registry attached"
	logMsgRegistryReattached   = "registry reattached"
	logMsgRegistryAttachFailed = "registry could not be attached, skipping"
	logMsgSnapshotTaken        = "snapshot taken"
	logMsgSnapshotFailed       = "snapshot failed"
	logMsgReplayStarted        = "replay started"
	logMsgReplayCompleted      = "replay completed"
	logMsgReplayFailed         = "replay failed"
	logAttrError               = "error"
	logAttrOperation           = "operation"
	logAttrRegistry            = "registry"
	logAttrRecorded            = "recorded"
	logAttrJournalLength       = "journal_length"
	logAttrSnapshotKey         = "snapshot_key"
	logAttrModelName           = "model_name"
	logAttrEntryIndex          = "entry_index"
	logAttrDurationMS          = "duration_ms"

	metricDispatchDuration = "metamodel_dispatch_duration_seconds"
	metricDispatchErrors   = "metamodel_dispatch_errors_total"
	metricJournalEntries   = "metamodel_journal_entries"
	metricSnapshotDuration = "metamodel_snapshot_duration_seconds"
	metricReplayDuration   = "metamodel_replay_duration_seconds"

	spanNameDispatch    = "metamodel.dispatch"
	spanNameSnapshot    = "metamodel.snapshot"
	spanNameReconstruct = "metamodel.reconstruct"

	spanAttrOperation   = "operation"
	spanAttrErrorType   = "error_type"
	spanAttrJournalLen  = "journal_length"
	spanAttrSnapshotKey = "snapshot_key"
	spanAttrDurationMS  = "duration_ms"
	labelStatus         = "status"
	labelOperation      = "operation"
	labelErrorType      = "error_type"
	statusSuccess       = "success"
	statusError         = "error"
	errorTypeEmptyName  = "empty_name"
	errorTypeArgument   = "non_serializable_argument"
	errorTypeRegistry   = "registry_not_found"
	errorTypeOperation  = "operation_not_found"
	errorTypeExecution  = "operation_failed"
	errorTypeStore      = "store_failed"
	errorTypeReplay     = "replay_failed"
)

type observers struct {
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// logDebug logs at debug level to every configured logger.
func (o observers) logDebug(ctx context.Context, msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(logMsgOperation+msg, args...)
	}

	if o.contextualLogger != nil {
		o.contextualLogger.DebugContext(ctx, logMsgOperation+msg, args...)
	}
}

// logInfo logs operational information at info level to every configured logger.
func (o observers) logInfo(ctx context.Context, msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(logMsgOperation+msg, args...)
	}

	if o.contextualLogger != nil {
		o.contextualLogger.InfoContext(ctx, logMsgOperation+msg, args...)
	}
}

// logWarn logs non-critical issues like skipped registries.
func (o observers) logWarn(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if o.logger != nil {
		o.logger.Warn(msg, allArgs...)
	}

	if o.contextualLogger != nil {
		o.contextualLogger.WarnContext(ctx, msg, allArgs...)
	}
}

// logError logs failures at the error level.
func (o observers) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if o.logger != nil {
		o.logger.Error(msg, allArgs...)
	}

	if o.contextualLogger != nil {
		o.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	}
}

// recordDuration records a duration metric, context-aware when the collector supports it.
func (o observers) recordDuration(ctx context.Context, metric string, d time.Duration, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if contextual, ok := o.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	o.metricsCollector.RecordDuration(metric, d, labels)
}

// incrementCounter increments a counter metric, context-aware when the collector supports it.
func (o observers) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if contextual, ok := o.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	o.metricsCollector.IncrementCounter(metric, labels)
}

// recordValue records a gauge-like value, context-aware when the collector supports it.
func (o observers) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if contextual, ok := o.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	o.metricsCollector.RecordValue(metric, value, labels)
}

// startSpan starts a tracing span if the tracing collector is configured.
func (o observers) startSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext) {
	if o.tracingCollector == nil {
		return ctx, nil
	}

	return o.tracingCollector.StartSpan(ctx, name, attrs)
}

// finishSpan finishes a tracing span if one was started.
func (o observers) finishSpan(span SpanContext, status string, attrs map[string]string) {
	if o.tracingCollector == nil || span == nil {
		return
	}

	o.tracingCollector.FinishSpan(span, status, attrs)
}

// finishSpanWithDuration sets the duration attribute and finishes the span.
func (o observers) finishSpanWithDuration(span SpanContext, status string, d time.Duration, attrs map[string]string) {
	if span == nil {
		return
	}

	if attrs == nil {
		attrs = make(map[string]string)
	}

	attrs[spanAttrDurationMS] = fmt.Sprintf("%.3f", toMilliseconds(d))
	o.finishSpan(span, status, attrs)
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
