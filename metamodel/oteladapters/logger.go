package oteladapters

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

// NewSlogLogger returns a *slog.Logger writing through the OpenTelemetry slog bridge to the global
// LoggerProvider. It satisfies both metamodel.Logger and metamodel.ContextualLogger.
func NewSlogLogger(name string) *slog.Logger {
	return otelslog.NewLogger(name)
}

// NewSlogLoggerWithProvider is NewSlogLogger for an explicit LoggerProvider.
func NewSlogLoggerWithProvider(name string, provider log.LoggerProvider) *slog.Logger {
	return otelslog.NewLogger(name, otelslog.WithLoggerProvider(provider))
}

// Logger emits records through the OpenTelemetry log API directly.
// The plain methods emit without a span context; prefer the ...Context variants.
type Logger struct {
	logger log.Logger
}

// NewLogger wraps an OpenTelemetry log.Logger.
func NewLogger(logger log.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.emit(context.Background(), log.SeverityDebug, msg, args)
}

func (l *Logger) Info(msg string, args ...any) {
	l.emit(context.Background(), log.SeverityInfo, msg, args)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.emit(context.Background(), log.SeverityWarn, msg, args)
}

func (l *Logger) Error(msg string, args ...any) {
	l.emit(context.Background(), log.SeverityError, msg, args)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityDebug, msg, args)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityInfo, msg, args)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityWarn, msg, args)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityError, msg, args)
}

// emit builds one record; args are slog-style key/value pairs and a dangling key is dropped.
func (l *Logger) emit(ctx context.Context, severity log.Severity, msg string, args []any) {
	if !l.logger.Enabled(ctx, log.EnabledParameters{Severity: severity}) {
		return
	}

	var record log.Record
	record.SetTimestamp(time.Now())
	record.SetSeverity(severity)
	record.SetSeverityText(severity.String())
	record.SetBody(log.StringValue(msg))

	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}

		record.AddAttributes(keyValue(key, args[i+1]))
	}

	l.logger.Emit(ctx, record)
}

// keyValue keeps numbers and booleans typed; everything else is rendered as a string.
func keyValue(key string, v any) log.KeyValue {
	switch value := v.(type) {
	case string:
		return log.String(key, value)
	case bool:
		return log.Bool(key, value)
	case int:
		return log.Int(key, value)
	case int64:
		return log.Int64(key, value)
	case float64:
		return log.Float64(key, value)
	case error:
		return log.String(key, value.Error())
	case fmt.Stringer:
		return log.String(key, value.String())
	default:
		return log.String(key, slog.AnyValue(v).String())
	}
}

var (
	_ metamodel.Logger           = (*Logger)(nil)
	_ metamodel.ContextualLogger = (*Logger)(nil)
	_ metamodel.Logger           = (*slog.Logger)(nil)
	_ metamodel.ContextualLogger = (*slog.Logger)(nil)
)
