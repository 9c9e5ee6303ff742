// Package testdoubles provides spies for the observability interfaces of package metamodel.
//
//   - LogHandlerSpy: a slog.Handler that keeps every record, for use with slog.New
//   - ContextualLoggerSpy: captures context-aware log calls
//   - MetricsCollectorSpy: captures durations, counters and values with their labels
//   - TracingCollectorSpy: captures started and finished spans
package testdoubles
