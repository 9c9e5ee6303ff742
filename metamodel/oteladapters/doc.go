// Package oteladapters implements the MetaModel observability interfaces on OpenTelemetry.
//
// A typical wiring passes all three to the MetaModel:
//
//	mm, err := metamodel.New(ctx, "forest.lp",
//		metamodel.WithContextualLogger(oteladapters.NewSlogLogger("metamodel")),
//		metamodel.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("metamodel"))),
//		metamodel.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("metamodel"))),
//	)
//
// Logs emitted inside a dispatch or replay span carry that span's trace and span IDs.
package oteladapters
