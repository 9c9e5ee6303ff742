package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

const (
	statusSuccess     = "success"
	statusError       = "error"
	attrErrorType     = "error_type"
	attrUnknownStatus = "metamodel.status"
)

// TracingCollector implements metamodel.TracingCollector on an OpenTelemetry tracer.
// Spans are internal spans; the returned context carries the span, so logs and metrics
// recorded with it are correlated.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a collector on tracer, typically otel.Tracer("metamodel").
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan implements metamodel.TracingCollector.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, metamodel.SpanContext) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attributes(attrs)...),
	)

	return ctx, &Span{span: span}
}

// FinishSpan implements metamodel.TracingCollector. Spans not started by this collector are ignored.
func (t *TracingCollector) FinishSpan(spanCtx metamodel.SpanContext, status string, attrs map[string]string) {
	s, ok := spanCtx.(*Span)
	if !ok {
		return
	}

	s.span.SetAttributes(attributes(attrs)...)
	s.setStatus(status, attrs[attrErrorType])
	s.span.End()
}

// Span wraps an OpenTelemetry span as a metamodel.SpanContext.
type Span struct {
	span trace.Span
}

// SetStatus maps "success" and "error" to span status codes.
func (s *Span) SetStatus(status string) {
	s.setStatus(status, "")
}

// AddAttribute adds a string attribute to the span.
func (s *Span) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

// setStatus uses the error type, when known, as the status description.
func (s *Span) setStatus(status, errorType string) {
	switch status {
	case statusSuccess:
		s.span.SetStatus(codes.Ok, "")
	case statusError:
		description := errorType
		if description == "" {
			description = "operation failed"
		}
		s.span.SetStatus(codes.Error, description)
	default:
		s.span.SetAttributes(attribute.String(attrUnknownStatus, status))
	}
}

var (
	_ metamodel.TracingCollector = (*TracingCollector)(nil)
	_ metamodel.SpanContext      = (*Span)(nil)
)
