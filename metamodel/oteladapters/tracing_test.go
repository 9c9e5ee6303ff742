package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/metamodel-go/metamodel/oteladapters"
)

func Test_TracingCollector_SpanLifecycle(t *testing.T) {
	testCases := []struct {
		name                string
		status              string
		endAttrs            map[string]string
		expectedCode        codes.Code
		expectedDescription string
	}{
		{name: "success", status: "success", endAttrs: map[string]string{"journal_length": "2"}, expectedCode: codes.Ok},
		{name: "error with type", status: "error", endAttrs: map[string]string{"error_type": "operation_failed"}, expectedCode: codes.Error, expectedDescription: "operation_failed"},
		{name: "error without type", status: "error", expectedCode: codes.Error, expectedDescription: "operation failed"},
		{name: "unknown status", status: "skipped", expectedCode: codes.Unset},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			provider, recorder := newTracerProvider()
			collector := oteladapters.NewTracingCollector(provider.Tracer("test"))

			// act
			ctx, span := collector.StartSpan(context.Background(), "metamodel.dispatch", map[string]string{"operation": "solve"})
			collector.FinishSpan(span, tc.status, tc.endAttrs)

			// assert
			assert.True(t, trace.SpanContextFromContext(ctx).IsValid())
			ended := recorder.Ended()
			require.Len(t, ended, 1)
			assert.Equal(t, "metamodel.dispatch", ended[0].Name())
			assert.Equal(t, trace.SpanKindInternal, ended[0].SpanKind())
			assert.Equal(t, "solve", spanAttr(ended[0], "operation"))
			assert.Equal(t, tc.expectedCode, ended[0].Status().Code)
			assert.Equal(t, tc.expectedDescription, ended[0].Status().Description)
			for k, v := range tc.endAttrs {
				assert.Equal(t, v, spanAttr(ended[0], k))
			}
			if tc.name == "unknown status" {
				assert.Equal(t, "skipped", spanAttr(ended[0], "metamodel.status"))
			}
		})
	}
}

func Test_Span_SetStatusAndAttributes(t *testing.T) {
	// arrange
	provider, recorder := newTracerProvider()
	collector := oteladapters.NewTracingCollector(provider.Tracer("test"))
	_, span := collector.StartSpan(context.Background(), "metamodel.snapshot", nil)

	// act
	span.AddAttribute("snapshot_key", "forest_20170331_0.json")
	span.SetStatus("success")
	collector.FinishSpan(span, "success", nil)

	// assert
	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "forest_20170331_0.json", spanAttr(ended[0], "snapshot_key"))
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
}

type foreignSpan struct{}

func (foreignSpan) SetStatus(string)            {}
func (foreignSpan) AddAttribute(string, string) {}

func Test_TracingCollector_IgnoresForeignSpans(t *testing.T) {
	provider, recorder := newTracerProvider()
	collector := oteladapters.NewTracingCollector(provider.Tracer("test"))

	assert.NotPanics(t, func() { collector.FinishSpan(foreignSpan{}, "success", nil) })
	assert.Empty(t, recorder.Ended())
}
