package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/veritas-eu/orchestrator-core/core"
)

const tracerName = "github.com/veritas-eu/orchestrator-core"

// Tracer implements core.Telemetry over an OpenTelemetry TracerProvider.
type Tracer struct {
	tracer oteltrace.Tracer
	meter  *Meter
}

func NewTracer(meter *Meter) *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName), meter: meter}
}

func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

func (t *Tracer) RecordMetric(name string, value float64, labels map[string]string) {
	if t.meter == nil {
		return
	}
	t.meter.RecordGeneric(name, value, labels)
}

type otelSpan struct {
	span oteltrace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, toString(v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func toString(v interface{}) string {
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return fmt.Sprintf("%v", v)
}

// traceSpanContext is the subset of an OTel span context used for log
// correlation (withTraceFields in logger.go).
type traceSpanContext struct {
	traceID string
	spanID  string
}

func traceContext(ctx context.Context) *traceSpanContext {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return &traceSpanContext{traceID: sc.TraceID().String(), spanID: sc.SpanID().String()}
}

// SetSpanAttributes is a package-level convenience mirroring the teacher's
// telemetry.SetSpanAttributes(ctx, attrs) call sites in the orchestrator's
// hot path, where threading a *Tracer through every function would be
// noisier than pulling the active span from ctx.
func SetSpanAttributes(ctx context.Context, attrs map[string]interface{}) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	for k, v := range attrs {
		(&otelSpan{span: span}).SetAttribute(k, v)
	}
}

// AddSpanEvent records a named event with attributes on the active span.
func AddSpanEvent(ctx context.Context, name string, attrs map[string]interface{}) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, toString(v)))
	}
	span.AddEvent(name, oteltrace.WithAttributes(kvs...))
}
