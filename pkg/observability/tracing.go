package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// noopSpan implements Span without recording anything
type noopSpan struct{}

func (s noopSpan) End()                                                    {}
func (s noopSpan) SetAttribute(key string, value interface{})              {}
func (s noopSpan) AddEvent(name string, attributes map[string]interface{}) {}
func (s noopSpan) RecordError(err error)                                   {}
func (s noopSpan) SetStatus(code int, description string)                  {}
func (s noopSpan) SpanContext() trace.SpanContext                          { return trace.SpanContext{} }

// NoopStartSpan returns the context unchanged and a span that records nothing.
// Services fall back to this when no tracer is configured.
func NoopStartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	return ctx, noopSpan{}
}
