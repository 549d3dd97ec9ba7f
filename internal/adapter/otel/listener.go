package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// TracingListener wraps a domain.GroupListener with a span per delivery and
// counts deliveries by phase, operation and outcome.
type TracingListener struct {
	next      domain.GroupListener
	name      string
	tracer    trace.Tracer
	delivered metric.Int64Counter
}

// Compile-time check: TracingListener implements domain.GroupListener.
var _ domain.GroupListener = (*TracingListener)(nil)

// NewTracingListener creates a tracing decorator around the given listener.
// The name identifies the listener on spans and metrics.
func NewTracingListener(name string, next domain.GroupListener) (*TracingListener, error) {
	counter, err := otel.Meter(tracerName).Int64Counter("groupdir.events.delivered",
		metric.WithDescription("Group events delivered to listeners"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &TracingListener{
		next:      next,
		name:      name,
		tracer:    otel.Tracer(tracerName),
		delivered: counter,
	}, nil
}

func (l *TracingListener) OnEvent(ctx context.Context, event domain.GroupEvent) error {
	attrs := []attribute.KeyValue{
		attribute.String("listener.name", l.name),
		attribute.String("event.phase", string(event.Phase)),
		attribute.String("event.operation", string(event.Operation)),
	}

	ctx, span := l.tracer.Start(ctx, "GroupListener.OnEvent",
		trace.WithAttributes(attrs...),
		trace.WithAttributes(attribute.String("group.id", event.Group.ID)),
	)
	defer span.End()

	err := l.next.OnEvent(ctx, event)
	recordError(span, err)

	l.delivered.Add(ctx, 1, metric.WithAttributes(
		append(attrs, attribute.Bool("event.failed", err != nil))...,
	))
	return err
}
