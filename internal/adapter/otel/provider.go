package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Exporter selects where spans and metrics are sent. It satisfies the pflag
// Value interface so commands can bind it to a flag directly.
type Exporter string

const (
	ExporterNone   Exporter = "none"
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
)

func (e *Exporter) String() string { return string(*e) }

// Set accepts "none", "stdout" or "otlp".
func (e *Exporter) Set(v string) error {
	switch candidate := Exporter(v); candidate {
	case ExporterNone, ExporterStdout, ExporterOTLP:
		*e = candidate
		return nil
	default:
		return unsupportedExporter(v)
	}
}

func unsupportedExporter(v string) error {
	return fmt.Errorf("unsupported exporter %q (use %q, %q or %q)", v, ExporterStdout, ExporterOTLP, ExporterNone)
}

func (e *Exporter) Type() string { return "exporter" }

// Config describes the telemetry pipeline of one process.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Exporter       Exporter
	Insecure       bool // plain HTTP for OTLP
}

// Providers owns the tracer and meter providers registered by Setup.
type Providers struct {
	tracer *trace.TracerProvider
	meter  *metric.MeterProvider
}

// Shutdown flushes pending telemetry and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(
		wrapErr("tracer shutdown", p.tracer.Shutdown(ctx)),
		wrapErr("meter shutdown", p.meter.Shutdown(ctx)),
	)
}

// Setup builds the providers for cfg and installs them as the process-wide
// defaults together with a W3C trace-context propagator.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	spans, metrics, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	traceOpts := []trace.TracerProviderOption{trace.WithResource(res)}
	if spans != nil {
		traceOpts = append(traceOpts, trace.WithBatcher(spans))
	}
	meterOpts := []metric.Option{metric.WithResource(res)}
	if metrics != nil {
		meterOpts = append(meterOpts, metric.WithReader(metric.NewPeriodicReader(metrics)))
	}

	p := &Providers{
		tracer: trace.NewTracerProvider(traceOpts...),
		meter:  metric.NewMeterProvider(meterOpts...),
	}

	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return p, nil
}

// newExporters returns nil exporters for ExporterNone; spans are still
// recorded so context propagation keeps working.
func newExporters(ctx context.Context, cfg Config) (trace.SpanExporter, metric.Exporter, error) {
	switch cfg.Exporter {
	case ExporterNone:
		return nil, nil, nil

	case ExporterStdout:
		spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("stdout span exporter: %w", err)
		}
		metrics, err := stdoutmetric.New()
		if err != nil {
			return nil, nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		return spans, metrics, nil

	case ExporterOTLP:
		var traceOpts []otlptracehttp.Option
		var metricOpts []otlpmetrichttp.Option
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		spans, err := otlptracehttp.New(ctx, traceOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("otlp span exporter: %w", err)
		}
		metrics, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		return spans, metrics, nil
	}

	return nil, nil, unsupportedExporter(string(cfg.Exporter))
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
