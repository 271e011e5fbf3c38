// internal/common/observability/metrics.go
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability owns the OTel providers used by the artifact pipeline.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	genCounter     otelmetric.Int64Counter
	genDuration    otelmetric.Float64Histogram
}

// New installs global meter and tracer providers. A failing Prometheus
// exporter degrades to an instance that records nothing.
func New(serviceName string) *Observability {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{tracerProvider: tp, tracer: tp.Tracer(serviceName)}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	genCounter, _ := meter.Int64Counter(
		"artifacts.generated",
		otelmetric.WithDescription("Number of artifacts generated"),
	)

	genDuration, _ := meter.Float64Histogram(
		"artifacts.generation.duration",
		otelmetric.WithDescription("Artifact generation duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:  provider,
		tracerProvider: tp,
		tracer:         tp.Tracer(serviceName),
		genCounter:     genCounter,
		genDuration:    genDuration,
	}
}

// Nop returns an Observability that records nothing; used by tests.
func Nop() *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer("nop")}
}

// StartSpan starts a span named name on the pipeline tracer.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := o.tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("nop")
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordGeneration counts one generation of format with its outcome.
func (o *Observability) RecordGeneration(ctx context.Context, format, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("format", format),
		attribute.String("status", status),
	)
	if o.genCounter != nil {
		o.genCounter.Add(ctx, 1, attrs)
	}
	if o.genDuration != nil {
		o.genDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
