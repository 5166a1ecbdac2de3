package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

// Options configures New. An empty JaegerEndpoint keeps spans in-process.
type Options struct {
	ServiceName    string
	TracingEnabled bool
	JaegerEndpoint string
}

// Observability owns the otel meter and tracer providers for one process.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	opCounter      otelmetric.Int64Counter
	opDuration     otelmetric.Float64Histogram
}

func New(opts Options, log Logger) *Observability {
	o := &Observability{tracer: noop.NewTracerProvider().Tracer(opts.ServiceName)}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err.Error()})
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(o.meterProvider)
		meter := o.meterProvider.Meter(opts.ServiceName)

		o.opCounter, _ = meter.Int64Counter(
			"relay.operations",
			otelmetric.WithDescription("Number of relay operations processed"),
		)
		o.opDuration, _ = meter.Float64Histogram(
			"relay.operation.duration",
			otelmetric.WithDescription("Relay operation duration"),
			otelmetric.WithUnit("ms"),
		)
	}

	if opts.TracingEnabled {
		tpOpts := []sdktrace.TracerProviderOption{}
		if opts.JaegerEndpoint != "" {
			exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.JaegerEndpoint)))
			if err != nil {
				log.Warn("failed to create jaeger exporter", map[string]interface{}{"error": err.Error()})
			} else {
				tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
			}
		}
		o.tracerProvider = sdktrace.NewTracerProvider(tpOpts...)
		otel.SetTracerProvider(o.tracerProvider)
		o.tracer = o.tracerProvider.Tracer(opts.ServiceName)
	}

	return o
}

// NewNoop returns an Observability that records nothing.
func NewNoop(serviceName string) *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}
}

// StartSpan starts a span named after the relay operation.
func (o *Observability) StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (o *Observability) RecordOperation(ctx context.Context, operation, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	if o.opCounter != nil {
		o.opCounter.Add(ctx, 1, attrs)
	}
	if o.opDuration != nil {
		o.opDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
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
