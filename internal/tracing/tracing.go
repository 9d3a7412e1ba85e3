// Package tracing wires OpenTelemetry for experiment runs. One span covers
// a whole run; window closures and injected upsets become span events.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
)

const instrumentationName = "github.com/B-Borecki/seu-injection-lab"

// Config selects the exporter. An empty Endpoint installs a no-op provider.
type Config struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// Init sets up the global tracer provider and returns its shutdown func.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartExperiment opens the span covering one run.
func StartExperiment(ctx context.Context, runID string, mode model.ProtectMode) (context.Context, trace.Span) {
	return Tracer(instrumentationName).Start(ctx, "experiment",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("protect.mode", mode.String()),
		),
	)
}

// WindowEvent records a closed statistics window on span.
func WindowEvent(span trace.Span, r model.WindowReport) {
	span.AddEvent("stat_window", trace.WithAttributes(
		attribute.Int64("seq", int64(r.Seq)),
		attribute.Int64("sat_in_window", int64(r.SatInWindow)),
		attribute.Int64("avg_amax", int64(r.AvgAmax)),
	))
}

// CostAttributes attaches the final cost report to span.
func CostAttributes(span trace.Span, c model.CostReport) {
	span.SetAttributes(
		attribute.Int64("cost.tmr_calls", int64(c.TMRCalls)),
		attribute.Int64("cost.srl_calls", int64(c.SRLCalls)),
		attribute.Int64("cost.srl_clamps", int64(c.SRLClamps)),
		attribute.Int64("cost.sat_total", int64(c.SatTotal)),
		attribute.Int64("cost.processed", int64(c.Processed)),
	)
}

// RecordFailure marks span as failed with err.
func RecordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
