package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ayemaqu/pedrisk/internal/redact"
)

const instrumentationName = "github.com/ayemaqu/pedrisk"

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

// Provider wires tracer/meter providers and the prediction instruments.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	predictions        metric.Int64Counter
	predictionDuration metric.Float64Histogram
	predictionErrors   metric.Int64Counter
	artifactLoads      metric.Float64Histogram

	shutdown []func(context.Context) error
}

// NewProvider configures OTLP exporters and providers. When disabled it
// returns no-op providers.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		return newNoop(), nil
	}

	protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	redact.Logf("telemetry enabled (OpenTelemetry OTLP %s) endpoint=%s", protocol, cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var (
		traceExp  sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
	)
	switch protocol {
	case "", "grpc":
		if traceExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure()); err != nil {
			return nil, err
		}
	case "http":
		if traceExp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure()); err != nil {
			return nil, err
		}
	default:
		return nil, &UnsupportedProtocolError{Protocol: cfg.Protocol}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetMeterProvider(mp)

	p := &Provider{
		Enabled:  true,
		tracer:   tp.Tracer(instrumentationName),
		meter:    mp.Meter(instrumentationName),
		shutdown: []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}
	p.initInstruments()
	return p, nil
}

// NewProviderWithReader records metrics into reader and drops spans. Tests
// and benchmarks use it to observe instruments without a collector.
func NewProviderWithReader(reader sdkmetric.Reader) *Provider {
	return NewProviderWithRecorders(reader, nil)
}

// NewProviderWithRecorders is NewProviderWithReader that also hands ended
// spans to spans when it is non-nil.
func NewProviderWithRecorders(reader sdkmetric.Reader, spans sdktrace.SpanProcessor) *Provider {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	p := &Provider{
		Enabled:  true,
		tracer:   tracenoop.NewTracerProvider().Tracer(""),
		meter:    mp.Meter(instrumentationName),
		shutdown: []func(context.Context) error{mp.Shutdown},
	}
	if spans != nil {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
		p.tracer = tp.Tracer(instrumentationName)
		p.shutdown = append(p.shutdown, tp.Shutdown)
	}
	p.initInstruments()
	return p
}

func newNoop() *Provider {
	p := &Provider{
		tracer: tracenoop.NewTracerProvider().Tracer(""),
		meter:  metricnoop.NewMeterProvider().Meter(""),
	}
	p.initInstruments()
	return p
}

// UnsupportedProtocolError is returned for an OTLP protocol other than grpc or http.
type UnsupportedProtocolError struct {
	Protocol string
}

func (e *UnsupportedProtocolError) Error() string {
	return "telemetry: unsupported protocol " + e.Protocol
}

func (p *Provider) initInstruments() {
	// Instrument creation errors leave nil-safe no-ops; telemetry is best effort.
	p.predictions, _ = p.meter.Int64Counter("pedrisk_predictions_total")
	p.predictionDuration, _ = p.meter.Float64Histogram("pedrisk_prediction_duration_ms")
	p.predictionErrors, _ = p.meter.Int64Counter("pedrisk_prediction_errors_total")
	p.artifactLoads, _ = p.meter.Float64Histogram("pedrisk_artifact_load_duration_ms")
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return metricnoop.NewMeterProvider().Meter("")
	}
	return p.meter
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	for _, fn := range p.shutdown {
		_ = fn(ctx)
	}
}

// RecordPrediction counts one decided prediction and its latency.
func (p *Provider) RecordPrediction(ctx context.Context, variant, rule, outcome string, durMs float64) {
	if p == nil || p.predictions == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("pedrisk.variant", variant),
		attribute.String("pedrisk.rule", rule),
		attribute.String("pedrisk.outcome", outcome),
	)
	p.predictions.Add(ctx, 1, labels)
	p.predictionDuration.Record(ctx, durMs, labels)
}

// RecordError counts a failed prediction. kind is a short error class such as
// schema_violation or unknown_category.
func (p *Provider) RecordError(ctx context.Context, variant, kind string) {
	if p == nil || p.predictionErrors == nil {
		return
	}
	p.predictionErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pedrisk.variant", variant),
		attribute.String("pedrisk.error_kind", kind),
	))
}

// RecordArtifactLoad records how long loading a variant's artifacts took.
func (p *Provider) RecordArtifactLoad(ctx context.Context, variant string, durMs float64) {
	if p == nil || p.artifactLoads == nil {
		return
	}
	p.artifactLoads.Record(ctx, durMs, metric.WithAttributes(attribute.String("pedrisk.variant", variant)))
}
