package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"arc-framework/pipestack/internal/config"
)

// Version is reported as service.version.
var Version = "0.1.0"

const meterName = "pipestack"

// Instrument names.
const (
	StepDurationMetric = "pipestack.bootstrap.step.duration"
	RunsMetric         = "pipestack.bootstrap.runs"
)

// stepBuckets spans a sub-second runtime ping to a multi-minute image pull.
var stepBuckets = []float64{0.05, 0.25, 1, 5, 10, 30, 60, 120, 300, 900}

// Provider holds the OTEL trace and metric providers.
type Provider struct {
	shutdown func(context.Context) error
}

// InitProvider installs global trace and meter providers exporting over one
// gRPC connection to t.OTLPEndpoint. The dial is lazy, so a collector that is
// not running does not block a bootstrap.
func InitProvider(ctx context.Context, t config.TelemetryConfig) (*Provider, error) {
	if t.OTLPEndpoint == "" {
		return nil, errors.New("no OTLP endpoint configured")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(t.ServiceName),
			semconv.ServiceVersion(Version),
			semconv.ServiceNamespace("pipestack"),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("building OTEL resource: %w", err)
	}

	var dialOpts []grpc.DialOption
	if t.OTLPInsecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(t.OTLPEndpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating gRPC client for OTEL: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		tp.Shutdown(ctx) //nolint:errcheck
		conn.Close()     //nolint:errcheck
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	// A bootstrap is short-lived; the final flush happens in Shutdown.
	mp := NewMeterProvider(
		sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(10*time.Second)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Debug("otel export error", "err", err)
	}))

	return &Provider{shutdown: func(ctx context.Context) error {
		// Flush failures are not actionable for a local tool; only the
		// connection close is reported.
		mp.Shutdown(ctx) //nolint:errcheck
		tp.Shutdown(ctx) //nolint:errcheck
		return conn.Close()
	}}, nil
}

// NewMeterProvider builds a meter provider reading through reader with the
// bootstrap step histogram buckets applied.
func NewMeterProvider(reader sdkmetric.Reader, opts ...sdkmetric.Option) *sdkmetric.MeterProvider {
	opts = append(opts,
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: StepDurationMetric},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: stepBuckets}},
		)),
	)
	return sdkmetric.NewMeterProvider(opts...)
}

// Shutdown flushes and closes all OTEL exporters. ctx should have a deadline.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// BootstrapMetrics records step durations and run outcomes. A nil
// *BootstrapMetrics records nothing.
type BootstrapMetrics struct {
	stepDuration metric.Float64Histogram
	runs         metric.Int64Counter
}

// NewBootstrapMetrics registers the bootstrap instruments on mp.
func NewBootstrapMetrics(mp metric.MeterProvider) (*BootstrapMetrics, error) {
	meter := mp.Meter(meterName)

	stepDuration, err := meter.Float64Histogram(StepDurationMetric,
		metric.WithDescription("Duration of one bootstrap step"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", StepDurationMetric, err)
	}
	runs, err := meter.Int64Counter(RunsMetric,
		metric.WithDescription("Completed bootstrap runs by status and exit code"),
	)
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", RunsMetric, err)
	}
	return &BootstrapMetrics{stepDuration: stepDuration, runs: runs}, nil
}

// RecordStep records how long step took and the phase status it ended with.
func (m *BootstrapMetrics) RecordStep(ctx context.Context, step, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("status", status),
	))
}

// RecordRun counts a finished run.
func (m *BootstrapMetrics) RecordRun(ctx context.Context, status string, exitCode int) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.Int("exit_code", exitCode),
	))
}
