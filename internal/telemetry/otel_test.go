package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"arc-framework/pipestack/internal/config"
)

func TestInitProvider_UnreachableCollector(t *testing.T) {
	// The gRPC dial is lazy, so setup succeeds with no collector.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := InitProvider(ctx, config.TelemetryConfig{
		OTLPEndpoint: "localhost:19999",
		OTLPInsecure: true,
		ServiceName:  "pipestack-test",
	})
	require.NoError(t, err)
	require.NotNil(t, p)

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutCancel()
	assert.NoError(t, p.Shutdown(shutCtx))
}

func TestInitProvider_NoEndpoint(t *testing.T) {
	t.Parallel()

	_, err := InitProvider(context.Background(), config.TelemetryConfig{ServiceName: "pipestack"})
	assert.Error(t, err)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestBootstrapMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	m, err := NewBootstrapMetrics(NewMeterProvider(reader))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordStep(ctx, "settle", "ok", 10*time.Second)
	m.RecordStep(ctx, "status", "warn", 200*time.Millisecond)
	m.RecordRun(ctx, "error", 4)

	got := collect(t, reader)

	hist, ok := got[StepDurationMetric].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 2)
	for _, dp := range hist.DataPoints {
		assert.Equal(t, stepBuckets, dp.Bounds)
		step, _ := dp.Attributes.Value("step")
		switch step.AsString() {
		case "settle":
			assert.InDelta(t, 10.0, dp.Sum, 0.001)
		case "status":
			status, _ := dp.Attributes.Value("status")
			assert.Equal(t, "warn", status.AsString())
		default:
			t.Fatalf("unexpected step %q", step.AsString())
		}
	}

	runs, ok := got[RunsMetric].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, runs.DataPoints, 1)
	assert.Equal(t, int64(1), runs.DataPoints[0].Value)
	code, _ := runs.DataPoints[0].Attributes.Value("exit_code")
	assert.Equal(t, int64(4), code.AsInt64())
}

func TestBootstrapMetrics_Nil(t *testing.T) {
	t.Parallel()

	var m *BootstrapMetrics
	m.RecordStep(context.Background(), "runtime", "ok", time.Millisecond)
	m.RecordRun(context.Background(), "ok", 0)
}
