package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newTestMetrics(t *testing.T) (*BusinessMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := CreateBusinessMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

// sum returns the summed counter value for the points carrying attr
func sum(t *testing.T, reader *sdkmetric.ManualReader, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range data.DataPoints {
				if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestBusinessMetricsRecorders(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordStage(ctx, "allocation", "M", 10*time.Millisecond, 120, nil)
	m.RecordStage(ctx, "allocation", "M", time.Millisecond, 30, nil)
	m.RecordStage(ctx, "usage", "M", time.Millisecond, 0, errors.New("boom"))
	m.RecordQuality(ctx, "negative_clipped", 3)
	m.ObserveFetch(ctx, "W1", 10, nil)
	m.ObserveFetch(ctx, "W2", 0, nil)
	m.ObserveFetch(ctx, "W3", 0, errors.New("timeout"))
	m.RecordRun(ctx, "M", time.Second, nil)

	assert.Equal(t, int64(150), sum(t, reader, "rows_produced_total", attribute.String("stage", "allocation")))
	assert.Equal(t, int64(1), sum(t, reader, "stage_errors_total", attribute.String("stage", "usage")))
	assert.Equal(t, int64(3), sum(t, reader, "quality_events_total", attribute.String("event", "negative_clipped")))
	assert.Equal(t, int64(1), sum(t, reader, "usage_fetch_total", attribute.String("outcome", "empty")))
	assert.Equal(t, int64(1), sum(t, reader, "usage_fetch_total", attribute.String("outcome", "error")))
	assert.Equal(t, int64(1), sum(t, reader, "pipeline_runs_total", attribute.String("status", "success")))
}

func TestInitializeOTel(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
	})

	t.Run("exporters disabled", func(t *testing.T) {
		providers, err := InitializeOTel(&OTelConfig{ServiceName: "test", TraceExporter: "none", MetricExporter: "none"}, nil)
		require.NoError(t, err)
		assert.Nil(t, providers.TracerProvider)
		assert.Nil(t, providers.PrometheusHTTP)
		assert.NotNil(t, providers.Tracer)
		assert.NotNil(t, providers.Meter)
		assert.NoError(t, providers.Shutdown(context.Background()))
	})

	t.Run("stdout tracing", func(t *testing.T) {
		providers, err := InitializeOTel(&OTelConfig{ServiceName: "test", TraceExporter: "stdout", MetricExporter: "none", SampleRatio: 1}, nil)
		require.NoError(t, err)
		require.NotNil(t, providers.TracerProvider)

		ctx, span := providers.Tracer.Start(context.Background(), "op")
		assert.Equal(t, span.SpanContext().TraceID().String(), TraceIDFromContext(ctx))
		assert.Equal(t, TraceIDFromContext(ctx), GetTraceID(ctx), "span id is the log trace id fallback")
		span.End()
		assert.NoError(t, providers.Shutdown(context.Background()))
	})

	t.Run("unsupported exporter", func(t *testing.T) {
		_, err := InitializeOTel(&OTelConfig{TraceExporter: "zipkin"}, nil)
		assert.Error(t, err)
	})
}

func TestReadRuntimeStats(t *testing.T) {
	s := ReadRuntimeStats(time.Now().Add(-time.Minute))
	assert.Positive(t, s.Goroutines)
	assert.Positive(t, s.HeapAllocBytes)
	assert.GreaterOrEqual(t, s.UptimeSeconds, 60.0)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	require.NoError(t, RegisterRuntimeMetrics(mp.Meter("test"), time.Now()))
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)
	assert.Len(t, rm.ScopeMetrics[0].Metrics, 3)
}
