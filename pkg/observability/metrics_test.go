package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/buildload/pkg/observability"
)

func setupTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return mp, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumByOutcome(t *testing.T, m *metricdata.Metrics) map[string]int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	out := make(map[string]int64)

	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("outcome"))
		out[v.AsString()] += dp.Value
	}

	return out
}

func TestFetchMetrics_RecordFetch(t *testing.T) {
	t.Parallel()

	mp, reader := setupTestMeter(t)

	fm, err := observability.NewFetchMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	fm.RecordFetch(ctx, observability.OutcomeOK, 100*time.Millisecond, 2048)
	fm.RecordFetch(ctx, observability.OutcomeOK, 200*time.Millisecond, 1024)
	fm.RecordFetch(ctx, observability.OutcomeNotFound, 10*time.Millisecond, 0)

	rm := collectMetrics(t, reader)

	requests := findMetric(rm, "buildload.fetch.requests.total")
	require.NotNil(t, requests)
	assert.Equal(t, map[string]int64{"ok": 2, "not_found": 1}, sumByOutcome(t, requests))

	size := findMetric(rm, "buildload.fetch.bytes.total")
	require.NotNil(t, size)

	sum, ok := size.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3072), sum.DataPoints[0].Value)

	require.NotNil(t, findMetric(rm, "buildload.fetch.duration.seconds"))
}

func TestFetchMetrics_TrackInflight(t *testing.T) {
	t.Parallel()

	mp, reader := setupTestMeter(t)

	fm, err := observability.NewFetchMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	done := fm.TrackInflight(ctx)

	inflight := findMetric(collectMetrics(t, reader), "buildload.fetch.inflight")
	require.NotNil(t, inflight)

	sum, ok := inflight.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)

	done()

	inflight = findMetric(collectMetrics(t, reader), "buildload.fetch.inflight")
	sum, ok = inflight.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(0), sum.DataPoints[0].Value)
}

func TestRunMetrics_RecordRun(t *testing.T) {
	t.Parallel()

	mp, reader := setupTestMeter(t)

	rmx, err := observability.NewRunMetrics(mp.Meter("test"))
	require.NoError(t, err)

	rmx.RecordRun(context.Background(), observability.RunStats{
		Queued:      10,
		Written:     6,
		NotFound:    2,
		FetchFailed: 1,
		ParseFailed: 1,
		Elapsed:     3 * time.Second,
	})

	rm := collectMetrics(t, reader)

	outcomes := findMetric(rm, "buildload.run.outcomes.total")
	require.NotNil(t, outcomes)
	assert.Equal(t, map[string]int64{
		"written":      6,
		"not_found":    2,
		"fetch_failed": 1,
		"parse_failed": 1,
	}, sumByOutcome(t, outcomes))

	require.NotNil(t, findMetric(rm, "buildload.run.queued.total"))
	require.NotNil(t, findMetric(rm, "buildload.run.duration.seconds"))
}

func TestMetrics_NilReceiversAreNoops(t *testing.T) {
	t.Parallel()

	var (
		fm *observability.FetchMetrics
		rm *observability.RunMetrics
	)

	assert.NotPanics(t, func() {
		fm.RecordFetch(context.Background(), observability.OutcomeOK, time.Second, 1)
		fm.TrackInflight(context.Background())()
		rm.RecordRun(context.Background(), observability.RunStats{})
	})
}

func TestNewFetchMetrics_WithNoopMeter(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	fm, err := observability.NewFetchMetrics(providers.Meter)
	require.NoError(t, err)

	fm.RecordFetch(context.Background(), observability.OutcomeTransport, time.Millisecond, 0)
}
