package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	goFactor "github.com/MrEthical07/goFactor"
)

type fakeSource struct {
	mu       sync.Mutex
	counters map[goFactor.MetricID]uint64
	latency  []uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goFactor.MetricsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := goFactor.MetricsSnapshot{
		Counters:   map[goFactor.MetricID]uint64{},
		Histograms: map[goFactor.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		snap.Counters[k] = v
	}
	if f.latency != nil {
		snap.Histograms[goFactor.MetricSignInLatency] = append([]uint64(nil), f.latency...)
	}
	return snap
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func setup(t *testing.T, src Source, opts ...Option) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("gofactor-test")
	exp, err := NewFromSource(meter, src, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, exp.Close()) })
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func points(t *testing.T, data metricdata.Aggregation) []metricdata.DataPoint[int64] {
	t.Helper()
	switch d := data.(type) {
	case metricdata.Sum[int64]:
		return d.DataPoints
	case metricdata.Gauge[int64]:
		return d.DataPoints
	}
	t.Fatalf("unexpected aggregation %T", data)
	return nil
}

func single(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	dps := points(t, data)
	require.Len(t, dps, 1)
	return dps[0].Value
}

func TestExporterObservesSnapshot(t *testing.T) {
	src := &fakeSource{
		counters: map[goFactor.MetricID]uint64{goFactor.MetricCounterReplay: 4},
		latency:  []uint64{2, 0, 1, 0, 0, 0, 0, 3},
		dropped:  5,
	}
	got := collect(t, setup(t, src))

	assert.Equal(t, int64(4), single(t, got["gofactor_counter_replay_total"]))
	assert.Equal(t, int64(0), single(t, got["gofactor_signin_success_total"]))
	assert.Equal(t, int64(5), single(t, got["gofactor_audit_dropped_total"]))
	assert.Equal(t, int64(6), single(t, got["gofactor_signin_latency_seconds_count"]))

	byLE := map[string]int64{}
	for _, dp := range points(t, got["gofactor_signin_latency_seconds_bucket"]) {
		le, ok := dp.Attributes.Value("le")
		require.True(t, ok)
		byLE[le.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{
		"0.005": 2, "0.01": 2, "0.025": 3, "0.05": 3,
		"0.1": 3, "0.25": 3, "0.5": 3, "+Inf": 6,
	}, byLE)
}

func TestExporterAppliesCommonAttributes(t *testing.T) {
	src := &fakeSource{
		counters: map[goFactor.MetricID]uint64{goFactor.MetricSignInSuccess: 1},
		latency:  []uint64{1},
	}
	region := attribute.String("region", "eu-west")
	got := collect(t, setup(t, src, WithAttributes(region)))

	dps := points(t, got["gofactor_signin_success_total"])
	require.Len(t, dps, 1)
	v, ok := dps[0].Attributes.Value("region")
	require.True(t, ok)
	assert.Equal(t, "eu-west", v.AsString())

	for _, dp := range points(t, got["gofactor_signin_latency_seconds_bucket"]) {
		assert.True(t, dp.Attributes.HasValue("region"))
		assert.True(t, dp.Attributes.HasValue("le"))
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	meter := sdkmetric.NewMeterProvider().Meter("gofactor-test")

	_, err := NewFromSource(meter, nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = NewFromSource(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)

	_, err = New(meter, nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestExporterCloseStopsObservations(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("gofactor-test")
	exp, err := NewFromSource(meter, &fakeSource{dropped: 1})
	require.NoError(t, err)

	require.NoError(t, exp.Close())

	got := collect(t, reader)
	if data, ok := got["gofactor_audit_dropped_total"]; ok {
		assert.Empty(t, points(t, data))
	}
}

func TestExporterConcurrentCollect(t *testing.T) {
	src := &fakeSource{counters: map[goFactor.MetricID]uint64{}}
	reader := setup(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[goFactor.MetricSignInSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
