package emitter

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/yairfalse/auroratag/pkg/resource"
)

// mockEmitter implements Emitter for testing.
type mockEmitter struct {
	sweepCalls       int
	propagationCalls int
	closeCalls       int
	emitErr          error
	closeErr         error
}

func (m *mockEmitter) EmitSweep(_ context.Context, _ resource.SweepReport, _ error) error {
	m.sweepCalls++
	return m.emitErr
}

func (m *mockEmitter) EmitPropagation(_ context.Context, _ resource.PropagationReport, _ error) error {
	m.propagationCalls++
	return m.emitErr
}

func (m *mockEmitter) Close() error {
	m.closeCalls++
	return m.closeErr
}

func sampleSweep() resource.SweepReport {
	return resource.SweepReport{
		Mode:     "checked",
		Key:      "aurora_cluster",
		Duration: 2 * time.Second,
		Outcomes: []resource.Outcome{
			{Kind: resource.KindCluster, ID: "orders", ClusterID: "orders", Action: resource.ActionTagged},
			{Kind: resource.KindInstance, ID: "orders-1", ClusterID: "orders", Action: resource.ActionAlreadyTagged},
			{Kind: resource.KindInstance, ID: "orders-2", ClusterID: "orders", Action: resource.ActionTagged},
		},
	}
}

func TestMultiEmitter_Emit(t *testing.T) {
	e1 := &mockEmitter{}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	require.NoError(t, multi.EmitSweep(context.Background(), sampleSweep(), nil))
	require.NoError(t, multi.EmitPropagation(context.Background(), resource.PropagationReport{}, nil))

	assert.Equal(t, 1, e1.sweepCalls)
	assert.Equal(t, 1, e2.sweepCalls)
	assert.Equal(t, 1, e1.propagationCalls)
	assert.Equal(t, 1, e2.propagationCalls)
}

func TestMultiEmitter_Emit_Error(t *testing.T) {
	e1 := &mockEmitter{emitErr: errors.New("emit failed")}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	err := multi.EmitSweep(context.Background(), sampleSweep(), nil)

	require.Error(t, err)
	assert.Equal(t, 0, e2.sweepCalls, "stops at first error")
}

func TestMultiEmitter_Close(t *testing.T) {
	e1 := &mockEmitter{}
	e2 := &mockEmitter{closeErr: errors.New("close failed")}
	multi := NewMultiEmitter(e1, e2)

	require.Error(t, multi.Close())
	assert.Equal(t, 1, e1.closeCalls)
	assert.Equal(t, 1, e2.closeCalls)
}

func TestLogEmitter_Sweep(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(zerolog.New(&buf))

	require.NoError(t, e.EmitSweep(context.Background(), sampleSweep(), nil))

	out := buf.String()
	assert.Contains(t, out, `"message":"sweep complete"`)
	assert.Contains(t, out, `"clusters_tagged":1`)
	assert.Contains(t, out, `"instances_tagged":1`)
	assert.Contains(t, out, `"instances_already_tagged":1`)
}

func TestLogEmitter_SweepError(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(zerolog.New(&buf))

	require.NoError(t, e.EmitSweep(context.Background(), sampleSweep(), errors.New("throttled")))

	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "throttled")
}

func TestLogEmitter_PropagationChanges(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(zerolog.New(&buf).Level(zerolog.DebugLevel))
	report := resource.PropagationReport{
		InstanceID: "orders-3",
		ClusterID:  "orders",
		Diff:       resource.DiffTags(resource.Tags{"c": "3"}, resource.Tags{"a": "1"}),
		Outcome:    resource.Outcome{Kind: resource.KindInstance, ID: "orders-3", Action: resource.ActionReplaced},
	}

	require.NoError(t, e.EmitPropagation(context.Background(), report, nil))

	out := buf.String()
	assert.Contains(t, out, `"tag":"a"`)
	assert.Contains(t, out, `"tag":"c"`)
	assert.Contains(t, out, `"action":"replaced"`)
	assert.Contains(t, out, `"removed":1`)
}

func TestMetricsEmitter_Sweep(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	e, err := NewMetricsEmitter(provider.Meter("test"))
	require.NoError(t, err)

	require.NoError(t, e.EmitSweep(context.Background(), sampleSweep(), nil))

	rm := collect(t, reader)
	outcomes := findSum(t, rm, "auroratag_outcomes_total")
	var total int64
	for _, dp := range outcomes.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.NotNil(t, findMetric(rm, "auroratag_run_duration_seconds"))
	assert.NotNil(t, findMetric(rm, "auroratag_last_success_timestamp_seconds"))
	assert.Nil(t, findMetric(rm, "auroratag_run_errors_total"))
}

func TestMetricsEmitter_PropagationOrphanAndError(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	e, err := NewMetricsEmitter(provider.Meter("test"))
	require.NoError(t, err)

	orphan := resource.PropagationReport{
		InstanceID: "solo",
		Orphan:     true,
		Outcome:    resource.Outcome{Kind: resource.KindInstance, ID: "solo", Action: resource.ActionSkipped},
	}
	require.NoError(t, e.EmitPropagation(context.Background(), orphan, nil))
	require.NoError(t, e.EmitPropagation(context.Background(), resource.PropagationReport{InstanceID: "x"}, errors.New("boom")))

	rm := collect(t, reader)
	assert.Equal(t, int64(1), findSum(t, rm, "auroratag_orphans_total").DataPoints[0].Value)
	assert.Equal(t, int64(1), findSum(t, rm, "auroratag_run_errors_total").DataPoints[0].Value)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func findSum(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, name)
	return sum
}
