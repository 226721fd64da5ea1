package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestTaskMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := InitMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.TasksSentTotal.Add(ctx, 2)
	m.TasksActive.Add(ctx, 1)
	m.TasksActive.Add(ctx, -1)
	m.QueueLength.Record(ctx, 7)
	m.TaskRuntime.Record(ctx, 0.5)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	got := map[string]metricdata.Aggregation{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		got[md.Name] = md.Data
	}

	sent := got["tasks.sent.total"].(metricdata.Sum[int64])
	assert.Equal(t, int64(2), sent.DataPoints[0].Value)

	active := got["tasks.active"].(metricdata.Sum[int64])
	assert.Equal(t, int64(0), active.DataPoints[0].Value)

	queue := got["tasks.queue.length"].(metricdata.Gauge[int64])
	assert.Equal(t, int64(7), queue.DataPoints[0].Value)

	runtime := got["tasks.runtime"].(metricdata.Histogram[float64])
	assert.Equal(t, uint64(1), runtime.DataPoints[0].Count)
}

func TestRecordersUseGlobalMeter(t *testing.T) {
	ctx := context.Background()
	// 全局 noop/delegating meter 下也不能 panic
	RecordTaskSent(ctx, "add_numbers")
	RecordTaskFinished(ctx, "add_numbers", "SUCCESS", 0.1)
	RecordTaskRetry(ctx, "failing_task")
	AddActiveTask(ctx, "add_numbers")
	SubtractActiveTask(ctx, "add_numbers")
	SetQueueLength(ctx, "celery", 3)
	assert.NotNil(t, GetMetrics())
}
