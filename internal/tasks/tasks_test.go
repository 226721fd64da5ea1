package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type fixture struct {
	mr     *miniredis.Miniredis
	app    *App
	worker *Worker
}

func newFixture(t *testing.T, opts BuiltinOptions) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := NewApp(rdb, AppConfig{Prefix: "test", Queue: "celery", ResultExpires: time.Hour})
	RegisterBuiltins(app.Registry, opts)

	w := NewWorker(app, WorkerOptions{Hostname: "celery@test", Concurrency: 2, HeartbeatInterval: 10 * time.Second})
	return &fixture{mr: mr, app: app, worker: w}
}

// drain 同步执行队列中的全部消息，包括执行过程中新入队的
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		n, err := f.app.Broker.Len(ctx)
		require.NoError(t, err)
		if n == 0 {
			return
		}
		env, err := f.app.Broker.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, env)
		f.worker.Execute(ctx, env)
	}
	t.Fatal("queue did not drain")
}

func fixedInt(v int) func(int) int { return func(int) int { return v } }

func fixedFloat(v float64) func() float64 { return func() float64 { return v } }

func TestDelayAndExecute(t *testing.T) {
	f := newFixture(t, BuiltinOptions{})
	ctx := context.Background()

	id, err := f.app.Delay(ctx, TaskAddNumbers, 10, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	res, err := f.app.AsyncResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatePending, res.State)

	f.drain(t)

	res, err = f.app.AsyncResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, float64(15), res.Result)
	assert.NotNil(t, res.DateDone)
	assert.Equal(t, int64(1), f.worker.Processed())
}

func TestResultExpiresToPending(t *testing.T) {
	f := newFixture(t, BuiltinOptions{})
	ctx := context.Background()

	id, err := f.app.Delay(ctx, TaskMultiplyNumbers, 10, 5)
	require.NoError(t, err)
	f.drain(t)

	res, err := f.app.AsyncResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, float64(50), res.Result)

	f.mr.FastForward(2 * time.Hour)

	res, err = f.app.AsyncResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatePending, res.State)
}

func TestChainPassesResultForward(t *testing.T) {
	f := newFixture(t, BuiltinOptions{})
	ctx := context.Background()

	id, err := f.app.Chain(ctx,
		Sig(TaskChainExample, 5),
		Sig(TaskChainExample),
		Sig(TaskChainExample),
	)
	require.NoError(t, err)

	f.drain(t)

	// 5 -> 35 -> 1235 -> 1525235
	res, err := f.app.AsyncResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, float64(1525235), res.Result)
}

func TestChainRejectsEmpty(t *testing.T) {
	f := newFixture(t, BuiltinOptions{})
	_, err := f.app.Chain(context.Background())
	assert.ErrorIs(t, err, ErrEmptyChain)
}

func TestChordFlattensHeaderResults(t *testing.T) {
	f := newFixture(t, BuiltinOptions{IntN: fixedInt(6)})
	ctx := context.Background()

	id, err := f.app.Chord(ctx,
		[]Signature{Sig(TaskGenerateRandomData, 3), Sig(TaskGenerateRandomData, 2)},
		Sig(TaskProcessData),
	)
	require.NoError(t, err)

	f.drain(t)

	res, err := f.app.AsyncResult(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StateSuccess, res.State)

	stats, ok := res.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(5), stats["count"])
	assert.Equal(t, float64(35), stats["sum"])
	assert.Equal(t, float64(7), stats["average"])
	assert.Equal(t, float64(7), stats["min"])
	assert.Equal(t, float64(7), stats["max"])

	// 完成后 chord 的中间键被清理
	for _, k := range f.mr.Keys() {
		assert.NotContains(t, k, ":chord:")
	}
}

func TestChordWithEmptyHeader(t *testing.T) {
	f := newFixture(t, BuiltinOptions{})
	ctx := context.Background()

	id, err := f.app.Chord(ctx, nil, Sig(TaskProcessData))
	require.NoError(t, err)
	f.drain(t)

	res, err := f.app.AsyncResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"error": "No data provided"}, res.Result)
}

func TestFailingTaskRetriesThenFails(t *testing.T) {
	f := newFixture(t, BuiltinOptions{Float64: fixedFloat(0)})
	ctx := context.Background()

	id, err := f.app.Delay(ctx, TaskFailing)
	require.NoError(t, err)
	f.drain(t)

	res, err := f.app.AsyncResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailure, res.State)
	assert.Equal(t, "Task failed randomly (attempt 4)", res.Error)
	assert.Equal(t, int64(4), f.worker.Processed())
}

func TestFailingTaskSucceeds(t *testing.T) {
	f := newFixture(t, BuiltinOptions{Float64: fixedFloat(0.9)})
	ctx := context.Background()

	id, err := f.app.Delay(ctx, TaskFailing)
	require.NoError(t, err)
	f.drain(t)

	res, err := f.app.AsyncResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, map[string]interface{}{
		"status":   "success",
		"attempts": float64(1),
		"message":  "Task completed successfully after some retries!",
	}, res.Result)
}

func TestLongRunningTask(t *testing.T) {
	f := newFixture(t, BuiltinOptions{})
	ctx := context.Background()

	id, err := f.app.Delay(ctx, TaskLongRunning, 3)
	require.NoError(t, err)
	f.drain(t)

	res, err := f.app.AsyncResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"status":   "Task completed successfully!",
		"duration": float64(3),
		"result":   "Processed 3 steps",
	}, res.Result)
}

func TestUpdateStateStoresProgress(t *testing.T) {
	f := newFixture(t, BuiltinOptions{})
	ctx := context.Background()

	tc := &TaskContext{ID: "abc", Name: TaskLongRunning, backend: f.app.Backend}
	require.NoError(t, tc.UpdateState(ctx, StateProgress, map[string]interface{}{
		"current": 2, "total": 5, "status": "Processing step 2/5",
	}))

	res, err := f.app.AsyncResult(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, StateProgress, res.State)
	assert.Equal(t, float64(2), res.Meta["current"])
	assert.Nil(t, res.DateDone)
}

func TestProcessDataWithoutData(t *testing.T) {
	out, err := processData(context.Background(), &TaskContext{}, []interface{}{[]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"error": "No data provided"}, out)
}

func TestPanicAndUnregisteredTaskFail(t *testing.T) {
	f := newFixture(t, BuiltinOptions{})
	ctx := context.Background()

	f.app.Registry.Register("boom", func(ctx context.Context, tc *TaskContext, args []interface{}) (interface{}, error) {
		panic("kaboom")
	}, Options{})

	boomID, err := f.app.Delay(ctx, "boom")
	require.NoError(t, err)
	unknownID, err := f.app.Delay(ctx, "nope")
	require.NoError(t, err)
	f.drain(t)

	res, err := f.app.AsyncResult(ctx, boomID)
	require.NoError(t, err)
	assert.Equal(t, StateFailure, res.State)
	assert.Equal(t, "task panicked: kaboom", res.Error)

	res, err = f.app.AsyncResult(ctx, unknownID)
	require.NoError(t, err)
	assert.Equal(t, StateFailure, res.State)
	assert.Contains(t, res.Error, "unregistered task")
}

func TestExecuteContinuesProducerTrace(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	f := newFixture(t, BuiltinOptions{})
	_, err := f.app.Delay(context.Background(), TaskAddNumbers, 1, 2)
	require.NoError(t, err)
	f.drain(t)

	var producer, consumer sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		switch s.Name() {
		case "apply_async/add_numbers":
			producer = s
		case "run/add_numbers":
			consumer = s
		}
	}
	require.NotNil(t, producer)
	require.NotNil(t, consumer)
	assert.Equal(t, trace.SpanKindProducer, producer.SpanKind())
	assert.Equal(t, trace.SpanKindConsumer, consumer.SpanKind())
	assert.Equal(t, producer.SpanContext().SpanID(), consumer.Parent().SpanID())
}

func TestHeartbeatAndInspect(t *testing.T) {
	f := newFixture(t, BuiltinOptions{})
	ctx := context.Background()

	require.NoError(t, f.worker.Beat(ctx))
	assert.Equal(t, 30*time.Second, f.mr.TTL("test:worker:celery@test"))

	ins, err := f.app.Inspect(ctx)
	require.NoError(t, err)
	require.Contains(t, ins.RegisteredTasks, "celery@test")
	assert.Equal(t, f.app.Registry.Names(), ins.RegisteredTasks["celery@test"])
	assert.Empty(t, ins.ActiveWorkers["celery@test"])
	assert.Equal(t, 2, ins.Stats["celery@test"].Concurrency)

	f.mr.FastForward(time.Minute)
	ins, err = f.app.Inspect(ctx)
	require.NoError(t, err)
	assert.Empty(t, ins.Stats)
}

func TestWorkerRunProcessesUntilCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("blocking poll loop")
	}
	f := newFixture(t, BuiltinOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	id, err := f.app.Delay(context.Background(), TaskAddNumbers, 2, 3)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := f.app.AsyncResult(context.Background(), id)
		return err == nil && res.State == StateSuccess
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.False(t, f.mr.Exists("test:worker:celery@test"))
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltins(reg, BuiltinOptions{})
	assert.Equal(t, []string{
		"add_numbers", "chain_example", "failing_task", "generate_random_data",
		"long_running_task", "multiply_numbers", "process_data",
	}, reg.Names())
}
