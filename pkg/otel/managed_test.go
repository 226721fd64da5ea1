package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type failingExporter struct {
	shutdownCalls int
}

func (f *failingExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error {
	return errors.New("backend unavailable")
}

func (f *failingExporter) Shutdown(context.Context) error {
	f.shutdownCalls++
	return nil
}

func recordSpans(t *testing.T) []sdktrace.ReadOnlySpan {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("managed-test")

	ctx, parent := tracer.Start(context.Background(), "parent")
	_, child := tracer.Start(ctx, "test_operation")
	child.SetAttributes(attribute.String("test.scenario", "B"))
	for _, name := range []string{"e1", "e2", "e3", "e4"} {
		child.AddEvent(name)
	}
	child.End()
	parent.End()

	return recorder.Ended()
}

func TestManagedExporterDefaults(t *testing.T) {
	exp := NewManagedExporter(ManagedConfig{})
	assert.Equal(t, DefaultManagedEndpoint, exp.Endpoint())
	assert.Equal(t, DefaultManagedService, exp.ServiceName())
}

func TestManagedExporterLogsSpanSummary(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	exp := NewManagedExporter(ManagedConfig{ServiceName: "svc"}).WithLogger(zap.New(core))

	spans := recordSpans(t)
	require.NoError(t, exp.ExportSpans(context.Background(), spans))

	spanLogs := logs.FilterMessage("Span").All()
	require.Len(t, spanLogs, 2)

	child := spanLogs[0].ContextMap()
	assert.Equal(t, "test_operation", child["name"])
	assert.Equal(t, "svc", child["service_name"])
	assert.Contains(t, child, "parent")
	assert.EqualValues(t, 4, child["event_count"])
	assert.Equal(t, []interface{}{"e1", "e2", "e3"}, child["events"])
	assert.Equal(t, map[string]interface{}{"test.scenario": "B"}, child["attributes"])

	root := spanLogs[1].ContextMap()
	assert.NotContains(t, root, "parent")
}

func TestManagedExporterRejectsAfterShutdown(t *testing.T) {
	exp := NewManagedExporter(ManagedConfig{}).WithLogger(zap.NewNop())
	require.NoError(t, exp.Shutdown(context.Background()))
	require.NoError(t, exp.Shutdown(context.Background()))

	err := exp.ExportSpans(context.Background(), recordSpans(t))
	assert.ErrorIs(t, err, errExporterShutdown)
}

func TestMultiExporterSucceedsOnlyWhenAllSucceed(t *testing.T) {
	spans := recordSpans(t)
	mem := tracetest.NewInMemoryExporter()

	ok := NewMultiExporter(mem, NewManagedExporter(ManagedConfig{}).WithLogger(zap.NewNop()))
	require.NoError(t, ok.ExportSpans(context.Background(), spans))
	assert.Len(t, mem.GetSpans(), 2)

	bad := &failingExporter{}
	mem.Reset()
	mixed := NewMultiExporter(mem, bad)
	assert.Error(t, mixed.ExportSpans(context.Background(), spans))
	// 失败的导出器不影响其余导出器继续导出
	assert.Len(t, mem.GetSpans(), 2)

	require.NoError(t, mixed.Shutdown(context.Background()))
	assert.Equal(t, 1, bad.shutdownCalls)
}

func TestInjectorRegistersOncePerProvider(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	in := NewInjector(ManagedConfig{})
	assert.True(t, in.Inject(tp))
	assert.False(t, in.Inject(tp))
	assert.False(t, NewInjector(ManagedConfig{}).Inject(tp))

	exp, ok := InjectedExporter(tp)
	require.True(t, ok)
	assert.Equal(t, DefaultManagedEndpoint, exp.Endpoint())

	other := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = other.Shutdown(context.Background()) })
	assert.True(t, in.Inject(other))
}

func TestInjectorDisabled(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	assert.False(t, NewInjector(ManagedConfig{Disabled: true}).Inject(tp))
	_, ok := InjectedExporter(tp)
	assert.False(t, ok)
}
