package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTracedClient(t *testing.T) (*redis.Client, *tracetest.SpanRecorder) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	mr := miniredis.RunT(t)
	client := Instrument(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "otel-test")
	t.Cleanup(func() { _ = client.Close() })
	return client, sr
}

func TestTracingHookCommandSpans(t *testing.T) {
	client, sr := newTracedClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "otelsamples:result:abc", `{"state":"SUCCESS"}`, 0).Err())
	err := client.Get(ctx, "otelsamples:result:missing").Err()
	assert.ErrorIs(t, err, redis.Nil)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
		assert.Equal(t, trace.SpanKindClient, s.SpanKind())
		assert.NotEqual(t, codes.Error, s.Status().Code)
	}
	assert.Contains(t, names, "SET")
	assert.Contains(t, names, "GET")
}

func TestTracingHookPipelineSpan(t *testing.T) {
	client, sr := newTracedClient(t)
	ctx := context.Background()

	_, err := client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, "k", "v")
		p.Incr(ctx, "n")
		return nil
	})
	require.NoError(t, err)

	var found bool
	for _, s := range sr.Ended() {
		if s.Name() == "PIPELINE" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "<payload>", sanitizeKey(`{"id":"1"}`))
	assert.Equal(t, "plain", sanitizeKey("plain"))
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, sanitizeKey(string(long)), 103)
	assert.Nil(t, extractKeys([]interface{}{"ping"}))
}
