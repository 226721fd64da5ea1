package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"otelsamples/internal/model"
	"otelsamples/pkg/errors"
	"otelsamples/pkg/retry"
)

func TestNewMessage(t *testing.T) {
	msg, err := newMessage("test-topic", 3)
	require.NoError(t, err)

	assert.Equal(t, "key-3", string(msg.Key))
	assert.Equal(t, "test-topic", topicOf(msg))
	assert.Contains(t, string(msg.Value), `"message":"Hello from Go producer - message 3"`)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "message_id", msg.Headers[0].Key)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, ModeSync, o.Mode)
	assert.Equal(t, 2*time.Second, o.Interval)
	assert.Equal(t, retry.BrokerPolicy, o.Wait)
	assert.Equal(t, 5*time.Second, o.MetadataTimeout)
	assert.Equal(t, "test-topic", o.Topic)
}

func TestWaitForKafkaGivesUp(t *testing.T) {
	err := WaitForKafka(context.Background(), Options{
		BootstrapServers: "127.0.0.1:1",
		Wait:             retry.Policy{Attempts: 2, Interval: 10 * time.Millisecond},
		MetadataTimeout:  200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.BrokerUnavailable)
}

func setupTracing(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return sr
}

// 依赖 librdkafka 的 mock 集群，consumer group 加入需要几秒
func TestRunAgainstMockCluster(t *testing.T) {
	if testing.Short() {
		t.Skip("mock cluster test skipped in short mode")
	}

	for _, mode := range []string{ModeSync, ModeAsync} {
		t.Run(mode, func(t *testing.T) {
			sr := setupTracing(t)

			mc, err := kafka.NewMockCluster(1)
			require.NoError(t, err)
			t.Cleanup(mc.Close)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var (
				mu       sync.Mutex
				received []model.KafkaMessage
				parents  []trace.SpanContext
			)
			handle := func(ctx context.Context, msg *model.KafkaMessage, raw *kafka.Message) error {
				mu.Lock()
				defer mu.Unlock()
				if msg != nil {
					received = append(received, *msg)
				}
				parents = append(parents, trace.SpanContextFromContext(ctx))
				if len(received) >= 2 {
					cancel()
				}
				return nil
			}

			err = Run(ctx, Options{
				BootstrapServers: mc.BootstrapServers(),
				Topic:            "otel-" + mode,
				GroupID:          "otel-test-" + mode,
				Mode:             mode,
				Interval:         200 * time.Millisecond,
				Wait:             retry.Policy{Attempts: 5, Interval: 100 * time.Millisecond},
			}, RoleBoth, handle)
			require.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			require.GreaterOrEqual(t, len(received), 2)
			assert.True(t, parents[0].IsValid())

			var publish, process int
			for _, s := range sr.Ended() {
				switch s.SpanKind() {
				case trace.SpanKindProducer:
					publish++
				case trace.SpanKindConsumer:
					process++
				}
			}
			assert.GreaterOrEqual(t, publish, 2)
			assert.GreaterOrEqual(t, process, 2)
		})
	}
}
