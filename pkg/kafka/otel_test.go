package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

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

func newMessage(topic string) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte("key-1"),
		Value:          []byte(`{"id":1}`),
	}
}

func TestMessageCarrierKeepsKeysUnique(t *testing.T) {
	msg := newMessage("test-topic")
	c := NewMessageCarrier(msg)

	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set("empty", "")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
	assert.Len(t, msg.Headers, 1)
}

func TestProduceAndProcessShareTrace(t *testing.T) {
	sr := setupTracing(t)
	tr := NewTracer("otel-test")

	msg := newMessage("test-topic")
	ctx, span := tr.StartProduce(context.Background(), msg)
	assert.NotEmpty(t, NewMessageCarrier(msg).Get("traceparent"))

	report := *msg
	report.TopicPartition.Partition = 0
	report.TopicPartition.Offset = 7
	tr.FinishProduce(ctx, span, &report, 0)

	err := tr.Process(context.Background(), "test-group", msg, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	producer, consumer := spans[0], spans[1]
	assert.Equal(t, "test-topic publish", producer.Name())
	assert.Equal(t, "test-topic process", consumer.Name())
	assert.Equal(t, producer.SpanContext().TraceID(), consumer.SpanContext().TraceID())
	assert.Equal(t, producer.SpanContext().SpanID(), consumer.Parent().SpanID())
}

func TestTrackAndEndDelivery(t *testing.T) {
	sr := setupTracing(t)
	tr := NewTracer("otel-test")

	msg := newMessage("test-topic")
	ctx, span := tr.StartProduce(context.Background(), msg)
	tr.TrackDelivery(ctx, msg, span)
	assert.Empty(t, sr.Ended())

	report := *msg
	report.TopicPartition.Error = errors.New("broker down")
	assert.True(t, tr.EndDelivery(&report))
	// 同一 report 只结束一次
	assert.False(t, tr.EndDelivery(&report))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestEndDeliveryUnknownOpaque(t *testing.T) {
	tr := NewTracer("otel-test")
	assert.False(t, tr.EndDelivery(newMessage("t")))
}
