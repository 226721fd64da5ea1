package mq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"otelsamples/pkg/mq/mqtest"
)

func setupTracing(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return sr
}

func TestPublishInjectsTraceContext(t *testing.T) {
	sr := setupTracing(t)
	fake := mqtest.NewChannel()
	_, err := fake.QueueDeclare("test_queue", true, false, false, false, nil)
	require.NoError(t, err)

	ch := NewInstrumentedChannel(fake, "otel-test")
	err = ch.PublishWithContext(context.Background(), "", "test_queue", false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte("hello"),
		Headers:     amqp.Table{"x-origin": "test"},
	})
	require.NoError(t, err)

	published := fake.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "test", published[0].Headers["x-origin"])
	assert.NotEmpty(t, published[0].Headers["traceparent"])

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "test_queue publish", spans[0].Name())
	assert.Equal(t, trace.SpanKindProducer, spans[0].SpanKind())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestProcessDeliveryContinuesProducerTrace(t *testing.T) {
	sr := setupTracing(t)
	fake := mqtest.NewChannel()
	_, err := fake.QueueDeclare("test_queue", true, false, false, false, nil)
	require.NoError(t, err)

	ch := NewInstrumentedChannel(fake, "otel-test")
	require.NoError(t, ch.PublishWithContext(context.Background(), "", "test_queue", false, false, amqp.Publishing{
		Body: []byte("hello"),
	}))

	msgs, err := ch.Consume("test_queue", "c1", false, false, false, false, nil)
	require.NoError(t, err)
	msg := <-msgs

	var got string
	err = ch.ProcessDelivery(context.Background(), "test_queue", msg, func(ctx context.Context) error {
		got = string(msg.Body)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	var producer, consumer sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		switch s.Name() {
		case "test_queue publish":
			producer = s
		case "test_queue process":
			consumer = s
		}
	}
	require.NotNil(t, producer)
	require.NotNil(t, consumer)
	assert.Equal(t, trace.SpanKindConsumer, consumer.SpanKind())
	assert.Equal(t, producer.SpanContext().TraceID(), consumer.SpanContext().TraceID())
	assert.Equal(t, producer.SpanContext().SpanID(), consumer.Parent().SpanID())
}

func TestProcessDeliveryRecordsError(t *testing.T) {
	sr := setupTracing(t)
	ch := NewInstrumentedChannel(mqtest.NewChannel(), "otel-test")

	boom := errors.New("boom")
	err := ch.ProcessDelivery(context.Background(), "q", amqp.Delivery{Body: []byte("x")}, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestConsumeUndeclaredQueue(t *testing.T) {
	sr := setupTracing(t)
	ch := NewInstrumentedChannel(mqtest.NewChannel(), "otel-test")

	_, err := ch.Consume("missing", "c1", false, false, false, false, nil)
	require.Error(t, err)

	var amqpErr *amqp.Error
	require.True(t, errors.As(err, &amqpErr))
	assert.Equal(t, amqp.NotFound, amqpErr.Code)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "missing subscribe", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestMessageHeaderCarrier(t *testing.T) {
	c := &MessageHeaderCarrier{}
	c.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))

	c.Headers["raw"] = []byte("bytes")
	assert.Equal(t, "bytes", c.Get("raw"))

	c.Headers["num"] = int32(1)
	assert.Equal(t, "", c.Get("num"))
	assert.ElementsMatch(t, []string{"traceparent", "raw", "num"}, c.Keys())
}
