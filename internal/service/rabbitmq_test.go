package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otelsamples/internal/model"
	pkgerrors "otelsamples/pkg/errors"
	pkgmq "otelsamples/pkg/mq"
	"otelsamples/pkg/mq/mqtest"
	"otelsamples/storage/mq"
)

type fakeConn struct {
	ch     *mqtest.Channel
	closed bool
}

func (f *fakeConn) Channel() (pkgmq.Channel, error) { return f.ch, nil }
func (f *fakeConn) Close() error                    { f.closed = true; return f.ch.Close() }
func (f *fakeConn) IsClosed() bool                  { return f.closed }

func newRabbit(t *testing.T, async bool) (*RabbitMQService, *mqtest.Channel) {
	t.Helper()
	ch := mqtest.NewChannel()
	svc := NewRabbitMQService(RabbitMQOptions{
		Dialer: func(ctx context.Context) (mq.Connection, error) {
			return &fakeConn{ch: ch}, nil
		},
		Host:        "localhost",
		Port:        "5672",
		ServiceName: "otel-test",
		Async:       async,
	})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc, ch
}

func TestRabbitMQRequiresConnection(t *testing.T) {
	svc, _ := newRabbit(t, false)
	ctx := context.Background()

	err := svc.CreateQueue(ctx, "demo_queue")
	assert.ErrorIs(t, err, pkgerrors.NotConnected)
	assert.Equal(t, "Not connected to RabbitMQ", err.Error())

	_, err = svc.Publish(ctx, "demo_queue", nil)
	assert.ErrorIs(t, err, pkgerrors.NotConnected)

	_, err = svc.StartConsumer(ctx, "demo_queue")
	assert.ErrorIs(t, err, pkgerrors.NotConnected)

	wasConnected, err := svc.Disconnect(ctx)
	require.NoError(t, err)
	assert.False(t, wasConnected)

	st := svc.Status()
	assert.False(t, st.Connected)
	assert.Nil(t, st.ConnectionInfo)
}

func TestRabbitMQConnectIsIdempotent(t *testing.T) {
	dials := 0
	ch := mqtest.NewChannel()
	svc := NewRabbitMQService(RabbitMQOptions{
		Dialer: func(ctx context.Context) (mq.Connection, error) {
			dials++
			return &fakeConn{ch: ch}, nil
		},
		Host: "localhost", Port: "5672",
	})

	info, err := svc.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, info.IsOpen)
	assert.Equal(t, "amqp091-go", info.Library)

	_, err = svc.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dials)
}

func TestRabbitMQConnectFailure(t *testing.T) {
	svc := NewRabbitMQService(RabbitMQOptions{
		Dialer: func(ctx context.Context) (mq.Connection, error) {
			return nil, errors.New("connection refused")
		},
	})
	_, err := svc.Connect(context.Background())
	assert.EqualError(t, err, "Connection error: connection refused")
}

func TestRabbitMQPublishAndConsume(t *testing.T) {
	svc, ch := newRabbit(t, false)
	ctx := context.Background()

	_, err := svc.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.CreateQueue(ctx, "demo_queue"))
	assert.True(t, ch.Durable("demo_queue"))

	published, err := svc.Publish(ctx, "demo_queue", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"hello": "world"}, published)

	q, err := svc.QueueInfo(ctx, "demo_queue")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Messages)

	started, err := svc.StartConsumer(ctx, "demo_queue")
	require.NoError(t, err)
	assert.True(t, started)

	again, err := svc.StartConsumer(ctx, "demo_queue")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, svc.PublishBatch(ctx, "demo_queue", 3))
	require.Eventually(t, func() bool {
		_, total := svc.Messages()
		return total == 4
	}, 2*time.Second, 10*time.Millisecond)

	msgs, _ := svc.Messages()
	assert.Equal(t, "demo_queue", msgs[0].Queue)
	assert.Equal(t, map[string]interface{}{"hello": "world"}, msgs[0].Body)
	body, ok := msgs[1].Body.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Batch message 1", body["message"])

	acked, _ := ch.Acks()
	assert.Equal(t, 4, acked)

	st := svc.Status()
	assert.True(t, st.ConsumerRunning)
	assert.Equal(t, 4, st.MessagesReceived)

	stopped, err := svc.StopConsumer(ctx)
	require.NoError(t, err)
	assert.True(t, stopped)
	stopped, err = svc.StopConsumer(ctx)
	require.NoError(t, err)
	assert.False(t, stopped)

	svc.ClearMessages()
	_, total := svc.Messages()
	assert.Zero(t, total)
}

func TestRabbitMQAsyncMode(t *testing.T) {
	svc, ch := newRabbit(t, true)
	ctx := context.Background()

	info, err := svc.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "amqp091-go (async)", info.Library)

	_, err = svc.StartConsumer(ctx, "demo_queue")
	require.NoError(t, err)
	assert.Equal(t, 1, ch.Prefetch())

	require.NoError(t, svc.PublishBatch(ctx, "demo_queue", 10))
	require.Eventually(t, func() bool {
		_, total := svc.Messages()
		return total == 10
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRabbitMQQueueInfoMissingQueue(t *testing.T) {
	svc, _ := newRabbit(t, false)
	_, err := svc.Connect(context.Background())
	require.NoError(t, err)

	_, err = svc.QueueInfo(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Queue info error:")
}

func TestRabbitMQBufferIsCapped(t *testing.T) {
	svc := NewRabbitMQService(RabbitMQOptions{})
	for i := 0; i < 120; i++ {
		svc.appendMessage(model.ReceivedMessage{Body: fmt.Sprint(i)})
		_, total := svc.Messages()
		assert.LessOrEqual(t, total, MaxBufferedMessages)
	}

	msgs, total := svc.Messages()
	assert.Equal(t, MaxBufferedMessages, total)
	require.Len(t, msgs, RecentMessages)
	assert.Equal(t, "100", msgs[0].Body)
	assert.Equal(t, "119", msgs[RecentMessages-1].Body)
}

func TestRabbitMQDisconnectStopsConsumer(t *testing.T) {
	svc, _ := newRabbit(t, false)
	ctx := context.Background()

	_, err := svc.Connect(ctx)
	require.NoError(t, err)
	_, err = svc.StartConsumer(ctx, "demo_queue")
	require.NoError(t, err)

	wasConnected, err := svc.Disconnect(ctx)
	require.NoError(t, err)
	assert.True(t, wasConnected)

	st := svc.Status()
	assert.False(t, st.Connected)
	assert.False(t, st.ConsumerRunning)
}
