package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"otelsamples/pkg/metrics"
	storageredis "otelsamples/storage/redis"
)

const tracerName = "otelsamples.tasks"

// Broker 以 Redis list 为队列：生产端 LPUSH，消费端 BRPOP
type Broker struct {
	rdb    *redis.Client
	prefix string
	queue  string
	tracer trace.Tracer
}

func NewBroker(rdb *redis.Client, prefix, queue string) *Broker {
	return &Broker{
		rdb:    rdb,
		prefix: prefix,
		queue:  queue,
		tracer: otel.Tracer(tracerName),
	}
}

// QueueKey <prefix>:queue:<name>
func (b *Broker) QueueKey() string {
	return storageredis.KeyWithPrefix(b.prefix, "queue", b.queue)
}

// Enqueue 在 apply_async span 内注入追踪头并入队
func (b *Broker) Enqueue(ctx context.Context, env *Envelope) error {
	ctx, span := b.tracer.Start(ctx, "apply_async/"+env.Task,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystem("redis"),
			semconv.MessagingOperationPublish,
			semconv.MessagingDestinationName(b.queue),
			semconv.MessagingMessageID(env.ID),
			attribute.String("celery.action", "apply_async"),
			attribute.String("celery.task_name", env.Task),
			attribute.Int("celery.retries", env.Retries),
		),
	)
	defer span.End()

	if env.Headers == nil {
		env.Headers = make(map[string]string)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(env.Headers))

	body, err := json.Marshal(env)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.rdb.LPush(ctx, b.QueueKey(), body).Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return fmt.Errorf("enqueue %s: %w", env.Task, err)
	}
	metrics.RecordTaskSent(ctx, env.Task)
	return nil
}

// Dequeue 阻塞最多 timeout，无消息时返回 nil, nil
func (b *Broker) Dequeue(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	res, err := b.rdb.BRPop(ctx, timeout, b.QueueKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPOP 返回 [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}

	var env Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// Len 队列中等待的消息数
func (b *Broker) Len(ctx context.Context) (int64, error) {
	return b.rdb.LLen(ctx, b.QueueKey()).Result()
}
