package mq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	// RabbitMQ 相关指标
	mqMessagesTotal   metric.Int64Counter
	mqMessageDuration metric.Float64Histogram
	mqPublishErrors   metric.Int64Counter
	mqConsumeErrors   metric.Int64Counter
)

// 全局 MeterProvider 在 SetMeterProvider 之后会把这些指标委托过去
func init() {
	_ = InitMQMetrics(otel.Meter("otelsamples/rabbitmq"))
}

// InitMQMetrics 初始化 RabbitMQ 指标
func InitMQMetrics(meter metric.Meter) error {
	var err error

	// 消息总数
	mqMessagesTotal, err = meter.Int64Counter(
		"mq.messages.total",
		metric.WithDescription("Total number of RabbitMQ messages"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	// 消息发布/处理耗时
	mqMessageDuration, err = meter.Float64Histogram(
		"mq.message.duration",
		metric.WithDescription("RabbitMQ message publish and processing duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return err
	}

	// 发布错误数
	mqPublishErrors, err = meter.Int64Counter(
		"mq.publish.errors",
		metric.WithDescription("Number of RabbitMQ publish errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	// 消费错误数
	mqConsumeErrors, err = meter.Int64Counter(
		"mq.consume.errors",
		metric.WithDescription("Number of RabbitMQ consume errors"),
		metric.WithUnit("{error}"),
	)
	return err
}

// Channel 是示例用到的 *amqp.Channel 方法子集，便于测试替换
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Cancel(consumer string, noWait bool) error
	Close() error
	IsClosed() bool
}

var _ Channel = (*amqp.Channel)(nil)

// InstrumentedChannel 包装 Channel 以添加 OpenTelemetry 支持
type InstrumentedChannel struct {
	Channel
	serviceName string
	propagators propagation.TextMapPropagator
	tracer      trace.Tracer
}

// NewInstrumentedChannel 创建带有 OpenTelemetry 支持的 Channel
func NewInstrumentedChannel(ch Channel, serviceName string) *InstrumentedChannel {
	return &InstrumentedChannel{
		Channel:     ch,
		serviceName: serviceName,
		propagators: otel.GetTextMapPropagator(),
		tracer:      otel.Tracer(serviceName + ".rabbitmq"),
	}
}

// PublishWithContext 发布消息并把追踪上下文注入消息头
func (ic *InstrumentedChannel) PublishWithContext(
	ctx context.Context,
	exchange, routingKey string,
	mandatory, immediate bool,
	msg amqp.Publishing,
) error {
	startTime := time.Now()

	// 默认 exchange 下 routing key 即队列名
	destination := exchange
	if destination == "" {
		destination = routingKey
	}

	ctx, span := ic.tracer.Start(ctx, destination+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			semconv.MessagingOperationPublish,
			semconv.MessagingDestinationName(destination),
			semconv.MessagingRabbitmqDestinationRoutingKey(routingKey),
			attribute.Int("messaging.message.body.size", len(msg.Body)),
			attribute.String("messaging.rabbitmq.exchange", exchange),
		),
	)
	defer span.End()

	if msg.MessageId != "" {
		span.SetAttributes(semconv.MessagingMessageID(msg.MessageId))
	}

	headers := make(amqp.Table, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	ic.propagators.Inject(ctx, &MessageHeaderCarrier{Headers: headers})
	msg.Headers = headers

	err := ic.Channel.PublishWithContext(ctx, exchange, routingKey, mandatory, immediate, msg)
	duration := time.Since(startTime).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		mqPublishErrors.Add(ctx, 1)
	} else {
		span.SetStatus(codes.Ok, "Message published successfully")
	}

	labels := metric.WithAttributes(
		semconv.MessagingSystem("rabbitmq"),
		attribute.String("messaging.operation", "publish"),
		attribute.String("messaging.rabbitmq.routing_key", routingKey),
		attribute.String("messaging.status", status),
	)
	mqMessagesTotal.Add(ctx, 1, labels)
	mqMessageDuration.Record(ctx, duration, labels)

	return err
}

// Consume 注册消费者，注册过程本身记一个 span
func (ic *InstrumentedChannel) Consume(
	queue, consumer string,
	autoAck, exclusive, noLocal, noWait bool,
	args amqp.Table,
) (<-chan amqp.Delivery, error) {
	ctx, span := ic.tracer.Start(context.Background(), queue+" subscribe", trace.WithAttributes(
		semconv.MessagingSystem("rabbitmq"),
		semconv.MessagingDestinationName(queue),
		attribute.String("messaging.consumer.id", consumer),
	))
	defer span.End()

	msgs, err := ic.Channel.Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		mqConsumeErrors.Add(ctx, 1)
		return nil, err
	}

	span.SetStatus(codes.Ok, "Consumer started successfully")
	return msgs, nil
}

// ProcessDelivery 从消息头恢复上游上下文，在 process span 内执行 fn
func (ic *InstrumentedChannel) ProcessDelivery(ctx context.Context, queue string, msg amqp.Delivery, fn func(ctx context.Context) error) error {
	startTime := time.Now()

	msgCtx := ic.propagators.Extract(ctx, &MessageHeaderCarrier{Headers: msg.Headers})
	msgCtx, span := ic.tracer.Start(msgCtx, queue+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			semconv.MessagingOperationProcess,
			semconv.MessagingDestinationName(queue),
			semconv.MessagingRabbitmqDestinationRoutingKey(msg.RoutingKey),
			semconv.MessagingMessageID(msg.MessageId),
			attribute.Int("messaging.message.body.size", len(msg.Body)),
			attribute.Int64("messaging.rabbitmq.delivery_tag", int64(msg.DeliveryTag)),
		),
	)
	defer span.End()

	err := fn(msgCtx)

	status := "success"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		mqConsumeErrors.Add(msgCtx, 1)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	labels := metric.WithAttributes(
		semconv.MessagingSystem("rabbitmq"),
		attribute.String("messaging.operation", "process"),
		attribute.String("messaging.destination.name", queue),
		attribute.String("messaging.status", status),
	)
	mqMessagesTotal.Add(msgCtx, 1, labels)
	mqMessageDuration.Record(msgCtx, time.Since(startTime).Seconds(), labels)

	return err
}

// MessageHeaderCarrier 实现 propagation.TextMapCarrier 接口
type MessageHeaderCarrier struct {
	Headers amqp.Table
}

func (m *MessageHeaderCarrier) Get(key string) string {
	if val, ok := m.Headers[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case []byte:
			return string(v)
		}
	}
	return ""
}

func (m *MessageHeaderCarrier) Set(key, value string) {
	if m.Headers == nil {
		m.Headers = make(amqp.Table)
	}
	m.Headers[key] = value
}

func (m *MessageHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	return keys
}
