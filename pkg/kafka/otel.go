package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	kafkaMessagesTotal metric.Int64Counter
	kafkaErrorsTotal   metric.Int64Counter
	kafkaProcessTime   metric.Float64Histogram
)

func init() {
	_ = InitKafkaMetrics(otel.Meter("otelsamples/kafka"))
}

// InitKafkaMetrics 初始化 Kafka 指标
func InitKafkaMetrics(meter metric.Meter) error {
	var err error

	kafkaMessagesTotal, err = meter.Int64Counter(
		"kafka.messages.total",
		metric.WithDescription("Total number of Kafka messages produced or consumed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	kafkaErrorsTotal, err = meter.Int64Counter(
		"kafka.errors.total",
		metric.WithDescription("Number of Kafka delivery and consume errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	kafkaProcessTime, err = meter.Float64Histogram(
		"kafka.message.duration",
		metric.WithDescription("Time from produce to delivery report, or consumer processing time"),
		metric.WithUnit("s"),
	)
	return err
}

var _ propagation.TextMapCarrier = MessageCarrier{}

// MessageCarrier 在 Kafka 消息头上读写追踪上下文
type MessageCarrier struct {
	msg *kafka.Message
}

func NewMessageCarrier(msg *kafka.Message) MessageCarrier {
	return MessageCarrier{msg: msg}
}

func (c MessageCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set 保证同名 header 只有一个
func (c MessageCarrier) Set(key, value string) {
	if key == "" || value == "" {
		return
	}

	headers := c.msg.Headers[:0]
	for _, h := range c.msg.Headers {
		if h.Key != key {
			headers = append(headers, h)
		}
	}
	c.msg.Headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c MessageCarrier) Keys() []string {
	out := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		out[i] = h.Key
	}
	return out
}

// Tracer 负责 produce/process span 和上下文传播
type Tracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	// 异步模式下 span 在 delivery report 到达时结束，按 Opaque 关联
	pending sync.Map
}

type pendingSpan struct {
	span  trace.Span
	ctx   context.Context
	start time.Time
}

func NewTracer(serviceName string) *Tracer {
	return &Tracer{
		tracer:     otel.Tracer(serviceName + ".kafka"),
		propagator: otel.GetTextMapPropagator(),
	}
}

func topicOf(msg *kafka.Message) string {
	if msg.TopicPartition.Topic != nil {
		return *msg.TopicPartition.Topic
	}
	return ""
}

// StartProduce 创建 producer span 并把上下文注入消息头
func (t *Tracer) StartProduce(ctx context.Context, msg *kafka.Message) (context.Context, trace.Span) {
	topic := topicOf(msg)
	ctx, span := t.tracer.Start(ctx, topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystem("kafka"),
			semconv.MessagingOperationPublish,
			semconv.MessagingDestinationName(topic),
			semconv.MessagingKafkaMessageKey(string(msg.Key)),
			attribute.Int("messaging.message.body.size", len(msg.Value)),
		),
	)
	t.propagator.Inject(ctx, NewMessageCarrier(msg))
	return ctx, span
}

// TrackDelivery 登记 span，等待 EndDelivery 结束
func (t *Tracer) TrackDelivery(ctx context.Context, msg *kafka.Message, span trace.Span) {
	id := span.SpanContext().SpanID().String()
	msg.Opaque = id
	t.pending.Store(id, pendingSpan{span: span, ctx: ctx, start: time.Now()})
}

// EndDelivery 用 delivery report 结束先前登记的 span，未登记时返回 false
func (t *Tracer) EndDelivery(report *kafka.Message) bool {
	id, ok := report.Opaque.(string)
	if !ok || id == "" {
		return false
	}
	v, ok := t.pending.LoadAndDelete(id)
	if !ok {
		return false
	}
	p := v.(pendingSpan)
	t.FinishProduce(p.ctx, p.span, report, time.Since(p.start))
	return true
}

// FinishProduce 记录分区、offset 和错误后结束 span
func (t *Tracer) FinishProduce(ctx context.Context, span trace.Span, report *kafka.Message, elapsed time.Duration) {
	defer span.End()

	status := "success"
	if err := report.TopicPartition.Error; err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		kafkaErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("messaging.operation", "publish")))
	} else {
		span.SetAttributes(
			semconv.MessagingKafkaDestinationPartition(int(report.TopicPartition.Partition)),
			semconv.MessagingKafkaMessageOffset(int(report.TopicPartition.Offset)),
		)
		span.SetStatus(codes.Ok, "")
	}

	labels := metric.WithAttributes(
		semconv.MessagingSystem("kafka"),
		attribute.String("messaging.operation", "publish"),
		attribute.String("messaging.destination.name", topicOf(report)),
		attribute.String("messaging.status", status),
	)
	kafkaMessagesTotal.Add(ctx, 1, labels)
	kafkaProcessTime.Record(ctx, elapsed.Seconds(), labels)
}

// Process 从消息头恢复上下文，在 consumer span 内执行 fn
func (t *Tracer) Process(ctx context.Context, group string, msg *kafka.Message, fn func(ctx context.Context) error) error {
	start := time.Now()
	topic := topicOf(msg)

	ctx = t.propagator.Extract(ctx, NewMessageCarrier(msg))
	ctx, span := t.tracer.Start(ctx, topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystem("kafka"),
			semconv.MessagingOperationProcess,
			semconv.MessagingDestinationName(topic),
			semconv.MessagingKafkaConsumerGroup(group),
			semconv.MessagingKafkaMessageKey(string(msg.Key)),
			semconv.MessagingKafkaDestinationPartition(int(msg.TopicPartition.Partition)),
			semconv.MessagingKafkaMessageOffset(int(msg.TopicPartition.Offset)),
		),
	)
	defer span.End()

	err := fn(ctx)
	status := "success"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		kafkaErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("messaging.operation", "process")))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	labels := metric.WithAttributes(
		semconv.MessagingSystem("kafka"),
		attribute.String("messaging.operation", "process"),
		attribute.String("messaging.destination.name", topic),
		attribute.String("messaging.status", status),
	)
	kafkaMessagesTotal.Add(ctx, 1, labels)
	kafkaProcessTime.Record(ctx, time.Since(start).Seconds(), labels)
	return err
}
