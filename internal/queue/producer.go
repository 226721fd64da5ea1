package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"otelsamples/internal/model"
	pkgkafka "otelsamples/pkg/kafka"
	"otelsamples/pkg/logger"
	"otelsamples/pkg/snowflake"
)

// Producer 按固定间隔发送示例消息
type Producer struct {
	p      *kafka.Producer
	tracer *pkgkafka.Tracer
	opts   Options
	events chan struct{}
}

func NewProducer(opts Options) (*Producer, error) {
	opts = opts.withDefaults()

	cfg := &kafka.ConfigMap{
		"bootstrap.servers": opts.BootstrapServers,
		"acks":              "all",
		"retries":           3,
	}
	if opts.ClientID != "" {
		_ = cfg.SetKey("client.id", opts.ClientID)
	}

	p, err := kafka.NewProducer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	producer := &Producer{
		p:      p,
		tracer: pkgkafka.NewTracer(opts.ServiceName),
		opts:   opts,
		events: make(chan struct{}),
	}
	go producer.drainEvents()
	return producer, nil
}

// drainEvents Events() 在 Close 后关闭；sync 模式下这里只会收到错误事件
func (p *Producer) drainEvents() {
	defer close(p.events)

	for e := range p.p.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if p.tracer.EndDelivery(ev) {
				logDelivery(ev)
			}
		case kafka.Error:
			logger.Logger.Warn("Kafka producer error",
				zap.String("code", ev.Code().String()),
				zap.Error(ev),
			)
		}
	}
}

func logDelivery(report *kafka.Message) {
	if err := report.TopicPartition.Error; err != nil {
		logger.Logger.Error("Message delivery failed",
			zap.String("topic", topicOf(report)),
			zap.Error(err),
		)
		return
	}
	logger.Logger.Info("Message delivered",
		zap.String("topic", topicOf(report)),
		zap.Int32("partition", report.TopicPartition.Partition),
		zap.Int64("offset", int64(report.TopicPartition.Offset)),
	)
}

func topicOf(msg *kafka.Message) string {
	if msg.TopicPartition.Topic != nil {
		return *msg.TopicPartition.Topic
	}
	return ""
}

func newMessage(topic string, n int) (*kafka.Message, error) {
	value, err := json.Marshal(model.KafkaMessage{
		ID:        n,
		Message:   fmt.Sprintf("Hello from Go producer - message %d", n),
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(fmt.Sprintf("key-%d", n)),
		Value:          value,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(snowflake.NextIDString())},
		},
	}, nil
}

// Send 发送第 n 条消息；sync 模式阻塞到 delivery report 返回
func (p *Producer) Send(ctx context.Context, n int) error {
	msg, err := newMessage(p.opts.Topic, n)
	if err != nil {
		return err
	}

	ctx, span := p.tracer.StartProduce(ctx, msg)
	start := time.Now()

	if p.opts.Mode == ModeAsync {
		p.tracer.TrackDelivery(ctx, msg, span)
		if err := p.p.Produce(msg, nil); err != nil {
			p.tracer.EndDelivery(&kafka.Message{
				TopicPartition: kafka.TopicPartition{Topic: msg.TopicPartition.Topic, Error: err},
				Opaque:         msg.Opaque,
			})
			return err
		}
		return nil
	}

	delivery := make(chan kafka.Event, 1)
	if err := p.p.Produce(msg, delivery); err != nil {
		p.tracer.FinishProduce(ctx, span, &kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: msg.TopicPartition.Topic, Error: err},
		}, time.Since(start))
		return err
	}

	select {
	case e := <-delivery:
		report, ok := e.(*kafka.Message)
		if !ok {
			err := fmt.Errorf("unexpected delivery event %v", e)
			p.tracer.FinishProduce(ctx, span, &kafka.Message{
				TopicPartition: kafka.TopicPartition{Topic: msg.TopicPartition.Topic, Error: err},
			}, time.Since(start))
			return err
		}
		p.tracer.FinishProduce(ctx, span, report, time.Since(start))
		logDelivery(report)
		return report.TopicPartition.Error
	case <-ctx.Done():
		span.End()
		return ctx.Err()
	}
}

// Run 立即发送第一条，之后每个 Interval 发送一条，ctx 结束后 flush
func (p *Producer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	logger.Logger.Info("Kafka producer started",
		zap.String("topic", p.opts.Topic),
		zap.String("mode", p.opts.Mode),
		zap.Duration("interval", p.opts.Interval),
	)

	for n := 1; ; n++ {
		if err := p.Send(ctx, n); err != nil && ctx.Err() == nil {
			logger.Logger.Error("Failed to send message", zap.Int("id", n), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.Flush()
			logger.Logger.Info("Kafka producer stopped", zap.Int("sent", n))
			return nil
		case <-ticker.C:
		}
	}
}

// Flush 最多等待 5s，返回仍未投递的条数
func (p *Producer) Flush() int {
	remaining := p.p.Flush(5000)
	if remaining > 0 {
		logger.Logger.Warn("Kafka producer flush timed out", zap.Int("remaining", remaining))
	}
	return remaining
}

func (p *Producer) Close() {
	p.p.Close()
	<-p.events
}
