package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"otelsamples/internal/model"
	pkgkafka "otelsamples/pkg/kafka"
	"otelsamples/pkg/logger"
)

const pollTimeoutMs = 100

// Handler 每条消息在 process span 内调用；value 解码失败时 msg 为 nil
type Handler func(ctx context.Context, msg *model.KafkaMessage, raw *kafka.Message) error

// Consumer 订阅 topic 并轮询
type Consumer struct {
	c      *kafka.Consumer
	tracer *pkgkafka.Tracer
	opts   Options
	handle Handler
}

func NewConsumer(opts Options, handle Handler) (*Consumer, error) {
	opts = opts.withDefaults()

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":    opts.BootstrapServers,
		"group.id":             opts.GroupID,
		"auto.offset.reset":    "earliest",
		"enable.auto.commit":   true,
		"enable.partition.eof": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{
		c:      c,
		tracer: pkgkafka.NewTracer(opts.ServiceName),
		opts:   opts,
		handle: handle,
	}, nil
}

// Run 轮询直到 ctx 结束或遇到 fatal 错误
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.c.SubscribeTopics([]string{c.opts.Topic}, nil); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", c.opts.Topic, err)
	}
	logger.Logger.Info("Kafka consumer started",
		zap.String("topic", c.opts.Topic),
		zap.String("group_id", c.opts.GroupID),
	)

	for ctx.Err() == nil {
		switch e := c.c.Poll(pollTimeoutMs).(type) {
		case nil:
		case *kafka.Message:
			_ = c.tracer.Process(ctx, c.opts.GroupID, e, func(ctx context.Context) error {
				return c.process(ctx, e)
			})
		case kafka.PartitionEOF:
			logger.Logger.Info("Reached end of partition",
				zap.Stringp("topic", e.Topic),
				zap.Int32("partition", e.Partition),
				zap.Int64("offset", int64(e.Offset)),
			)
		case kafka.Error:
			if e.IsFatal() {
				logger.Logger.Error("Kafka consumer fatal error", zap.Error(e))
				return e
			}
			logger.Logger.Warn("Kafka consumer error", zap.Error(e))
		}
	}

	logger.Logger.Info("Kafka consumer stopped", zap.String("topic", c.opts.Topic))
	return nil
}

func (c *Consumer) process(ctx context.Context, raw *kafka.Message) error {
	fields := []zap.Field{
		zap.String("key", string(raw.Key)),
		zap.Int32("partition", raw.TopicPartition.Partition),
		zap.Int64("offset", int64(raw.TopicPartition.Offset)),
	}

	var msg *model.KafkaMessage
	var decoded model.KafkaMessage
	if err := json.Unmarshal(raw.Value, &decoded); err == nil {
		msg = &decoded
		fields = append(fields, zap.Int("id", decoded.ID), zap.String("value", decoded.Message))
	} else {
		fields = append(fields, zap.String("value", string(raw.Value)))
	}
	logger.WithContext(ctx).Info("Received message", fields...)

	if c.handle == nil {
		return nil
	}
	return c.handle(ctx, msg, raw)
}

func (c *Consumer) Close() error {
	return c.c.Close()
}
