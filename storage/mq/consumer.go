package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"otelsamples/pkg/logger"
	pkgmq "otelsamples/pkg/mq"
)

// MessageHandler 在 process span 内处理一条消息
type MessageHandler func(ctx context.Context, msg amqp.Delivery) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
	// Requeue 控制处理失败时是否重新入队
	Requeue bool
}

// Consumer 是一个已注册的消费者，Run 负责消费循环
type Consumer struct {
	ch   *pkgmq.InstrumentedChannel
	opts ConsumeOptions
	msgs <-chan amqp.Delivery
}

// NewConsumer 设置 QoS 并注册消费者，注册失败同步返回
func NewConsumer(ch *pkgmq.InstrumentedChannel, opts ConsumeOptions) (*Consumer, error) {
	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)
	return &Consumer{ch: ch, opts: opts, msgs: msgs}, nil
}

// Run 阻塞直到 delivery channel 关闭或 ctx 结束
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.msgs:
			if !ok {
				logger.Logger.Info("Consumer stopped",
					zap.String("queue", c.opts.Queue),
					zap.String("consumer_tag", c.opts.ConsumerTag),
				)
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	err := c.ch.ProcessDelivery(ctx, c.opts.Queue, msg, func(ctx context.Context) error {
		return c.opts.Handler(ctx, msg)
	})
	if err != nil {
		logger.WithContext(ctx).Error("Failed to process message",
			zap.String("queue", c.opts.Queue),
			zap.String("consumer_tag", c.opts.ConsumerTag),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		_ = msg.Nack(false, c.opts.Requeue)
		return
	}
	_ = msg.Ack(false)
}

// Stop 取消消费者，Run 随 delivery channel 关闭而返回
func (c *Consumer) Stop() error {
	return c.ch.Cancel(c.opts.ConsumerTag, false)
}
