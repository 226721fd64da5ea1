package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	pkgmq "otelsamples/pkg/mq"
)

// Connection 是 *amqp.Connection 的最小抽象，测试可替换
type Connection interface {
	Channel() (pkgmq.Channel, error)
	Close() error
	IsClosed() bool
}

// Dialer 建立一条新连接
type Dialer func(ctx context.Context) (Connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (pkgmq.Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Dial 连接 RabbitMQ，heartbeat 对齐 pika 示例的 600s
func Dial(url string, heartbeat time.Duration) (Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	return amqpConnection{Connection: conn}, nil
}

// NewDialer 返回固定地址的 Dialer
func NewDialer(url string, heartbeat time.Duration) Dialer {
	return func(ctx context.Context) (Connection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Dial(url, heartbeat)
	}
}
