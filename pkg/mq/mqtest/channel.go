// Package mqtest 提供内存版 AMQP channel，供不依赖 RabbitMQ 的测试使用。
package mqtest

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrClosed = errors.New("mqtest: channel closed")

type queue struct {
	durable  bool
	pending  []amqp.Delivery
	consumer chan amqp.Delivery
	tag      string
}

// Channel 内存实现：默认 exchange 下 routing key 即队列名
type Channel struct {
	mu        sync.Mutex
	queues    map[string]*queue
	published []amqp.Publishing
	closed    bool
	nextTag   uint64
	prefetch  int
	acked     int
	nacked    int

	// PublishErr 非空时 PublishWithContext 直接返回该错误
	PublishErr error
}

func NewChannel() *Channel {
	return &Channel{queues: make(map[string]*queue)}
}

func (c *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.PublishErr != nil {
		return c.PublishErr
	}

	c.published = append(c.published, msg)
	q, ok := c.queues[key]
	if !ok {
		// 未声明的队列消息被丢弃，与 RabbitMQ 默认行为一致
		return nil
	}

	c.nextTag++
	d := amqp.Delivery{
		Acknowledger: acker{c},
		Headers:      msg.Headers,
		ContentType:  msg.ContentType,
		DeliveryMode: msg.DeliveryMode,
		MessageId:    msg.MessageId,
		Timestamp:    msg.Timestamp,
		RoutingKey:   key,
		DeliveryTag:  c.nextTag,
		Body:         msg.Body,
	}
	if q.consumer != nil {
		q.consumer <- d
		return nil
	}
	q.pending = append(q.pending, d)
	return nil
}

func (c *Channel) Consume(name, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	q, ok := c.queues[name]
	if !ok {
		return nil, &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND - no queue '" + name + "'"}
	}

	q.consumer = make(chan amqp.Delivery, 128)
	q.tag = consumer
	for _, d := range q.pending {
		q.consumer <- d
	}
	q.pending = nil
	return q.consumer, nil
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return amqp.Queue{}, ErrClosed
	}
	q, ok := c.queues[name]
	if !ok {
		q = &queue{durable: durable}
		c.queues[name] = q
	}
	return c.info(name, q), nil
}

func (c *Channel) QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return amqp.Queue{}, ErrClosed
	}
	q, ok := c.queues[name]
	if !ok {
		return amqp.Queue{}, &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND - no queue '" + name + "'"}
	}
	return c.info(name, q), nil
}

func (c *Channel) info(name string, q *queue) amqp.Queue {
	consumers := 0
	if q.consumer != nil {
		consumers = 1
	}
	return amqp.Queue{Name: name, Messages: len(q.pending), Consumers: consumers}
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

// Cancel 关闭对应消费者的 delivery channel，与 amqp091 行为一致
func (c *Channel) Cancel(consumer string, noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, q := range c.queues {
		if q.consumer != nil && q.tag == consumer {
			close(q.consumer)
			q.consumer = nil
			q.tag = ""
		}
	}
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for _, q := range c.queues {
		if q.consumer != nil {
			close(q.consumer)
			q.consumer = nil
		}
	}
	return nil
}

func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Published 返回已发布的全部消息
func (c *Channel) Published() []amqp.Publishing {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]amqp.Publishing, len(c.published))
	copy(out, c.published)
	return out
}

// Prefetch 返回最近一次 Qos 设置的 prefetch
func (c *Channel) Prefetch() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefetch
}

// Durable 返回队列是否以 durable 声明
func (c *Channel) Durable(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[name]
	return ok && q.durable
}

// Acks 返回 ack 与 nack 次数
func (c *Channel) Acks() (acked, nacked int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acked, c.nacked
}

type acker struct{ c *Channel }

func (a acker) Ack(tag uint64, multiple bool) error {
	a.c.mu.Lock()
	a.c.acked++
	a.c.mu.Unlock()
	return nil
}

func (a acker) Nack(tag uint64, multiple bool, requeue bool) error {
	a.c.mu.Lock()
	a.c.nacked++
	a.c.mu.Unlock()
	return nil
}

func (a acker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}
