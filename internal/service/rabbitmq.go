package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otelsamples/internal/model"
	pkgerrors "otelsamples/pkg/errors"
	"otelsamples/pkg/logger"
	pkgmq "otelsamples/pkg/mq"
	"otelsamples/storage/mq"
)

const (
	// MaxBufferedMessages 缓存上限，超出后丢弃最旧的
	MaxBufferedMessages = 50
	// RecentMessages /messages 最多返回条数
	RecentMessages = 20
)

type RabbitMQOptions struct {
	Dialer      mq.Dialer
	Host        string
	Port        string
	ServiceName string
	// Async 对应 aio-pika 变体：prefetch=1，批量并发发布
	Async bool
}

// RabbitMQStatus /connection-status 的内容
type RabbitMQStatus struct {
	Connected        bool                  `json:"connected"`
	ConnectionInfo   *model.ConnectionInfo `json:"connection_info"`
	ConsumerRunning  bool                  `json:"consumer_running"`
	MessagesReceived int                   `json:"messages_received"`
}

// RabbitMQService 共享一条连接和一个 channel，外加至多一个后台消费者
type RabbitMQService struct {
	opts RabbitMQOptions

	mu       sync.Mutex
	session  *mq.Session
	consumer *mq.Consumer
	queue    string
	done     chan struct{}

	msgMu    sync.Mutex
	messages []model.ReceivedMessage
}

func NewRabbitMQService(opts RabbitMQOptions) *RabbitMQService {
	return &RabbitMQService{opts: opts}
}

func (s *RabbitMQService) library() string {
	if s.opts.Async {
		return "amqp091-go (async)"
	}
	return "amqp091-go"
}

func (s *RabbitMQService) connectionInfo() *model.ConnectionInfo {
	return &model.ConnectionInfo{
		Host:    s.opts.Host,
		Port:    s.opts.Port,
		IsOpen:  s.session != nil && s.session.IsOpen(),
		Library: s.library(),
	}
}

func (s *RabbitMQService) connected() bool {
	return s.session != nil && s.session.IsOpen()
}

// Connect 建立连接；已连接时直接返回当前连接信息
func (s *RabbitMQService) Connect(ctx context.Context) (*model.ConnectionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected() {
		return s.connectionInfo(), nil
	}

	conn, err := s.opts.Dialer(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap("Connection", err)
	}
	s.session = mq.NewSession(conn, s.opts.ServiceName)
	if _, err := s.session.Channel(); err != nil {
		_ = s.session.Close()
		s.session = nil
		return nil, pkgerrors.Wrap("Connection", err)
	}

	logger.WithContext(ctx).Info("Connected to RabbitMQ",
		zap.String("host", s.opts.Host),
		zap.String("port", s.opts.Port),
		zap.Bool("async", s.opts.Async),
	)
	return s.connectionInfo(), nil
}

// Disconnect 先停消费者再关连接，未连接时返回 false
func (s *RabbitMQService) Disconnect(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return false, nil
	}

	s.stopConsumerLocked()
	err := s.session.Close()
	s.session = nil
	if err != nil {
		return true, pkgerrors.Wrap("Disconnect", err)
	}

	logger.WithContext(ctx).Info("Disconnected from RabbitMQ")
	return true, nil
}

func (s *RabbitMQService) Status() RabbitMQStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := RabbitMQStatus{
		Connected:        s.connected(),
		ConsumerRunning:  s.consumer != nil,
		MessagesReceived: s.bufferLen(),
	}
	if st.Connected {
		st.ConnectionInfo = s.connectionInfo()
	}
	return st
}

// channel 调用方需持有 s.mu
func (s *RabbitMQService) channel() (*pkgmq.InstrumentedChannel, error) {
	if !s.connected() {
		return nil, pkgerrors.NotConnected
	}
	return s.session.Channel()
}

// CreateQueue 声明 durable 队列
func (s *RabbitMQService) CreateQueue(ctx context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return pkgerrors.Wrap("Queue creation", err)
	}
	return nil
}

// QueueInfo 被动声明，队列不存在时报错
func (s *RabbitMQService) QueueInfo(ctx context.Context, queue string) (amqp.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return amqp.Queue{}, err
	}
	q, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, pkgerrors.Wrap("Queue info", err)
	}
	return q, nil
}

// Publish 发布一条 JSON 消息，返回实际发布的消息体
func (s *RabbitMQService) Publish(ctx context.Context, queue string, message interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return nil, err
	}
	if message == nil {
		message = map[string]string{"hello": "world"}
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, pkgerrors.Wrap("Publish", err)
	}
	if _, err := mq.PublishJSON(ctx, ch, queue, message); err != nil {
		return nil, pkgerrors.Wrap("Publish", err)
	}
	return message, nil
}

// PublishBatch 发布 count 条消息；异步模式下并发发布
func (s *RabbitMQService) PublishBatch(ctx context.Context, queue string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return pkgerrors.Wrap("Batch publish", err)
	}

	bodies := make([]model.BatchMessage, count)
	for i := range bodies {
		bodies[i] = model.BatchMessage{
			ID:        i + 1,
			Message:   fmt.Sprintf("Batch message %d", i+1),
			Timestamp: time.Now().Format(time.RFC3339),
		}
	}

	if !s.opts.Async {
		for _, body := range bodies {
			if _, err := mq.PublishJSON(ctx, ch, queue, body); err != nil {
				return pkgerrors.Wrap("Batch publish", err)
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, body := range bodies {
		body := body
		g.Go(func() error {
			_, err := mq.PublishJSON(gctx, ch, queue, body)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return pkgerrors.Wrap("Batch publish", err)
	}
	return nil
}

// StartConsumer 启动后台消费者，已在运行时返回 false
func (s *RabbitMQService) StartConsumer(ctx context.Context, queue string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return false, err
	}
	if s.consumer != nil {
		return false, nil
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return false, pkgerrors.Wrap("Consumer start", err)
	}

	prefetch := 0
	if s.opts.Async {
		prefetch = 1
	}
	consumer, err := mq.NewConsumer(ch, mq.ConsumeOptions{
		Queue:         queue,
		ConsumerTag:   "otelsamples-" + uuid.NewString(),
		PrefetchCount: prefetch,
		Handler:       s.handleDelivery,
	})
	if err != nil {
		return false, pkgerrors.Wrap("Consumer start", err)
	}

	done := make(chan struct{})
	s.consumer, s.queue, s.done = consumer, queue, done
	go func() {
		defer close(done)
		// 消费循环不随请求 ctx 结束
		if err := consumer.Run(context.Background()); err != nil {
			logger.Logger.Error("Consumer error", zap.String("queue", queue), zap.Error(err))
		}
	}()
	return true, nil
}

// StopConsumer 取消消费者并等待循环退出，未运行时返回 false
func (s *RabbitMQService) StopConsumer(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumer == nil {
		return false, nil
	}
	if err := s.stopConsumerLocked(); err != nil {
		return true, pkgerrors.Wrap("Consumer stop", err)
	}
	return true, nil
}

func (s *RabbitMQService) stopConsumerLocked() error {
	if s.consumer == nil {
		return nil
	}

	err := s.consumer.Stop()
	if err == nil {
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			logger.Logger.Warn("Consumer did not stop in time", zap.String("queue", s.queue))
		}
	}
	s.consumer, s.done, s.queue = nil, nil, ""
	return err
}

func (s *RabbitMQService) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var body interface{}
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		body = string(msg.Body)
	}

	s.appendMessage(model.ReceivedMessage{
		Timestamp:   time.Now().Format("15:04:05"),
		Queue:       s.queueName(msg),
		Body:        body,
		DeliveryTag: msg.DeliveryTag,
	})

	logger.WithContext(ctx).Info("Received message",
		zap.String("routing_key", msg.RoutingKey),
		zap.Uint64("delivery_tag", msg.DeliveryTag),
	)
	return nil
}

func (s *RabbitMQService) queueName(msg amqp.Delivery) string {
	// 默认 exchange 上 routing key 即队列名
	return msg.RoutingKey
}

func (s *RabbitMQService) appendMessage(m model.ReceivedMessage) {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()

	s.messages = append(s.messages, m)
	if over := len(s.messages) - MaxBufferedMessages; over > 0 {
		s.messages = append([]model.ReceivedMessage(nil), s.messages[over:]...)
	}
}

func (s *RabbitMQService) bufferLen() int {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()
	return len(s.messages)
}

// Messages 返回最近 20 条和缓存总数
func (s *RabbitMQService) Messages() ([]model.ReceivedMessage, int) {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()

	start := len(s.messages) - RecentMessages
	if start < 0 {
		start = 0
	}
	out := make([]model.ReceivedMessage, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out, len(s.messages)
}

func (s *RabbitMQService) ClearMessages() {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()
	s.messages = nil
}

// Close 进程退出时调用
func (s *RabbitMQService) Close(ctx context.Context) error {
	_, err := s.Disconnect(ctx)
	return err
}
