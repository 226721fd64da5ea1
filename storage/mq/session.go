package mq

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"otelsamples/pkg/logger"
	pkgmq "otelsamples/pkg/mq"
)

// Session 持有一条连接和一个按需重建的 channel
type Session struct {
	conn        Connection
	serviceName string

	mu sync.RWMutex // 读多写少
	ch *pkgmq.InstrumentedChannel
}

func NewSession(conn Connection, serviceName string) *Session {
	return &Session{conn: conn, serviceName: serviceName}
}

// Channel 返回当前 channel，已关闭时重新打开
func (s *Session) Channel() (*pkgmq.InstrumentedChannel, error) {
	s.mu.RLock()
	if s.ch != nil && !s.ch.IsClosed() {
		ch := s.ch
		s.mu.RUnlock()
		return ch, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}

	if s.conn == nil || s.conn.IsClosed() {
		return nil, errors.New("RabbitMQ connection is closed")
	}

	raw, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	s.ch = pkgmq.NewInstrumentedChannel(raw, s.serviceName)

	logger.Logger.Info("RabbitMQ channel opened",
		zap.String("component", "rabbitmq"),
	)
	return s.ch, nil
}

// IsOpen 连接未关闭即视为打开
func (s *Session) IsOpen() bool {
	return s.conn != nil && !s.conn.IsClosed()
}

// Close 先关 channel 再关连接
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.ch != nil && !s.ch.IsClosed() {
		if err := s.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	s.ch = nil

	if s.conn != nil && !s.conn.IsClosed() {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
