package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otelsamples/pkg/logger"
)

// Role 控制 Run 启动哪些循环
type Role int

const (
	RoleBoth Role = iota
	RoleProducer
	RoleConsumer
)

func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "producer"
	case RoleConsumer:
		return "consumer"
	default:
		return "producer+consumer"
	}
}

// Run 等待 Kafka 就绪后运行 Duration（<=0 时直到 ctx 结束），收尾最多等 StopTimeout
func Run(ctx context.Context, opts Options, role Role, handle Handler) error {
	opts = opts.withDefaults()

	if err := WaitForKafka(ctx, opts); err != nil {
		return err
	}
	logger.Logger.Info("Kafka is ready",
		zap.String("bootstrap_servers", opts.BootstrapServers),
		zap.String("role", role.String()),
	)

	runCtx, cancel := context.WithCancel(ctx)
	if opts.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Duration)
	}
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	if role != RoleConsumer {
		producer, err := NewProducer(opts)
		if err != nil {
			return err
		}
		defer producer.Close()
		g.Go(func() error { return producer.Run(gctx) })
	}

	if role != RoleProducer {
		consumer, err := NewConsumer(opts, handle)
		if err != nil {
			return err
		}
		defer consumer.Close()
		g.Go(func() error { return consumer.Run(gctx) })
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
	}

	select {
	case err := <-done:
		logger.Logger.Info("Kafka sample finished", zap.String("role", role.String()))
		return err
	case <-time.After(opts.StopTimeout):
		logger.Logger.Warn("Kafka loops did not stop in time", zap.Duration("timeout", opts.StopTimeout))
		return nil
	}
}
