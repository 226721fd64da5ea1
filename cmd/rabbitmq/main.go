package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/internal/bootstrap"
	"otelsamples/internal/router"
	"otelsamples/pkg/logger"
)

func main() {
	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	shutdown := bootstrap.Init(ctx, "")
	defer shutdown()

	framework := "pika"
	if config.Cfg.IsAsyncRabbitMQ() {
		framework = "aio-pika"
	}

	svc := bootstrap.RabbitMQService(config.Cfg)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			logger.Logger.Error("Failed to close RabbitMQ", zap.Error(err))
		}
	}()

	h := bootstrap.NewHertz(config.Cfg, framework)
	router.RabbitMQ(h.Engine, svc)

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("mode", config.Cfg.RabbitMQMode),
		zap.String("rabbitmq", config.Cfg.RabbitMQAddr+":"+config.Cfg.RabbitMQPort),
	)
	bootstrap.Serve(ctx, h)
}
