package main

import (
	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/internal/bootstrap"
	"otelsamples/internal/router"
	"otelsamples/pkg/logger"
	"otelsamples/storage"
	"otelsamples/storage/redis"
)

func main() {
	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	shutdown := bootstrap.Init(ctx, "")
	defer shutdown()

	if err := storage.Init(storage.Redis); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	app := bootstrap.TasksApp(config.Cfg)

	h := bootstrap.NewHertz(config.Cfg, "celery")
	router.Tasks(h.Engine, app, redis.Client(), config.Cfg.TasksRateLimitRPM)

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("queue", app.Broker.QueueKey()),
		zap.Int("rate_limit_rpm", config.Cfg.TasksRateLimitRPM),
	)
	bootstrap.Serve(ctx, h)
}
