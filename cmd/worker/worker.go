package main

import (
	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/internal/bootstrap"
	"otelsamples/internal/tasks"
	"otelsamples/pkg/logger"
	"otelsamples/storage"
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
	w := tasks.NewWorker(app, tasks.WorkerOptions{
		Concurrency:       config.Cfg.TasksConcurrency,
		HeartbeatInterval: config.Cfg.TasksHeartbeatInterval,
	})

	if err := w.Run(ctx); err != nil {
		logger.Logger.Error("Worker stopped with error", zap.Error(err))
	}
}
