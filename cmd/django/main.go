package main

import (
	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/internal/bootstrap"
	"otelsamples/internal/router"
	"otelsamples/pkg/logger"
	"otelsamples/storage"
	"otelsamples/storage/database"
)

func main() {
	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	shutdown := bootstrap.Init(ctx, "")
	defer shutdown()

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(storage.Database); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	deps := bootstrap.HandlerDeps(ctx, config.Cfg, "django")
	deps.DB = database.DB()

	h := bootstrap.NewHertz(config.Cfg, "django")
	router.Django(h.Engine, deps)

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("db_driver", config.Cfg.DBDriver),
	)
	bootstrap.Serve(ctx, h)
}
