package main

import (
	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/internal/bootstrap"
	"otelsamples/internal/router"
	"otelsamples/pkg/logger"
)

func main() {
	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	framework := config.Cfg.WebFramework
	shutdown := bootstrap.Init(ctx, "")
	defer shutdown()

	deps := bootstrap.HandlerDeps(ctx, config.Cfg, framework)

	h := bootstrap.NewHertz(config.Cfg, framework)
	router.Web(h.Engine, deps)

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("framework", framework),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
	)
	bootstrap.Serve(ctx, h)
}
