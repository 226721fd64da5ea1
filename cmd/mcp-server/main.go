package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/internal/bootstrap"
	"otelsamples/internal/tools"
	"otelsamples/pkg/logger"
)

func main() {
	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	shutdown := bootstrap.Init(ctx, "mcp-server")
	defer shutdown()

	s := tools.NewServer(config.Cfg.ServiceVersion)
	srv := &http.Server{
		Addr:              config.Cfg.MCPAddr,
		Handler:           otelhttp.NewHandler(tools.Handler(s), "mcp"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown MCP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("MCP server listening",
		zap.String("name", tools.ServerName),
		zap.String("addr", config.Cfg.MCPAddr),
		zap.String("path", tools.EndpointPath),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Logger.Fatal("MCP server failed", zap.Error(err))
	}
	logger.Logger.Info("MCP server stopped")
}
