// Package bootstrap 收拢各示例入口共用的启动步骤：日志、ID 生成器、OpenTelemetry 和 Hertz。
package bootstrap

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/internal/middleware"
	"otelsamples/internal/router"
	"otelsamples/pkg/logger"
	pkgotel "otelsamples/pkg/otel"
	"otelsamples/pkg/snowflake"
)

// OTelConfig 由全局配置生成，serviceName 非空时覆盖 SERVICE_NAME
func OTelConfig(cfg config.Config, serviceName string) pkgotel.Config {
	if serviceName == "" {
		serviceName = cfg.ServiceName
	}
	return pkgotel.Config{
		ServiceName:     serviceName,
		ServiceVersion:  cfg.ServiceVersion,
		Environment:     cfg.Environment,
		OTLPEndpoint:    cfg.OTLPEndpoint,
		SampleRatio:     cfg.SampleRatio,
		TracesExporter:  cfg.TracesExporter,
		MetricsExporter: cfg.MetricsExporter,
		Managed: pkgotel.ManagedConfig{
			Disabled:    cfg.ManagedDisabled,
			Endpoint:    cfg.ManagedEndpoint,
			ServiceName: cfg.ManagedService,
		},
	}
}

// Init 初始化日志、snowflake 和 OpenTelemetry，返回的函数负责 flush 和关闭
func Init(ctx context.Context, serviceName string) func() {
	config.Cfg.ServiceName = OTelConfig(config.Cfg, serviceName).ServiceName
	logger.Init()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Warn("Failed to initialize snowflake, falling back to node 0", zap.Error(err))
	}

	shutdown, err := pkgotel.InitOpenTelemetry(ctx, OTelConfig(config.Cfg, serviceName))
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}
	logger.Logger.Info("OpenTelemetry initialized",
		zap.String("traces_exporter", config.Cfg.TracesExporter),
		zap.String("metrics_exporter", config.Cfg.MetricsExporter),
	)

	return func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
		logger.Sync()
	}
}

// SignalContext 收到 SIGINT / SIGTERM 时取消
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Logger.Info("Received shutdown signal",
				zap.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// NewHertz 创建带 server span 的 Hertz 实例，超时对齐 gunicorn 配置，并挂上公共中间件
func NewHertz(cfg config.Config, framework string) *server.Hertz {
	tracerOpt, tracingMw := middleware.NewServerTracerConfig()

	addr := net.JoinHostPort(cfg.ServerHost, cfg.ServerPort)
	h := server.New(
		server.WithHostPorts(addr),
		server.WithReadTimeout(cfg.ServerReadTimeout),
		server.WithWriteTimeout(cfg.ServerWriteTimeout),
		server.WithIdleTimeout(cfg.ServerKeepAlive),
		server.WithExitWaitTime(5*time.Second),
		tracerOpt,
	)

	h.Use(tracingMw)
	router.Common(h.Engine, framework)
	if cfg.MetricsExporter == pkgotel.ExporterPrometheus {
		router.Metrics(h.Engine, cfg.MetricsPath)
	}
	return h
}

// Serve 阻塞运行，ctx 结束时优雅关闭
func Serve(ctx context.Context, h *server.Hertz) {
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening",
		zap.String("addr", net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)),
	)
	h.Spin()
	logger.Logger.Info("Server shutting down gracefully")
}
