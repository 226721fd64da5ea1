package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/internal/bootstrap"
	"otelsamples/internal/tools"
	"otelsamples/pkg/logger"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdown := bootstrap.Init(ctx, "mcp-client")
	defer shutdown()

	// 整个会话挂在一个根 span 下，otelhttp 的 client span 都是它的子 span
	ctx, span := otel.Tracer("otelsamples.mcp.client").Start(ctx, "mcp-client session")
	defer span.End()

	c, err := tools.Dial(ctx, config.Cfg.MCPURL, config.Cfg.ServiceVersion)
	if err != nil {
		logger.Logger.Fatal("Failed to connect to MCP server", zap.String("url", config.Cfg.MCPURL), zap.Error(err))
	}
	defer c.Close()

	names, err := c.ToolNames(ctx)
	if err != nil {
		logger.Logger.Fatal("Failed to list tools", zap.Error(err))
	}
	fmt.Printf("Available tools: %v\n", names)

	result, err := c.Call(ctx, tools.ToolAdd, map[string]any{"a": 10, "b": 25})
	if err != nil {
		logger.Logger.Fatal("Tool call failed", zap.String("tool", tools.ToolAdd), zap.Error(err))
	}
	fmt.Printf("add_numbers(10, 25) = %s\n", result)
}
