package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"otelsamples/pkg/logger"
)

const tracerName = "otelsamples.mcp"

var (
	toolInvocations metric.Int64Counter
	toolDuration    metric.Float64Histogram
)

func init() {
	meter := otel.Meter(tracerName)
	toolInvocations, _ = meter.Int64Counter(
		"mcp.tool.invocations",
		metric.WithDescription("Number of MCP tool invocations by tool name and status"),
		metric.WithUnit("{call}"),
	)
	toolDuration, _ = meter.Float64Histogram(
		"mcp.tool.duration",
		metric.WithDescription("MCP tool execution duration"),
		metric.WithUnit("s"),
	)
}

// TracingMiddleware 每次工具调用一个 "mcp.tool <name>" span，并记录日志和指标
func TracingMiddleware() server.ToolHandlerMiddleware {
	tracer := otel.Tracer(tracerName)

	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name := req.Params.Name
			start := time.Now()

			ctx, span := tracer.Start(ctx, "mcp.tool "+name,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("mcp.tool.name", name),
					attribute.Int("mcp.tool.arguments.count", len(req.GetArguments())),
				),
			)
			defer span.End()

			res, err := next(ctx, req)

			status := "success"
			switch {
			case err != nil:
				status = "error"
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			case res != nil && res.IsError:
				status = "tool_error"
				span.SetStatus(codes.Error, "tool returned an error result")
			default:
				span.SetStatus(codes.Ok, "")
			}
			span.SetAttributes(attribute.String("mcp.tool.status", status))

			elapsed := time.Since(start)
			attrs := metric.WithAttributes(
				attribute.String("mcp.tool.name", name),
				attribute.String("mcp.tool.status", status),
			)
			toolInvocations.Add(ctx, 1, attrs)
			toolDuration.Record(ctx, elapsed.Seconds(), attrs)

			logger.WithContext(ctx).Info("MCP tool called",
				zap.String("tool", name),
				zap.String("status", status),
				zap.Duration("duration", elapsed),
			)
			return res, err
		}
	}
}
