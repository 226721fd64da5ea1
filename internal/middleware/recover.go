package middleware

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/pkg/logger"
	"otelsamples/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	// 是否记录堆栈
	EnableStackTrace bool
	// 是否在响应中返回 panic 内容，生产环境默认关闭
	ExposeDetails bool
	// 是否记录请求头
	LogRequestDetails bool
	// 是否在当前 span 上记录异常
	RecordInSpan bool
}

// NewRecoverConfig 创建 recover 配置
func NewRecoverConfig() RecoverConfig {
	return RecoverConfig{
		EnableStackTrace:  true,
		ExposeDetails:     !config.Cfg.IsProduction(),
		LogRequestDetails: true,
		RecordInSpan:      true,
	}
}

// RecoverMiddleware 创建 recover 中间件
func RecoverMiddleware() app.HandlerFunc {
	return RecoverMiddlewareWithConfig(NewRecoverConfig())
}

// RecoverMiddlewareWithConfig 带配置的 recover 中间件
func RecoverMiddlewareWithConfig(cfg RecoverConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if r := recover(); r != nil {
				handlePanic(ctx, c, r, cfg)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, r interface{}, cfg RecoverConfig) {
	var stack []byte
	if cfg.EnableStackTrace {
		stack = debug.Stack()
	}

	panicErr, ok := r.(error)
	if !ok {
		panicErr = fmt.Errorf("%v", r)
	}

	fields := []zap.Field{
		zap.String("panic", panicErr.Error()),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
	}
	if cfg.LogRequestDetails {
		headers := make(map[string]string)
		c.Request.Header.VisitAll(func(key, value []byte) {
			headers[string(key)] = string(value)
		})
		fields = append(fields, zap.Any("headers", headers))
	}
	if len(stack) > 0 {
		fields = append(fields, zap.String("stack", trimStack(stack)))
	}

	if cfg.RecordInSpan {
		span := trace.SpanFromContext(ctx)
		span.RecordError(panicErr, trace.WithAttributes(
			attribute.String("exception.type", fmt.Sprintf("%T", r)),
			attribute.Bool("exception.escaped", true),
		))
		span.SetStatus(codes.Error, panicErr.Error())
	}

	logger.WithContext(ctx).Error("[PANIC RECOVERED]", fields...)

	_ = c.Error(panicErr)

	msg := "Internal server error"
	if cfg.ExposeDetails {
		msg = "Internal error: " + panicErr.Error()
	}
	response.ErrorWithStatus(ctx, c, consts.StatusInternalServerError, errors.New(msg))
	c.Abort()
}

// trimStack 去掉 runtime 与 recover 自身的帧
func trimStack(stack []byte) string {
	lines := strings.Split(string(stack), "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, "runtime/panic.go") ||
			strings.Contains(line, "runtime/debug/stack.go") ||
			strings.Contains(line, "middleware.handlePanic") {
			continue
		}
		filtered = append(filtered, line)
	}
	return strings.Join(filtered, "\n")
}
