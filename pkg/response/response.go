package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"otelsamples/pkg/errors"
	"otelsamples/pkg/logger"

	"go.uber.org/zap"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const (
	StatusSuccess = "success"
	StatusInfo    = "info"
	StatusError   = "error"
)

func errorToHTTPStatus(err error) int {
	def, ok := errors.AsDefinition(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch def.Code {
	case errors.TooManyRequests.Code:
		return http.StatusTooManyRequests // 429
	case errors.InvalidNumbers.Code, errors.InvalidRequest.Code, errors.NotConnected.Code:
		return http.StatusBadRequest // 400
	case errors.UserNotFound.Code, errors.TaskNotFound.Code, errors.NotFound.Code:
		return http.StatusNotFound // 404
	case errors.BrokerUnavailable.Code:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// Error 返回 {"status":"error","message":...}
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithStatus(ctx, c, errorToHTTPStatus(err), err)
}

// ErrorWithStatus 以指定状态码返回统一的错误格式
func ErrorWithStatus(ctx context.Context, c *app.RequestContext, statusCode int, err error) {
	logger.WithContext(ctx).Warn("Request failed",
		zap.String("path", string(c.Path())),
		zap.Int("status", statusCode),
		zap.Error(err),
	)

	c.JSON(statusCode, ErrorResponse{
		Status:  StatusError,
		Message: err.Error(),
	})
}

// ErrorWithFields 在错误格式上附加字段，如 user_id
func ErrorWithFields(ctx context.Context, c *app.RequestContext, err error, fields utils.H) {
	body := utils.H{}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(errorToHTTPStatus(err), body)
}

// JSON 原样返回业务字段
func JSON(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Success 返回 {"status":"success","message":...} 并合并额外字段
func Success(ctx context.Context, c *app.RequestContext, message string, extra utils.H) {
	write(c, http.StatusOK, StatusSuccess, message, extra)
}

// Info 表示请求被接受但无事可做，如重复启动消费者
func Info(ctx context.Context, c *app.RequestContext, message string, extra utils.H) {
	write(c, http.StatusOK, StatusInfo, message, extra)
}

func write(c *app.RequestContext, code int, status, message string, extra utils.H) {
	body := utils.H{"status": status}
	if message != "" {
		body["message"] = message
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(code, body)
}

// NoContent 返回 204 No Content（用于 DELETE 等操作）
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}

// Created 返回 201 与业务字段
func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, data)
}
