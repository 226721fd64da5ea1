package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"otelsamples/internal/service"
	"otelsamples/pkg/errors"
	"otelsamples/pkg/response"
)

const handlerType = "static_method"

// ApiHandlers、UserHandlers、MathHandlers 都是无状态分组，路由注册时直接取方法值
type (
	ApiHandlers  struct{}
	UserHandlers struct{}
	MathHandlers struct{}
)

// GetStatus GET /static/api/status
func (ApiHandlers) GetStatus(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, utils.H{
		"status":       "healthy",
		"message":      "Hertz app with handler groups is running",
		"version":      "1.0.0",
		"handler_type": handlerType,
	})
}

// GetInfo GET /static/api/info
func (ApiHandlers) GetInfo(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, utils.H{
		"app_name":    "Static Methods Sample",
		"description": "Demonstrates method values of stateless types as route handlers",
		"endpoints": []utils.H{
			{"path": "/static/api/status", "method": "GET"},
			{"path": "/static/api/info", "method": "GET"},
			{"path": "/static/users", "method": "GET"},
			{"path": "/static/users", "method": "POST"},
			{"path": "/static/users/:id", "method": "GET"},
			{"path": "/static/math/add/:a/:b", "method": "GET"},
			{"path": "/static/math/multiply/:a/:b", "method": "GET"},
		},
		"handler_type": handlerType,
	})
}

// ListUsers GET /static/users
func (UserHandlers) ListUsers(ctx context.Context, c *app.RequestContext) {
	users := service.Users().List()
	response.JSON(ctx, c, utils.H{
		"users":        users,
		"count":        len(users),
		"handler_type": handlerType,
	})
}

// CreateUser POST /static/users
func (UserHandlers) CreateUser(ctx context.Context, c *app.RequestContext) {
	user := service.Users().CreateDemo()
	response.Created(ctx, c, utils.H{
		"message":      "User created successfully",
		"user":         user,
		"handler_type": handlerType,
	})
}

// GetUser GET /static/users/:id
func (UserHandlers) GetUser(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	user, ok := service.Users().Get(id)
	if !ok {
		response.ErrorWithFields(ctx, c, errors.UserNotFound, utils.H{
			"error":        errors.UserNotFound.Message,
			"user_id":      id,
			"handler_type": handlerType,
		})
		return
	}
	response.JSON(ctx, c, utils.H{
		"user":         user,
		"handler_type": handlerType,
	})
}

// Add GET /static/math/add/:a/:b
func (MathHandlers) Add(ctx context.Context, c *app.RequestContext) {
	binaryMath(ctx, c, "addition", "+", func(a, b int) int { return a + b })
}

// Multiply GET /static/math/multiply/:a/:b
func (MathHandlers) Multiply(ctx context.Context, c *app.RequestContext) {
	binaryMath(ctx, c, "multiplication", "×", func(a, b int) int { return a * b })
}

func binaryMath(ctx context.Context, c *app.RequestContext, operation, sign string, op func(a, b int) int) {
	a, errA := strconv.Atoi(c.Param("a"))
	b, errB := strconv.Atoi(c.Param("b"))
	if errA != nil || errB != nil {
		response.ErrorWithFields(ctx, c, errors.InvalidNumbers, utils.H{
			"error":        errors.InvalidNumbers.Message,
			"handler_type": handlerType,
		})
		return
	}

	result := op(a, b)
	response.JSON(ctx, c, utils.H{
		"operation":    operation,
		"a":            a,
		"b":            b,
		"result":       result,
		"formula":      fmt.Sprintf("%d %s %d = %d", a, sign, b, result),
		"handler_type": handlerType,
	})
}
