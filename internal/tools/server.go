// Package tools 提供 MCP 示例的工具服务端与客户端。
package tools

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ServerName   = "Basic MCP Server"
	EndpointPath = "/mcp"

	ToolAdd      = "add_numbers"
	ToolMultiply = "multiply_numbers"
	ToolGreet    = "greet_user"
)

// NewServer 注册三个示例工具，每次调用都经过 TracingMiddleware
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithToolHandlerMiddleware(TracingMiddleware()),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool(ToolAdd,
		mcp.WithDescription("Add two numbers together"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First number")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second number")),
	), binary(func(a, b float64) float64 { return a + b }))

	s.AddTool(mcp.NewTool(ToolMultiply,
		mcp.WithDescription("Multiply two numbers together"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First number")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second number")),
	), binary(func(a, b float64) float64 { return a * b }))

	s.AddTool(mcp.NewTool(ToolGreet,
		mcp.WithDescription("Greet a user by name"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the user")),
	), greet)

	return s
}

// Handler 无状态 streamable HTTP，挂在 EndpointPath
func Handler(s *server.MCPServer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(EndpointPath, server.NewStreamableHTTPServer(s,
		server.WithStateLess(true),
		server.WithEndpointPath(EndpointPath),
	))
	return mux
}

// 参数缺失或类型不对时返回工具错误，不走传输层错误
func binary(op func(a, b float64) float64) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a, err := req.RequireFloat("a")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		b, err := req.RequireFloat("b")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatNumber(op(a, b))), nil
	}
}

func greet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Hello, %s! Nice to meet you.", name)), nil
}

// formatNumber 整数不带小数点，35 而不是 35.000000
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
