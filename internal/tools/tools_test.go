package tools

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracing(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func dial(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(Handler(NewServer("test")))
	t.Cleanup(srv.Close)

	c, err := Dial(context.Background(), srv.URL+EndpointPath, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestListTools(t *testing.T) {
	c := dial(t)

	names, err := c.ToolNames(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ToolAdd, ToolMultiply, ToolGreet}, names)
}

func TestCallTools(t *testing.T) {
	c := dial(t)
	ctx := context.Background()

	out, err := c.Call(ctx, ToolAdd, map[string]any{"a": 10, "b": 25})
	require.NoError(t, err)
	assert.Equal(t, "35", out)

	out, err = c.Call(ctx, ToolMultiply, map[string]any{"a": 2.5, "b": 4})
	require.NoError(t, err)
	assert.Equal(t, "10", out)

	out, err = c.Call(ctx, ToolGreet, map[string]any{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Alice! Nice to meet you.", out)
}

func TestMissingArgumentIsToolError(t *testing.T) {
	c := dial(t)

	_, err := c.Call(context.Background(), ToolAdd, map[string]any{"a": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool add_numbers failed")

	_, err = c.Call(context.Background(), ToolGreet, map[string]any{"name": 42})
	require.Error(t, err)
}

func TestTracingMiddlewareSpan(t *testing.T) {
	sr := setupTracing(t)
	c := dial(t)

	_, err := c.Call(context.Background(), ToolGreet, map[string]any{"name": "Bob"})
	require.NoError(t, err)
	_, _ = c.Call(context.Background(), ToolAdd, map[string]any{})

	var ok, failed bool
	for _, s := range sr.Ended() {
		switch s.Name() {
		case "mcp.tool " + ToolGreet:
			ok = s.Status().Code == codes.Ok
		case "mcp.tool " + ToolAdd:
			failed = s.Status().Code == codes.Error
		}
	}
	assert.True(t, ok)
	assert.True(t, failed)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "35", formatNumber(35))
	assert.Equal(t, "2.5", formatNumber(2.5))
	assert.Equal(t, "-3", formatNumber(-3))
}
