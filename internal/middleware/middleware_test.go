package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newEngine() *route.Engine {
	return route.NewEngine(config.NewOptions(nil))
}

func decode(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestRecoverMiddlewareRecordsPanic(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)).Tracer("test")

	e := newEngine()
	// 模拟 server span
	e.Use(func(ctx context.Context, c *app.RequestContext) {
		ctx, span := tracer.Start(ctx, "GET /error/")
		defer span.End()
		c.Next(ctx)
	})
	e.Use(RecoverMiddlewareWithConfig(RecoverConfig{ExposeDetails: true, RecordInSpan: true}))
	e.GET("/error/", func(ctx context.Context, c *app.RequestContext) {
		panic("This is a test exception for tracing")
	})

	w := ut.PerformRequest(e, http.MethodGet, "/error/", nil)
	resp := w.Result()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())

	body := decode(t, resp.Body())
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Internal error: This is a test exception for tracing", body["message"])

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestRecoverMiddlewareHidesDetails(t *testing.T) {
	e := newEngine()
	e.Use(RecoverMiddlewareWithConfig(RecoverConfig{}))
	e.GET("/boom", func(ctx context.Context, c *app.RequestContext) {
		panic("secret")
	})

	w := ut.PerformRequest(e, http.MethodGet, "/boom", nil)
	body := decode(t, w.Result().Body())
	assert.Equal(t, "Internal server error", body["message"])
}

func TestCORSPreflight(t *testing.T) {
	e := newEngine()
	e.Use(CORSMiddleware())
	e.OPTIONS("/api/status", func(ctx context.Context, c *app.RequestContext) {
		c.String(http.StatusOK, "unreachable")
	})
	e.GET("/api/status", func(ctx context.Context, c *app.RequestContext) {
		c.String(http.StatusOK, "ok")
	})

	w := ut.PerformRequest(e, http.MethodOptions, "/api/status", nil,
		ut.Header{Key: "Origin", Value: "http://localhost:3000"})
	resp := w.Result()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode())
	assert.Equal(t, "http://localhost:3000", string(resp.Header.Peek("Access-Control-Allow-Origin")))

	w = ut.PerformRequest(e, http.MethodGet, "/api/status", nil)
	resp = w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "*", string(resp.Header.Peek("Access-Control-Allow-Origin")))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	e := newEngine()
	e.Use(CORSMiddleware("http://allowed.example"))
	e.GET("/x", func(ctx context.Context, c *app.RequestContext) {
		c.String(http.StatusOK, "ok")
	})

	w := ut.PerformRequest(e, http.MethodGet, "/x", nil, ut.Header{Key: "Origin", Value: "http://evil.example"})
	assert.Empty(t, w.Result().Header.Peek("Access-Control-Allow-Origin"))
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := newEngine()
	e.POST("/add", RateLimitMiddleware(rdb, TaskSubmitRateLimitConfig(2)), func(ctx context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	for i := 0; i < 2; i++ {
		w := ut.PerformRequest(e, http.MethodPost, "/add", nil)
		require.Equal(t, http.StatusOK, w.Result().StatusCode())
	}

	w := ut.PerformRequest(e, http.MethodPost, "/add", nil)
	resp := w.Result()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode())
	assert.Equal(t, "0", string(resp.Header.Peek("X-RateLimit-Remaining")))

	body := decode(t, resp.Body())
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Too many requests, please retry later", body["message"])
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	e := newEngine()
	e.POST("/add", RateLimitMiddleware(rdb, TaskSubmitRateLimitConfig(1)), func(ctx context.Context, c *app.RequestContext) {
		c.String(http.StatusOK, "ok")
	})

	w := ut.PerformRequest(e, http.MethodPost, "/add", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	e := newEngine()
	e.Use(MetricsMiddleware("hertz"))
	e.GET("/hello/:name", func(ctx context.Context, c *app.RequestContext) {
		c.String(http.StatusOK, "hi "+c.Param("name"))
	})

	w := ut.PerformRequest(e, http.MethodGet, "/hello/otel", nil)
	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "hi otel", string(resp.Body()))
}
