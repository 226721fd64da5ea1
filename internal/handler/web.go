package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"otelsamples/internal/service"
	pkgotel "otelsamples/pkg/otel"
	"otelsamples/pkg/response"
)

// 手动埋点示例使用的 tracer 名
const demoTracerName = "my.tracer.name"

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>otelsamples</title></head>
<body>
<h1>otelsamples web demo</h1>
<ul>
<li><a href="/hello">/hello</a> outbound call, manual spans, S3 listing</li>
<li><a href="/hello/World">/hello/:name</a> personalized hello</li>
<li><a href="/api/status">/api/status</a> status</li>
<li><a href="/api/info">/api/info</a> application information</li>
<li><a href="/static/api/status">/static/api/status</a> handler groups</li>
</ul>
</body>
</html>`

// WebHandler flask / fastapi / starlette 三个示例合并后的路由
type WebHandler struct {
	*Deps
}

func NewWebHandler(deps *Deps) *WebHandler {
	return &WebHandler{Deps: deps}
}

// Index GET /
func (h *WebHandler) Index(ctx context.Context, c *app.RequestContext) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

// Hello GET /hello
func (h *WebHandler) Hello(ctx context.Context, c *app.RequestContext) {
	body := utils.H{"message": "Hello, World!"}

	status, err := h.callOutbound(ctx)
	body["outbound_status"] = status
	if err != nil {
		body["outbound_error"] = err.Error()
	}

	h.spanByDecorator(ctx)
	h.spanByAPI(ctx)
	h.spanByAPI2(ctx)

	if h.AWS != nil {
		buckets, err := h.AWS.ListBuckets(ctx)
		switch {
		case err == nil:
			body["buckets"] = buckets
		case errors.Is(err, service.ErrNoCredentials), errors.Is(err, service.ErrAWSDisabled):
			body["aws_message"] = err.Error()
		default:
			pkgotel.RecordError(ctx, err)
			body["aws_message"] = err.Error()
		}
	}

	response.JSON(ctx, c, body)
}

func (h *WebHandler) spanByDecorator(ctx context.Context) {
	_ = pkgotel.WithSpan(ctx, demoTracerName, "create-otel-span-by-decorator", func(ctx context.Context) error {
		return nil
	})
}

func (h *WebHandler) spanByAPI(ctx context.Context) {
	ctx, span := otel.Tracer(demoTracerName).Start(ctx, "create-otel-span-by-api")
	defer span.End()

	span.SetAttributes(
		attribute.String("demo.kind", "api"),
		attribute.String("demo.outbound_url", h.OutboundURL),
	)
	_, _ = h.callOutbound(ctx)
}

// spanByAPI2 未设为当前 span 的父 span，下面挂一个子 span
func (h *WebHandler) spanByAPI2(ctx context.Context) {
	tracer := otel.Tracer(demoTracerName)
	ctx, span := tracer.Start(ctx, "create-otel-span-by-api-2")
	defer span.End()

	_, child := tracer.Start(ctx, "create-otel-span-by-api-2-child")
	child.SetAttributes(attribute.Int("demo.depth", 2))
	child.End()
}

// HelloName GET /hello/:name
func (h *WebHandler) HelloName(ctx context.Context, c *app.RequestContext) {
	name := c.Param("name")
	response.JSON(ctx, c, utils.H{
		"message": "Hello, " + name + "!",
		"name":    name,
		"link":    utils.H{"home": "/"},
	})
}

// Status GET /api/status
func (h *WebHandler) Status(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, utils.H{
		"status":    "ok",
		"message":   "Service is running",
		"version":   h.Version,
		"framework": h.Framework,
	})
}

// Info GET /api/info
func (h *WebHandler) Info(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, utils.H{
		"name":      "otelsamples web",
		"version":   h.Version,
		"framework": h.Framework,
		"endpoints": []utils.H{
			{"path": "/", "method": "GET", "description": "Home page"},
			{"path": "/hello", "method": "GET", "description": "Simple hello"},
			{"path": "/hello/:name", "method": "GET", "description": "Personalized hello"},
			{"path": "/api/status", "method": "GET", "description": "Status check"},
			{"path": "/api/info", "method": "GET", "description": "App information"},
		},
		"features": []string{
			"Server spans via hertz-contrib/obs-opentelemetry",
			"Instrumented outbound HTTP client",
			"Manual spans through the OpenTelemetry API",
			"AWS SDK spans via smithy-otel-tracing",
			"JSON and HTML responses",
		},
	})
}
