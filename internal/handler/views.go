package handler

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"otelsamples/pkg/errors"
	"otelsamples/pkg/logger"
	"otelsamples/pkg/response"
	"otelsamples/storage/database"
)

// ViewsHandler django 示例中函数视图与类视图对应的路由
type ViewsHandler struct {
	*Deps
	// SlowDelay /slow/ 的模拟耗时
	SlowDelay time.Duration
}

func NewViewsHandler(deps *Deps) *ViewsHandler {
	return &ViewsHandler{Deps: deps, SlowDelay: 500 * time.Millisecond}
}

// Hello GET /hello/
func (h *ViewsHandler) Hello(ctx context.Context, c *app.RequestContext) {
	_, _ = h.callOutbound(ctx)
	c.String(http.StatusOK, "Hello, Django!")
}

// HelloWorld GET /hello-world/，对应 gunicorn 示例
func (h *ViewsHandler) HelloWorld(ctx context.Context, c *app.RequestContext) {
	c.String(http.StatusOK, "Hello World!")
}

// Test GET|POST /test/
func (h *ViewsHandler) Test(ctx context.Context, c *app.RequestContext) {
	_, _ = h.callOutbound(ctx)
	response.JSON(ctx, c, utils.H{
		"message": "Test view called successfully",
		"method":  string(c.Method()),
		"path":    string(c.Path()),
	})
}

// Slow GET /slow/
func (h *ViewsHandler) Slow(ctx context.Context, c *app.RequestContext) {
	select {
	case <-ctx.Done():
	case <-time.After(h.SlowDelay):
	}
	response.JSON(ctx, c, utils.H{
		"message":         "Slow view completed",
		"processing_time": "0.5 seconds",
	})
}

// Param GET /param/:id/，非整数 id 与 Django 的 <int:> 转换器一样返回 404
func (h *ViewsHandler) Param(ctx context.Context, c *app.RequestContext) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Error(ctx, c, errors.NotFound)
		return
	}
	response.JSON(ctx, c, utils.H{
		"message":  "Parameterized view called with ID: " + strconv.Itoa(id),
		"param_id": id,
	})
}

// ClassGet GET /class/
func (h *ViewsHandler) ClassGet(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, utils.H{
		"message":   "Class-based GET view",
		"view_type": "class-based",
	})
}

// ClassPost POST /class/
func (h *ViewsHandler) ClassPost(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, utils.H{
		"message":   "Class-based POST view",
		"view_type": "class-based",
		"method":    "POST",
	})
}

// Template GET /template/
func (h *ViewsHandler) Template(ctx context.Context, c *app.RequestContext) {
	h.internalCalls(ctx)
	response.JSON(ctx, c, utils.H{
		"message":   "Template-based view",
		"view_type": "template-based",
	})
}

// internalCalls 每一步失败都只记录日志
func (h *ViewsHandler) internalCalls(ctx context.Context) {
	log := logger.WithContext(ctx)

	_, _ = h.callOutbound(ctx)

	if h.AWS != nil {
		if buckets, err := h.AWS.ListBuckets(ctx); err != nil {
			log.Warn("S3 list buckets failed", zap.Error(err))
		} else {
			log.Info("S3 buckets listed", zap.Int("count", len(buckets)))
		}
		if tables, err := h.AWS.ListTables(ctx); err != nil {
			log.Warn("DynamoDB list tables failed", zap.Error(err))
		} else {
			log.Info("DynamoDB tables listed", zap.Int("count", len(tables)))
		}
	}

	rss, source := processRSS()
	log.Info("Process memory snapshot",
		zap.Int("pid", os.Getpid()),
		zap.Uint64("rss_bytes", rss),
		zap.String("source", source),
	)
}

// processRSS Linux 下读 /proc/self/status 的 VmRSS，其他平台退回 runtime 统计
func processRSS() (uint64, string) {
	if data, err := os.ReadFile("/proc/self/status"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if !strings.HasPrefix(line, "VmRSS:") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				if kb, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
					return kb * 1024, "procfs"
				}
			}
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys, "runtime"
}

// Error GET /error/
func (h *ViewsHandler) Error(ctx context.Context, c *app.RequestContext) {
	panic("This is a test exception for tracing")
}

// Debug GET /debug/
func (h *ViewsHandler) Debug(ctx context.Context, c *app.RequestContext) {
	_, _ = h.callOutbound(ctx)

	var keys []string
	c.Request.Header.VisitAll(func(key, _ []byte) {
		keys = append(keys, string(key))
	})
	sort.Strings(keys)
	if len(keys) > 10 {
		keys = keys[:10]
	}
	if keys == nil {
		keys = []string{}
	}

	response.JSON(ctx, c, utils.H{
		"message":           "Debug middleware view",
		"request_meta_keys": keys,
		"has_otel_keys": utils.H{
			"traceparent": len(c.GetHeader("traceparent")) > 0,
			"span_active": trace.SpanContextFromContext(ctx).IsValid(),
		},
	})
}

// ORM GET /orm/
func (h *ViewsHandler) ORM(ctx context.Context, c *app.RequestContext) {
	if h.DB == nil {
		response.Error(ctx, c, errors.Internal)
		return
	}

	users, err := database.ActiveUsers(ctx, h.DB, 10)
	if err != nil {
		response.Error(ctx, c, errors.Wrap("ORM query", err))
		return
	}

	response.JSON(ctx, c, utils.H{
		"message":     "ORM example completed",
		"users_found": len(users),
		"note":        "Check spans - the SELECT users span comes from the gorm OTEL plugin",
	})
}
