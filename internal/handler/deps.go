package handler

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"otelsamples/pkg/logger"
)

// Outbound 出站 HTTP 调用，*httpclient.Client 实现了它
type Outbound interface {
	Get(ctx context.Context, url string) (int, error)
}

// CloudLister *service.AWSService 实现了它
type CloudLister interface {
	ListBuckets(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context) ([]string, error)
}

// Deps web 与 django 示例 handler 共享的依赖
type Deps struct {
	Outbound    Outbound
	OutboundURL string
	AWS         CloudLister
	DB          *gorm.DB
	Framework   string
	Version     string
}

// callOutbound 出站失败只记日志，不影响响应
func (d *Deps) callOutbound(ctx context.Context) (int, error) {
	if d.Outbound == nil {
		return 0, nil
	}
	status, err := d.Outbound.Get(ctx, d.OutboundURL)
	if err != nil {
		logger.WithContext(ctx).Warn("Outbound request failed",
			zap.String("url", d.OutboundURL),
			zap.Error(err),
		)
	}
	return status, err
}
