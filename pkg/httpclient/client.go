// Package httpclient 是示例出站调用用的 HTTP 客户端：otelhttp 传输层 + 熔断。
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"otelsamples/pkg/logger"
)

const (
	defaultTimeout = 10 * time.Second
	retryCount     = 1
)

// Client 封装 resty，所有请求生成 client span 并注入 traceparent
type Client struct {
	rc      *resty.Client
	breaker *gobreaker.CircuitBreaker
}

type Option func(*Client)

// WithTimeout 覆盖默认 10s 超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.rc.SetTimeout(d) }
}

// WithTransport 替换底层 RoundTripper，仍会被 otelhttp 包装
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.rc.SetTransport(otelhttp.NewTransport(rt)) }
}

func New(name string, opts ...Option) *Client {
	rc := resty.New().
		SetTimeout(defaultTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	c := &Client{
		rc: rc,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Logger.Warn("Circuit breaker state changed",
					zap.String("circuit", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 返回状态码；5xx 计入熔断失败，但仍返回状态码
func (c *Client) Get(ctx context.Context, url string) (int, error) {
	var status int
	_, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.rc.R().SetContext(ctx).Get(url)
		if err != nil {
			return nil, err
		}
		status = resp.StatusCode()
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("upstream returned %d", status)
		}
		return nil, nil
	})
	if err != nil && status == 0 {
		return 0, fmt.Errorf("outbound GET %s: %w", url, err)
	}
	return status, nil
}

// State 当前熔断状态
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}
