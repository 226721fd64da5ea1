package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"otelsamples/pkg/errors"
	"otelsamples/pkg/logger"
	"otelsamples/pkg/response"
	storageredis "otelsamples/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 时间窗口
	Window time.Duration
	// 时间窗口内最大请求数，<= 0 表示不限流
	MaxRequests int
	// 限流键前缀
	KeyPrefix string
}

// TaskSubmitRateLimitConfig 任务提交接口按分钟限流
func TaskSubmitRateLimitConfig(rpm int) RateLimitConfig {
	return RateLimitConfig{
		Window:      time.Minute,
		MaxRequests: rpm,
		KeyPrefix:   "rate:tasks",
	}
}

// RateLimiter 基于 zset 的滑动窗口限流器，按客户端 IP 计数
type RateLimiter struct {
	rdb    *redis.Client
	config RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{rdb: rdb, config: config}
}

func (rl *RateLimiter) key(c *app.RequestContext) string {
	return storageredis.Key(rl.config.KeyPrefix, "ip", c.ClientIP())
}

// Allow 返回是否放行以及当前窗口内的请求数
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	now := time.Now()
	windowStart := now.Add(-rl.config.Window)

	pipe := rl.rdb.Pipeline()
	// 先移除窗口之外的记录
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, rl.config.Window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

// RateLimitMiddleware 创建限流中间件；Redis 不可用时放行
func RateLimitMiddleware(rdb *redis.Client, config RateLimitConfig) app.HandlerFunc {
	limiter := NewRateLimiter(rdb, config)

	return func(ctx context.Context, c *app.RequestContext) {
		if config.MaxRequests <= 0 {
			c.Next(ctx)
			return
		}

		allowed, count, err := limiter.Allow(ctx, limiter.key(c))
		if err != nil {
			logger.WithContext(ctx).Warn("Rate limit check failed, letting request through", zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := config.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		if !allowed {
			response.ErrorWithStatus(ctx, c, consts.StatusTooManyRequests, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}
