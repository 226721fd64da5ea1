// Package retry 以固定间隔重试，用于等待 broker 就绪。
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"otelsamples/pkg/logger"
)

// Policy 固定间隔、有限次数
type Policy struct {
	Attempts uint
	Interval time.Duration
}

// BrokerPolicy 30 次，每次间隔 2s
var BrokerPolicy = Policy{Attempts: 30, Interval: 2 * time.Second}

// Permanent 包装后的错误不再重试
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do 重试 op 直到成功、次数用尽或 ctx 结束；what 仅用于日志
func Do(ctx context.Context, what string, p Policy, op func(ctx context.Context) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx,
		func() (struct{}, error) {
			attempt++
			return struct{}{}, op(ctx)
		},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Interval)),
		backoff.WithMaxTries(p.Attempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WithContext(ctx).Info("Waiting for dependency",
				zap.String("target", what),
				zap.Int("attempt", attempt),
				zap.Uint("max_attempts", p.Attempts),
				zap.Duration("retry_in", next),
				zap.Error(err),
			)
		}),
	)
	return err
}
