package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	redisCommandsTotal   metric.Int64Counter
	redisCommandDuration metric.Float64Histogram
	redisCommandErrors   metric.Int64Counter
)

func init() {
	_ = InitRedisMetrics(otel.Meter("otelsamples/redis"))
}

// InitRedisMetrics 初始化 Redis 指标
func InitRedisMetrics(meter metric.Meter) error {
	var err error

	redisCommandsTotal, err = meter.Int64Counter(
		"redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return err
	}

	redisCommandDuration, err = meter.Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0),
	)
	if err != nil {
		return err
	}

	redisCommandErrors, err = meter.Int64Counter(
		"redis.command.errors",
		metric.WithDescription("Number of failed Redis commands, redis.Nil excluded"),
		metric.WithUnit("{error}"),
	)
	return err
}

// TracingHook 为每条命令和 pipeline 创建 client span
type TracingHook struct {
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

func NewTracingHook(serviceName string, db int) *TracingHook {
	return &TracingHook{
		tracer: otel.Tracer(serviceName + ".redis"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
	}
}

func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		op := strings.ToUpper(cmd.Name())

		ctx, span := th.tracer.Start(ctx, op,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
			trace.WithAttributes(semconv.DBOperation(op)),
		)
		defer span.End()

		if keys := extractKeys(cmd.Args()); len(keys) > 0 {
			span.SetAttributes(attribute.StringSlice("db.redis.keys", keys))
		}

		start := time.Now()
		err := next(ctx, cmd)
		th.finish(ctx, span, op, err, time.Since(start))
		return err
	}
}

func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ops := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			ops = append(ops, strings.ToUpper(cmd.Name()))
		}

		ctx, span := th.tracer.Start(ctx, "PIPELINE",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
			trace.WithAttributes(
				semconv.DBOperation("PIPELINE"),
				attribute.Int("db.redis.pipeline.length", len(cmds)),
				attribute.String("db.redis.pipeline.commands", strings.Join(ops, " ")),
			),
		)
		defer span.End()

		start := time.Now()
		err := next(ctx, cmds)
		th.finish(ctx, span, "PIPELINE", err, time.Since(start))
		return err
	}
}

func (th *TracingHook) finish(ctx context.Context, span trace.Span, op string, err error, elapsed time.Duration) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		// 键不存在不算失败，BRPOP 超时也走这里
		status = "nil"
	default:
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		redisCommandErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("db.operation", op)))
	}

	labels := metric.WithAttributes(
		attribute.String("db.operation", op),
		attribute.String("redis.status", status),
	)
	redisCommandsTotal.Add(ctx, 1, labels)
	redisCommandDuration.Record(ctx, elapsed.Seconds(), labels)
}

// extractKeys 只取命令名之后的前几个字符串参数，值可能很大
func extractKeys(args []interface{}) []string {
	if len(args) < 2 {
		return nil
	}
	keys := make([]string, 0, 3)
	for i := 1; i < len(args) && len(keys) < 3; i++ {
		if key, ok := args[i].(string); ok {
			keys = append(keys, sanitizeKey(key))
		}
	}
	return keys
}

// sanitizeKey 截断过长的键，JSON 载荷不会出现在属性里
func sanitizeKey(key string) string {
	if strings.HasPrefix(key, "{") || strings.HasPrefix(key, "[") {
		return "<payload>"
	}
	if len(key) > 100 {
		return key[:100] + "..."
	}
	return key
}

// Instrument 给客户端挂上追踪 hook
func Instrument(client *redis.Client, serviceName string) *redis.Client {
	client.AddHook(NewTracingHook(serviceName, client.Options().DB))
	return client
}
