package bootstrap

import (
	"context"
	"time"

	"otelsamples/config"
	"otelsamples/internal/handler"
	"otelsamples/internal/service"
	"otelsamples/internal/tasks"
	"otelsamples/pkg/httpclient"
	"otelsamples/storage/mq"
	"otelsamples/storage/redis"
)

// HandlerDeps web 与 django 示例共用的出站依赖，DB 由调用方按需填充
func HandlerDeps(ctx context.Context, cfg config.Config, framework string) *handler.Deps {
	return &handler.Deps{
		Outbound:    httpclient.New("outbound-demo", httpclient.WithTimeout(10*time.Second)),
		OutboundURL: cfg.OutboundDemoURL,
		AWS:         service.NewAWSService(ctx, cfg.AWSRegion, cfg.AWSDemoEnabled),
		Framework:   framework,
		Version:     cfg.ServiceVersion,
	}
}

func RabbitMQService(cfg config.Config) *service.RabbitMQService {
	return service.NewRabbitMQService(service.RabbitMQOptions{
		Dialer:      mq.NewDialer(cfg.GetRabbitMQURL(), cfg.RabbitMQHeartbeat),
		Host:        cfg.RabbitMQAddr,
		Port:        cfg.RabbitMQPort,
		ServiceName: cfg.ServiceName,
		Async:       cfg.IsAsyncRabbitMQ(),
	})
}

// TasksApp 需要先 storage.Init(storage.Redis)
func TasksApp(cfg config.Config) *tasks.App {
	a := tasks.NewApp(redis.Client(), tasks.AppConfig{
		Prefix:        cfg.RedisPrefix,
		Queue:         cfg.TasksQueue,
		ResultExpires: cfg.TasksResultExpires,
	})
	tasks.RegisterBuiltins(a.Registry, tasks.DefaultBuiltinOptions())
	return a
}
