package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"otelsamples/config"
	pkgredis "otelsamples/pkg/redis"
)

var (
	client *redis.Client
	mu     sync.Mutex
)

// Init 按配置建立带追踪的客户端，已初始化时直接返回
func Init() error {
	mu.Lock()
	defer mu.Unlock()

	if client != nil {
		return nil
	}

	cfg := config.Cfg
	c := New(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return err
	}

	client = c
	return nil
}

// New 创建带追踪 hook 的客户端，不做连通性检查
func New(opts *redis.Options) *redis.Client {
	return pkgredis.Instrument(redis.NewClient(opts), config.Cfg.ServiceName)
}

func Client() *redis.Client {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		panic("Redis client not init")
	}
	return client
}

func Close(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()

	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}

// Key 用前缀拼接键名，如 Key("queue", "celery") => otelsamples:queue:celery
func Key(parts ...string) string {
	return KeyWithPrefix(config.Cfg.RedisPrefix, parts...)
}

func KeyWithPrefix(prefix string, parts ...string) string {
	if prefix == "" {
		prefix = "otelsamples"
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	for _, part := range parts {
		if part != "" {
			sb.WriteString(":")
			sb.WriteString(part)
		}
	}
	return sb.String()
}
