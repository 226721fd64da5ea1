package storage

import (
	"otelsamples/storage/database"
	"otelsamples/storage/redis"
)

// Component 每个示例只初始化自己用到的存储
type Component int

const (
	Database Component = iota
	Redis
)

// Init 统一 init storage 层，RabbitMQ 连接由 RabbitMQService 按需建立
func Init(components ...Component) error {
	for _, c := range components {
		switch c {
		case Database:
			if err := database.Init(); err != nil {
				return err
			}
		case Redis:
			if err := redis.Init(); err != nil {
				return err
			}
		}
	}
	return nil
}
