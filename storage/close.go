package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"otelsamples/pkg/logger"
	"otelsamples/storage/database"
	"otelsamples/storage/redis"
)

// Close 优雅关闭所有已初始化的存储连接
// 关闭顺序：Redis -> Database；未初始化的组件直接跳过
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Logger.Info("Closing storage connections...")

	if err := redis.Close(ctx); err != nil {
		logger.Logger.Error("Failed to close Redis connection", zap.Error(err))
	}

	if err := database.Close(ctx); err != nil {
		logger.Logger.Error("Failed to close database connection", zap.Error(err))
	}

	logger.Logger.Info("All storage connections closed")
}
