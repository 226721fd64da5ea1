package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otelsamples/pkg/logger"
	storageredis "otelsamples/storage/redis"
)

// WorkerStats 对应 inspect().stats() 中单个 worker 的内容
type WorkerStats struct {
	PID         int    `json:"pid"`
	Concurrency int    `json:"concurrency"`
	Processed   int64  `json:"processed"`
	StartedAt   string `json:"started_at"`
}

// Inspection 各字段均以 hostname 为键
type Inspection struct {
	ActiveWorkers   map[string][]ActiveTask `json:"active_workers"`
	RegisteredTasks map[string][]string     `json:"registered_tasks"`
	Stats           map[string]WorkerStats  `json:"stats"`
}

// Inspect 从心跳键汇总在线 worker
func (a *App) Inspect(ctx context.Context) (Inspection, error) {
	out := Inspection{
		ActiveWorkers:   map[string][]ActiveTask{},
		RegisteredTasks: map[string][]string{},
		Stats:           map[string]WorkerStats{},
	}

	pattern := storageredis.KeyWithPrefix(a.prefix, "worker", "*")
	iter := a.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		body, err := a.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			// 心跳可能刚好过期
			continue
		}

		var hb Heartbeat
		if err := json.Unmarshal(body, &hb); err != nil {
			logger.WithContext(ctx).Warn("Skipping malformed worker heartbeat",
				zap.String("key", iter.Val()),
				zap.Error(err),
			)
			continue
		}

		active := hb.Active
		if active == nil {
			active = []ActiveTask{}
		}
		out.ActiveWorkers[hb.Hostname] = active
		out.RegisteredTasks[hb.Hostname] = hb.Registered
		out.Stats[hb.Hostname] = WorkerStats{
			PID:         hb.PID,
			Concurrency: hb.Concurrency,
			Processed:   hb.Processed,
			StartedAt:   hb.StartedAt.Format(time.RFC3339),
		}
	}
	if err := iter.Err(); err != nil {
		return Inspection{}, fmt.Errorf("scan worker heartbeats: %w", err)
	}
	return out, nil
}
