// Package metrics 任务队列的 OpenTelemetry 指标。
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TaskMetrics 任务队列指标集合
type TaskMetrics struct {
	TasksSentTotal     metric.Int64Counter
	TasksFinishedTotal metric.Int64Counter
	TaskRuntime        metric.Float64Histogram
	TaskRetryTotal     metric.Int64Counter
	TasksActive        metric.Int64UpDownCounter
	QueueLength        metric.Int64Gauge
}

var (
	// 全局指标实例
	metrics *TaskMetrics
	once    sync.Once
)

// InitMetrics 初始化任务指标；全局 MeterProvider 设置之后创建的 meter 会自动委托过去
func InitMetrics(meter metric.Meter) (*TaskMetrics, error) {
	var err error
	m := &TaskMetrics{}

	m.TasksSentTotal, err = meter.Int64Counter(
		"tasks.sent.total",
		metric.WithDescription("Total number of tasks published to the broker"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksFinishedTotal, err = meter.Int64Counter(
		"tasks.finished.total",
		metric.WithDescription("Total number of tasks that reached a final state"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskRuntime, err = meter.Float64Histogram(
		"tasks.runtime",
		metric.WithDescription("Time spent executing a task in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskRetryTotal, err = meter.Int64Counter(
		"tasks.retry.total",
		metric.WithDescription("Total number of task retry attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksActive, err = meter.Int64UpDownCounter(
		"tasks.active",
		metric.WithDescription("Number of tasks currently executing"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	m.QueueLength, err = meter.Int64Gauge(
		"tasks.queue.length",
		metric.WithDescription("Number of messages waiting in the task queue"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// GetMetrics 获取全局指标实例，首次调用时创建
func GetMetrics() *TaskMetrics {
	once.Do(func() {
		m, err := InitMetrics(otel.Meter("otelsamples/tasks"))
		if err == nil {
			metrics = m
		}
	})
	return metrics
}

// RecordTaskSent 记录一次入队
func RecordTaskSent(ctx context.Context, task string) {
	if m := GetMetrics(); m != nil {
		m.TasksSentTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
	}
}

// RecordTaskFinished 记录任务最终状态和耗时
func RecordTaskFinished(ctx context.Context, task, state string, seconds float64) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.TasksFinishedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("state", state),
	))
	m.TaskRuntime.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("task", task),
	))
}

// RecordTaskRetry 记录任务重试
func RecordTaskRetry(ctx context.Context, task string) {
	if m := GetMetrics(); m != nil {
		m.TaskRetryTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
	}
}

// AddActiveTask 增加正在执行的任务
func AddActiveTask(ctx context.Context, task string) {
	if m := GetMetrics(); m != nil {
		m.TasksActive.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
	}
}

// SubtractActiveTask 减少正在执行的任务
func SubtractActiveTask(ctx context.Context, task string) {
	if m := GetMetrics(); m != nil {
		m.TasksActive.Add(ctx, -1, metric.WithAttributes(attribute.String("task", task)))
	}
}

// SetQueueLength 设置队列长度
func SetQueueLength(ctx context.Context, queue string, length int64) {
	if m := GetMetrics(); m != nil {
		m.QueueLength.Record(ctx, length, metric.WithAttributes(attribute.String("queue_name", queue)))
	}
}
