// Package tasks 是一个基于 Redis 的小型任务队列：LPUSH/BRPOP 作为 broker，
// 键值对作为结果后端，支持重试、进度上报、chain 与 chord。
package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// State 任务状态，取值与 Celery 一致
type State string

const (
	StatePending  State = "PENDING"
	StateStarted  State = "STARTED"
	StateProgress State = "PROGRESS"
	StateRetry    State = "RETRY"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
)

// Ready 是否为终态
func (s State) Ready() bool {
	return s == StateSuccess || s == StateFailure
}

// Handler 任务函数；args 来自 JSON，数字为 float64
type Handler func(ctx context.Context, tc *TaskContext, args []interface{}) (interface{}, error)

type Options struct {
	MaxRetries int
	AutoRetry  bool
	RetryDelay time.Duration
}

type Task struct {
	Name    string
	Handler Handler
	Options Options
}

// Registry 任务名到实现的映射
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Register 重复注册会覆盖
func (r *Registry) Register(name string, h Handler, opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = Task{Name: name, Handler: h, Options: opts}
}

func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Names 按字母序
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TaskContext 任务执行期间可用的请求信息，对应 Celery 的 self.request
type TaskContext struct {
	ID      string
	Name    string
	Retries int

	backend *Backend
}

// UpdateState 写入中间状态，如 PROGRESS
func (tc *TaskContext) UpdateState(ctx context.Context, state State, meta map[string]interface{}) error {
	if tc.backend == nil {
		return nil
	}
	if err := tc.backend.Store(ctx, tc.ID, Result{State: state, Meta: meta}); err != nil {
		return fmt.Errorf("update state of %s: %w", tc.ID, err)
	}
	return nil
}
