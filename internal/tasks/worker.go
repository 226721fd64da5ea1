package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otelsamples/pkg/logger"
	"otelsamples/pkg/metrics"
	storageredis "otelsamples/storage/redis"
)

type WorkerOptions struct {
	Hostname          string
	Concurrency       int
	HeartbeatInterval time.Duration
	// PollTimeout 单次 BRPOP 的阻塞时长
	PollTimeout time.Duration
}

// ActiveTask 正在执行的任务，出现在心跳与 inspect 结果中
type ActiveTask struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Args      []interface{} `json:"args"`
	TimeStart time.Time     `json:"time_start"`
	Retries   int           `json:"retries"`
}

// Heartbeat 写入 <prefix>:worker:<hostname>
type Heartbeat struct {
	Hostname    string       `json:"hostname"`
	PID         int          `json:"pid"`
	Concurrency int          `json:"concurrency"`
	Active      []ActiveTask `json:"active"`
	Processed   int64        `json:"processed"`
	Registered  []string     `json:"registered"`
	StartedAt   time.Time    `json:"started_at"`
}

type Worker struct {
	app    *App
	opts   WorkerOptions
	tracer trace.Tracer

	mu        sync.Mutex
	active    map[string]ActiveTask
	processed atomic.Int64
	startedAt time.Time
}

func NewWorker(app *App, opts WorkerOptions) *Worker {
	if opts.Hostname == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		opts.Hostname = "celery@" + host
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 10 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	return &Worker{
		app:    app,
		opts:   opts,
		tracer: otel.Tracer(tracerName),
		active: make(map[string]ActiveTask),
	}
}

func (w *Worker) Hostname() string { return w.opts.Hostname }

// Processed 已处理完成（含失败）的任务数
func (w *Worker) Processed() int64 { return w.processed.Load() }

// Run 阻塞直到 ctx 取消；正在执行的任务会跑完再退出
func (w *Worker) Run(ctx context.Context) error {
	w.startedAt = time.Now().UTC()

	logger.Logger.Info("Task worker starting",
		zap.String("hostname", w.opts.Hostname),
		zap.Int("concurrency", w.opts.Concurrency),
		zap.String("queue", w.app.Broker.QueueKey()),
		zap.Strings("registered", w.app.Registry.Names()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.heartbeatLoop(gctx)
		return nil
	})
	for i := 0; i < w.opts.Concurrency; i++ {
		g.Go(func() error {
			w.loop(gctx)
			return nil
		})
	}
	err := g.Wait()

	// 退出时删除心跳，inspect 不再显示该 worker
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.app.rdb.Del(cleanupCtx, w.heartbeatKey())

	logger.Logger.Info("Task worker stopped",
		zap.String("hostname", w.opts.Hostname),
		zap.Int64("processed", w.processed.Load()),
	)
	return err
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		env, err := w.app.Broker.Dequeue(ctx, w.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Logger.Warn("Failed to dequeue task", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if env == nil {
			continue
		}
		w.Execute(context.WithoutCancel(ctx), env)
	}
}

// Execute 执行一条消息，并按结果处理重试、chain 与 chord
func (w *Worker) Execute(ctx context.Context, env *Envelope) {
	parent := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(env.Headers))
	ctx, span := w.tracer.Start(parent, "run/"+env.Task,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystem("redis"),
			semconv.MessagingOperationProcess,
			semconv.MessagingDestinationName(w.app.Broker.queue),
			semconv.MessagingMessageID(env.ID),
			attribute.String("celery.action", "run"),
			attribute.String("celery.task_name", env.Task),
			attribute.String("celery.hostname", w.opts.Hostname),
			attribute.Int("celery.retries", env.Retries),
		),
	)
	defer span.End()
	defer w.processed.Add(1)

	log := logger.WithContext(ctx).With(
		zap.String("task", env.Task),
		zap.String("task_id", env.ID),
	)

	task, ok := w.app.Registry.Get(env.Task)
	if !ok {
		err := fmt.Errorf("received unregistered task of type %q", env.Task)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Unregistered task", zap.Error(err))
		w.store(ctx, env.ID, Result{State: StateFailure, Error: err.Error()})
		return
	}

	w.track(env)
	defer w.untrack(env.ID)
	metrics.AddActiveTask(ctx, env.Task)
	defer metrics.SubtractActiveTask(ctx, env.Task)

	w.store(ctx, env.ID, Result{State: StateStarted})

	tc := &TaskContext{ID: env.ID, Name: env.Task, Retries: env.Retries, backend: w.app.Backend}
	start := time.Now()
	result, err := call(ctx, task.Handler, tc, env.Args)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if task.Options.AutoRetry && env.Retries < task.Options.MaxRetries {
			w.retry(ctx, env, task.Options.RetryDelay, err)
			return
		}

		metrics.RecordTaskFinished(ctx, env.Task, string(StateFailure), elapsed.Seconds())
		log.Error("Task failed",
			zap.Int("retries", env.Retries),
			zap.Duration("runtime", elapsed),
			zap.Error(err),
		)
		w.store(ctx, env.ID, Result{State: StateFailure, Error: err.Error()})
		if env.ChordID != "" {
			// header 失败后回调不会再触发
			log.Warn("Chord member failed, callback will not run", zap.String("chord_id", env.ChordID))
		}
		return
	}

	span.SetStatus(codes.Ok, "")
	metrics.RecordTaskFinished(ctx, env.Task, string(StateSuccess), elapsed.Seconds())
	log.Info("Task succeeded", zap.Duration("runtime", elapsed))
	w.store(ctx, env.ID, Result{State: StateSuccess, Result: result})

	if len(env.Chain) > 0 {
		w.continueChain(ctx, env, result)
	}
	if env.ChordID != "" {
		w.completeChordMember(ctx, env, result)
	}
}

// call 把任务里的 panic 转成错误
func call(ctx context.Context, h Handler, tc *TaskContext, args []interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return h(ctx, tc, args)
}

func (w *Worker) retry(ctx context.Context, env *Envelope, delay time.Duration, cause error) {
	logger.WithContext(ctx).Warn("Task failed, retrying",
		zap.String("task", env.Task),
		zap.String("task_id", env.ID),
		zap.Int("retries", env.Retries+1),
		zap.Duration("countdown", delay),
		zap.Error(cause),
	)
	w.store(ctx, env.ID, Result{State: StateRetry, Error: cause.Error()})
	metrics.RecordTaskRetry(ctx, env.Task)

	if delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}

	next := *env
	next.Retries++
	next.Headers = nil
	if err := w.app.Broker.Enqueue(ctx, &next); err != nil {
		logger.WithContext(ctx).Error("Failed to re-enqueue task",
			zap.String("task_id", env.ID),
			zap.Error(err),
		)
		w.store(ctx, env.ID, Result{State: StateFailure, Error: cause.Error()})
	}
}

func (w *Worker) continueChain(ctx context.Context, env *Envelope, result interface{}) {
	sig := env.Chain[0]
	sig.Args = append([]interface{}{result}, sig.Args...)

	next := newEnvelope(sig)
	next.Chain = env.Chain[1:]
	if err := w.app.Broker.Enqueue(ctx, next); err != nil {
		logger.WithContext(ctx).Error("Failed to enqueue next chain link",
			zap.String("task_id", next.ID),
			zap.Error(err),
		)
		w.store(ctx, next.ID, Result{State: StateFailure, Error: err.Error()})
	}
}

func (w *Worker) completeChordMember(ctx context.Context, env *Envelope, result interface{}) {
	results, callback, err := w.app.Backend.ChordMemberDone(ctx, env.ChordID, result)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to record chord result",
			zap.String("chord_id", env.ChordID),
			zap.Error(err),
		)
		return
	}
	if callback == nil {
		return
	}

	sig := *callback
	sig.Args = append([]interface{}{flatten(results)}, sig.Args...)
	if err := w.app.Broker.Enqueue(ctx, newEnvelope(sig)); err != nil {
		logger.WithContext(ctx).Error("Failed to enqueue chord callback",
			zap.String("chord_id", env.ChordID),
			zap.Error(err),
		)
		w.store(ctx, sig.ID, Result{State: StateFailure, Error: err.Error()})
	}
}

func (w *Worker) store(ctx context.Context, id string, r Result) {
	if err := w.app.Backend.Store(ctx, id, r); err != nil {
		logger.WithContext(ctx).Error("Failed to store task result",
			zap.String("task_id", id),
			zap.String("state", string(r.State)),
			zap.Error(err),
		)
	}
}

func (w *Worker) track(env *Envelope) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active[env.ID] = ActiveTask{
		ID:        env.ID,
		Name:      env.Task,
		Args:      env.Args,
		TimeStart: time.Now().UTC(),
		Retries:   env.Retries,
	}
}

func (w *Worker) untrack(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, id)
}

// Snapshot 当前心跳内容
func (w *Worker) Snapshot() Heartbeat {
	w.mu.Lock()
	active := make([]ActiveTask, 0, len(w.active))
	for _, t := range w.active {
		active = append(active, t)
	}
	w.mu.Unlock()

	sort.Slice(active, func(i, j int) bool { return active[i].TimeStart.Before(active[j].TimeStart) })

	return Heartbeat{
		Hostname:    w.opts.Hostname,
		PID:         os.Getpid(),
		Concurrency: w.opts.Concurrency,
		Active:      active,
		Processed:   w.processed.Load(),
		Registered:  w.app.Registry.Names(),
		StartedAt:   w.startedAt,
	}
}

func (w *Worker) heartbeatKey() string {
	return storageredis.KeyWithPrefix(w.app.prefix, "worker", w.opts.Hostname)
}

// Beat 写一次心跳，TTL 为三个心跳周期
func (w *Worker) Beat(ctx context.Context) error {
	body, err := json.Marshal(w.Snapshot())
	if err != nil {
		return err
	}
	return w.app.rdb.Set(ctx, w.heartbeatKey(), body, 3*w.opts.HeartbeatInterval).Err()
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		if err := w.Beat(ctx); err != nil && ctx.Err() == nil {
			logger.Logger.Warn("Failed to write worker heartbeat", zap.Error(err))
		}
		if n, err := w.app.Broker.Len(ctx); err == nil {
			metrics.SetQueueLength(ctx, w.app.Broker.queue, n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
