package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"otelsamples/pkg/logger"
)

var ErrEmptyChain = errors.New("chain needs at least one signature")

type AppConfig struct {
	Prefix        string
	Queue         string
	ResultExpires time.Duration
}

// App 汇总 registry、broker 和结果后端，提交端和 worker 共用
type App struct {
	Registry *Registry
	Broker   *Broker
	Backend  *Backend

	rdb    *redis.Client
	prefix string
}

func NewApp(rdb *redis.Client, cfg AppConfig) *App {
	if cfg.Queue == "" {
		cfg.Queue = "celery"
	}
	if cfg.ResultExpires <= 0 {
		cfg.ResultExpires = time.Hour
	}
	return &App{
		Registry: NewRegistry(),
		Broker:   NewBroker(rdb, cfg.Prefix, cfg.Queue),
		Backend:  NewBackend(rdb, cfg.Prefix, cfg.ResultExpires),
		rdb:      rdb,
		prefix:   cfg.Prefix,
	}
}

// Delay 提交单个任务，返回任务 id
func (a *App) Delay(ctx context.Context, name string, args ...interface{}) (string, error) {
	env := newEnvelope(Sig(name, args...))
	if err := a.Broker.Enqueue(ctx, env); err != nil {
		return "", err
	}
	logger.WithContext(ctx).Info("Task submitted",
		zap.String("task", name),
		zap.String("task_id", env.ID),
	)
	return env.ID, nil
}

// Chain 依次执行，前一个的结果作为后一个的第一个参数；返回最后一个任务的 id
func (a *App) Chain(ctx context.Context, sigs ...Signature) (string, error) {
	if len(sigs) == 0 {
		return "", ErrEmptyChain
	}

	// 先分配好全部 id，调用方才能拿到最终任务的 id
	withIDs := make([]Signature, len(sigs))
	for i, s := range sigs {
		withIDs[i] = s.withID()
	}

	env := newEnvelope(withIDs[0])
	env.Chain = withIDs[1:]
	if err := a.Broker.Enqueue(ctx, env); err != nil {
		return "", err
	}

	last := withIDs[len(withIDs)-1].ID
	logger.WithContext(ctx).Info("Chain submitted",
		zap.Int("length", len(withIDs)),
		zap.String("first_task_id", env.ID),
		zap.String("task_id", last),
	)
	return last, nil
}

// Chord 并行执行 header，全部完成后以展开后的结果列表调用 callback；返回 callback 的 id
func (a *App) Chord(ctx context.Context, header []Signature, callback Signature) (string, error) {
	callback = callback.withID()

	if len(header) == 0 {
		env := newEnvelope(callback)
		env.Args = append([]interface{}{[]interface{}{}}, env.Args...)
		if err := a.Broker.Enqueue(ctx, env); err != nil {
			return "", err
		}
		return callback.ID, nil
	}

	chordID := uuid.NewString()
	if err := a.Backend.SaveChord(ctx, chordID, len(header), callback); err != nil {
		return "", fmt.Errorf("save chord: %w", err)
	}

	for _, h := range header {
		env := newEnvelope(h)
		env.ChordID = chordID
		if err := a.Broker.Enqueue(ctx, env); err != nil {
			return "", err
		}
	}

	logger.WithContext(ctx).Info("Chord submitted",
		zap.String("chord_id", chordID),
		zap.Int("header_size", len(header)),
		zap.String("task_id", callback.ID),
	)
	return callback.ID, nil
}

// AsyncResult 查询任务结果
func (a *App) AsyncResult(ctx context.Context, id string) (Result, error) {
	return a.Backend.Get(ctx, id)
}
