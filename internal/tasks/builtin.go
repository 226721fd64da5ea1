package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// 内置示例任务名
const (
	TaskAddNumbers         = "add_numbers"
	TaskMultiplyNumbers    = "multiply_numbers"
	TaskLongRunning        = "long_running_task"
	TaskGenerateRandomData = "generate_random_data"
	TaskProcessData        = "process_data"
	TaskChainExample       = "chain_example"
	TaskFailing            = "failing_task"
)

type BuiltinOptions struct {
	// Step long_running_task 每一步的耗时
	Step time.Duration
	// ChainDelay chain_example 的模拟耗时
	ChainDelay time.Duration
	// RetryDelay failing_task 的重试间隔
	RetryDelay time.Duration
	Float64    func() float64
	IntN       func(n int) int
}

func DefaultBuiltinOptions() BuiltinOptions {
	return BuiltinOptions{
		Step:       time.Second,
		ChainDelay: 2 * time.Second,
		RetryDelay: time.Second,
		Float64:    rand.Float64,
		IntN:       rand.IntN,
	}
}

// RegisterBuiltins 注册示例任务
func RegisterBuiltins(reg *Registry, opts BuiltinOptions) {
	def := DefaultBuiltinOptions()
	if opts.Float64 == nil {
		opts.Float64 = def.Float64
	}
	if opts.IntN == nil {
		opts.IntN = def.IntN
	}

	reg.Register(TaskAddNumbers, binaryOp(func(x, y float64) float64 { return x + y }), Options{})
	reg.Register(TaskMultiplyNumbers, binaryOp(func(x, y float64) float64 { return x * y }), Options{})
	reg.Register(TaskLongRunning, longRunning(opts.Step), Options{})
	reg.Register(TaskGenerateRandomData, generateRandomData(opts.IntN), Options{})
	reg.Register(TaskProcessData, processData, Options{})
	reg.Register(TaskChainExample, chainExample(opts.ChainDelay), Options{})
	reg.Register(TaskFailing, failing(opts.Float64), Options{
		AutoRetry:  true,
		MaxRetries: 3,
		RetryDelay: opts.RetryDelay,
	})
}

func binaryOp(op func(x, y float64) float64) Handler {
	return func(ctx context.Context, tc *TaskContext, args []interface{}) (interface{}, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("%s() takes 2 arguments, got %d", tc.Name, len(args))
		}
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		y, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		return number(op(x, y)), nil
	}
}

func longRunning(step time.Duration) Handler {
	return func(ctx context.Context, tc *TaskContext, args []interface{}) (interface{}, error) {
		duration, err := argInt(args, 0, 10)
		if err != nil {
			return nil, err
		}

		for i := 0; i < duration; i++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(step):
			}
			if err := tc.UpdateState(ctx, StateProgress, map[string]interface{}{
				"current": i + 1,
				"total":   duration,
				"status":  fmt.Sprintf("Processing step %d/%d", i+1, duration),
			}); err != nil {
				return nil, err
			}
		}

		return map[string]interface{}{
			"status":   "Task completed successfully!",
			"duration": duration,
			"result":   fmt.Sprintf("Processed %d steps", duration),
		}, nil
	}
}

func generateRandomData(intN func(int) int) Handler {
	return func(ctx context.Context, tc *TaskContext, args []interface{}) (interface{}, error) {
		count, err := argInt(args, 0, 100)
		if err != nil {
			return nil, err
		}
		if count < 0 {
			count = 0
		}

		data := make([]int, count)
		for i := range data {
			data[i] = intN(1000) + 1
		}
		return data, nil
	}
}

func processData(ctx context.Context, tc *TaskContext, args []interface{}) (interface{}, error) {
	var data []interface{}
	if len(args) > 0 && args[0] != nil {
		list, ok := args[0].([]interface{})
		if !ok {
			return nil, fmt.Errorf("process_data expects a list, got %T", args[0])
		}
		data = list
	}
	if len(data) == 0 {
		return map[string]interface{}{"error": "No data provided"}, nil
	}

	var sum, lo, hi float64
	for i, v := range data {
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		sum += f
		if i == 0 || f < lo {
			lo = f
		}
		if i == 0 || f > hi {
			hi = f
		}
	}

	return map[string]interface{}{
		"count":   len(data),
		"sum":     number(sum),
		"average": sum / float64(len(data)),
		"min":     number(lo),
		"max":     number(hi),
	}, nil
}

func chainExample(delay time.Duration) Handler {
	return func(ctx context.Context, tc *TaskContext, args []interface{}) (interface{}, error) {
		if len(args) == 0 {
			return nil, errors.New("chain_example() takes 1 argument")
		}
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		result := x*x + 10

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		return number(result), nil
	}
}

func failing(float64Fn func() float64) Handler {
	return func(ctx context.Context, tc *TaskContext, args []interface{}) (interface{}, error) {
		p, err := argFloat(args, 0, 0.7)
		if err != nil {
			return nil, err
		}
		if float64Fn() < p {
			return nil, fmt.Errorf("Task failed randomly (attempt %d)", tc.Retries+1)
		}
		return map[string]interface{}{
			"status":   "success",
			"attempts": tc.Retries + 1,
			"message":  "Task completed successfully after some retries!",
		}, nil
	}
}
