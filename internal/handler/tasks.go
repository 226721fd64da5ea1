package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"otelsamples/internal/tasks"
	"otelsamples/pkg/errors"
	"otelsamples/pkg/response"
)

// TasksHandler celery 示例的提交与查询接口
type TasksHandler struct {
	app *tasks.App
}

func NewTasksHandler(a *tasks.App) *TasksHandler {
	return &TasksHandler{app: a}
}

// params 读取 JSON 请求体，缺失的字段取默认值
func params(c *app.RequestContext, defaults map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{}
	if body := c.Request.Body(); len(body) > 0 {
		_ = json.Unmarshal(body, &data)
	}
	out := make(map[string]interface{}, len(defaults))
	for k, def := range defaults {
		if v, ok := data[k]; ok && v != nil {
			out[k] = v
		} else {
			out[k] = def
		}
	}
	return out
}

func (h *TasksHandler) submitted(ctx context.Context, c *app.RequestContext, id, status, task string, p interface{}) {
	body := utils.H{
		"task_id": id,
		"status":  status,
		"task":    task,
	}
	if p != nil {
		body["params"] = p
	}
	response.JSON(ctx, c, body)
}

func (h *TasksHandler) failSubmit(ctx context.Context, c *app.RequestContext, err error) {
	response.ErrorWithStatus(ctx, c, http.StatusServiceUnavailable, errors.Wrap("Task submission", err))
}

// Add POST /add
func (h *TasksHandler) Add(ctx context.Context, c *app.RequestContext) {
	p := params(c, map[string]interface{}{"x": 10, "y": 5})
	id, err := h.app.Delay(ctx, tasks.TaskAddNumbers, p["x"], p["y"])
	if err != nil {
		h.failSubmit(ctx, c, err)
		return
	}
	h.submitted(ctx, c, id, "Task submitted", tasks.TaskAddNumbers, p)
}

// Multiply POST /multiply
func (h *TasksHandler) Multiply(ctx context.Context, c *app.RequestContext) {
	p := params(c, map[string]interface{}{"x": 10, "y": 5})
	id, err := h.app.Delay(ctx, tasks.TaskMultiplyNumbers, p["x"], p["y"])
	if err != nil {
		h.failSubmit(ctx, c, err)
		return
	}
	h.submitted(ctx, c, id, "Task submitted", tasks.TaskMultiplyNumbers, p)
}

// LongTask POST /long-task
func (h *TasksHandler) LongTask(ctx context.Context, c *app.RequestContext) {
	p := params(c, map[string]interface{}{"duration": 5})
	id, err := h.app.Delay(ctx, tasks.TaskLongRunning, p["duration"])
	if err != nil {
		h.failSubmit(ctx, c, err)
		return
	}
	h.submitted(ctx, c, id, "Long-running task submitted", tasks.TaskLongRunning, p)
}

// GenerateData POST /generate-data
func (h *TasksHandler) GenerateData(ctx context.Context, c *app.RequestContext) {
	p := params(c, map[string]interface{}{"count": 100})
	id, err := h.app.Delay(ctx, tasks.TaskGenerateRandomData, p["count"])
	if err != nil {
		h.failSubmit(ctx, c, err)
		return
	}
	h.submitted(ctx, c, id, "Data generation task submitted", tasks.TaskGenerateRandomData, p)
}

// ProcessWorkflow POST /process-workflow
func (h *TasksHandler) ProcessWorkflow(ctx context.Context, c *app.RequestContext) {
	id, err := h.app.Chord(ctx,
		[]tasks.Signature{
			tasks.Sig(tasks.TaskGenerateRandomData, 50),
			tasks.Sig(tasks.TaskGenerateRandomData, 30),
		},
		tasks.Sig(tasks.TaskProcessData),
	)
	if err != nil {
		h.failSubmit(ctx, c, err)
		return
	}
	h.submitted(ctx, c, id, "Data processing workflow submitted", "chord(generate_random_data) | process_data", nil)
}

// ChainTasks POST /chain-tasks
func (h *TasksHandler) ChainTasks(ctx context.Context, c *app.RequestContext) {
	p := params(c, map[string]interface{}{"chain_input": 5})
	id, err := h.app.Chain(ctx,
		tasks.Sig(tasks.TaskChainExample, p["chain_input"]),
		tasks.Sig(tasks.TaskChainExample),
		tasks.Sig(tasks.TaskChainExample),
	)
	if err != nil {
		h.failSubmit(ctx, c, err)
		return
	}
	h.submitted(ctx, c, id, "Task chain submitted", "chain(chain_example * 3)", utils.H{"input": p["chain_input"]})
}

// FailingTask POST /failing-task
func (h *TasksHandler) FailingTask(ctx context.Context, c *app.RequestContext) {
	id, err := h.app.Delay(ctx, tasks.TaskFailing)
	if err != nil {
		h.failSubmit(ctx, c, err)
		return
	}
	h.submitted(ctx, c, id, "Failing task submitted (will retry on failure)", tasks.TaskFailing, nil)
}

// TaskStatus GET /task-status/:id
func (h *TasksHandler) TaskStatus(ctx context.Context, c *app.RequestContext) {
	res, err := h.app.AsyncResult(ctx, c.Param("id"))
	if err != nil {
		response.Error(ctx, c, errors.Wrap("Task status", err))
		return
	}
	response.JSON(ctx, c, TaskStatusBody(res))
}

// TaskStatusBody 按状态整理成前端轮询用的格式
func TaskStatusBody(res tasks.Result) utils.H {
	switch res.State {
	case tasks.StatePending:
		return utils.H{"state": res.State, "current": 0, "total": 1, "status": "Pending..."}
	case tasks.StateProgress:
		body := utils.H{"state": res.State, "current": 0, "total": 1, "status": ""}
		for _, k := range []string{"current", "total", "status"} {
			if v, ok := res.Meta[k]; ok {
				body[k] = v
			}
		}
		return body
	case tasks.StateSuccess:
		return utils.H{"state": res.State, "result": res.Result}
	default:
		return utils.H{"state": res.State, "result": res.Error}
	}
}

// WorkerStatus GET /worker-status
func (h *TasksHandler) WorkerStatus(ctx context.Context, c *app.RequestContext) {
	ins, err := h.app.Inspect(ctx)
	if err != nil {
		response.Error(ctx, c, errors.Wrap("Worker inspect", err))
		return
	}
	response.JSON(ctx, c, ins)
}
