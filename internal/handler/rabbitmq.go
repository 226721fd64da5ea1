package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"otelsamples/internal/service"
	"otelsamples/pkg/response"
)

const defaultQueue = "demo_queue"

// queueRequest 同时接受 queue_name 与 queue 两种字段名
type queueRequest struct {
	QueueName string          `json:"queue_name"`
	Queue     string          `json:"queue"`
	Message   json.RawMessage `json:"message"`
	Count     *int            `json:"count"`
}

func (r queueRequest) queue() string {
	switch {
	case r.QueueName != "":
		return r.QueueName
	case r.Queue != "":
		return r.Queue
	default:
		return defaultQueue
	}
}

func bindQueueRequest(c *app.RequestContext) queueRequest {
	var req queueRequest
	if body := c.Request.Body(); len(body) > 0 {
		_ = json.Unmarshal(body, &req)
	}
	if req.QueueName == "" {
		req.QueueName = c.Query("queue_name")
	}
	return req
}

// RabbitMQHandler pika / aio-pika 示例的路由
type RabbitMQHandler struct {
	svc *service.RabbitMQService
}

func NewRabbitMQHandler(svc *service.RabbitMQService) *RabbitMQHandler {
	return &RabbitMQHandler{svc: svc}
}

// Connect POST /connect
func (h *RabbitMQHandler) Connect(ctx context.Context, c *app.RequestContext) {
	info, err := h.svc.Connect(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, "Connected to RabbitMQ successfully", utils.H{"connection_info": info})
}

// Disconnect POST /disconnect
func (h *RabbitMQHandler) Disconnect(ctx context.Context, c *app.RequestContext) {
	was, err := h.svc.Disconnect(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	if !was {
		response.Info(ctx, c, "Not connected to RabbitMQ", nil)
		return
	}
	response.Success(ctx, c, "Disconnected from RabbitMQ", nil)
}

// ConnectionStatus GET /connection-status
func (h *RabbitMQHandler) ConnectionStatus(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, h.svc.Status())
}

// CreateQueue POST /create-queue
func (h *RabbitMQHandler) CreateQueue(ctx context.Context, c *app.RequestContext) {
	queue := bindQueueRequest(c).queue()
	if err := h.svc.CreateQueue(ctx, queue); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, fmt.Sprintf("Queue '%s' created successfully", queue), utils.H{"queue_name": queue})
}

// QueueInfo GET /queue-info?queue_name=
func (h *RabbitMQHandler) QueueInfo(ctx context.Context, c *app.RequestContext) {
	queue := bindQueueRequest(c).queue()
	q, err := h.svc.QueueInfo(ctx, queue)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, "", utils.H{
		"queue_name":     queue,
		"message_count":  q.Messages,
		"consumer_count": q.Consumers,
	})
}

// Publish POST /publish
func (h *RabbitMQHandler) Publish(ctx context.Context, c *app.RequestContext) {
	req := bindQueueRequest(c)
	queue := req.queue()

	var message interface{}
	if len(req.Message) > 0 && string(req.Message) != "null" {
		if err := json.Unmarshal(req.Message, &message); err != nil {
			message = string(req.Message)
		}
	}

	published, err := h.svc.Publish(ctx, queue, message)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, fmt.Sprintf("Message published to '%s'", queue), utils.H{
		"queue_name":        queue,
		"published_message": published,
	})
}

// PublishBatch POST /publish-batch
func (h *RabbitMQHandler) PublishBatch(ctx context.Context, c *app.RequestContext) {
	req := bindQueueRequest(c)
	queue := req.queue()
	count := 5
	if req.Count != nil && *req.Count > 0 {
		count = *req.Count
	}

	if err := h.svc.PublishBatch(ctx, queue, count); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, fmt.Sprintf("Published %d messages to '%s'", count, queue), utils.H{
		"queue_name": queue,
		"count":      count,
	})
}

// StartConsumer POST /start-consumer
func (h *RabbitMQHandler) StartConsumer(ctx context.Context, c *app.RequestContext) {
	queue := bindQueueRequest(c).queue()
	started, err := h.svc.StartConsumer(ctx, queue)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	if !started {
		response.Info(ctx, c, "Consumer already running", nil)
		return
	}
	response.Success(ctx, c, fmt.Sprintf("Consumer started for queue '%s'", queue), utils.H{"queue_name": queue})
}

// StopConsumer POST /stop-consumer
func (h *RabbitMQHandler) StopConsumer(ctx context.Context, c *app.RequestContext) {
	stopped, err := h.svc.StopConsumer(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	if !stopped {
		response.Info(ctx, c, "No consumer is currently running", nil)
		return
	}
	response.Success(ctx, c, "Consumer stopped", nil)
}

// Messages GET /messages
func (h *RabbitMQHandler) Messages(ctx context.Context, c *app.RequestContext) {
	msgs, total := h.svc.Messages()
	response.Success(ctx, c, "", utils.H{
		"messages":    msgs,
		"total_count": total,
	})
}

// ClearMessages POST /clear-messages
func (h *RabbitMQHandler) ClearMessages(ctx context.Context, c *app.RequestContext) {
	h.svc.ClearMessages()
	response.Success(ctx, c, "Messages cleared", nil)
}
