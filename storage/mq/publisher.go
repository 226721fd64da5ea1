package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	pkgmq "otelsamples/pkg/mq"
	"otelsamples/pkg/snowflake"
)

// PublishJSON 以持久化 JSON 消息发布到默认 exchange，返回 message_id
func PublishJSON(ctx context.Context, ch pkgmq.Channel, queue string, body interface{}) (string, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	messageID := snowflake.NextIDString()
	err = ch.PublishWithContext(ctx,
		"",
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         bodyBytes,
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return "", err
	}
	return messageID, nil
}
