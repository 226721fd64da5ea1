package model

// ReceivedMessage 消费者缓存的一条消息
type ReceivedMessage struct {
	Timestamp   string      `json:"timestamp"` // 15:04:05
	Queue       string      `json:"queue"`
	Body        interface{} `json:"body"` // JSON 解码失败时为原始文本
	DeliveryTag uint64      `json:"delivery_tag"`
}

// BatchMessage publish-batch 生成的消息体
type BatchMessage struct {
	ID        int    `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// KafkaMessage 生产者每个周期发送的消息体
type KafkaMessage struct {
	ID        int    `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
