// Package queue 实现 Kafka 示例的生产者、消费者和运行生命周期。
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"otelsamples/config"
	"otelsamples/pkg/errors"
	"otelsamples/pkg/retry"
)

const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Options 示例运行参数，零值字段在 withDefaults 中补齐
type Options struct {
	BootstrapServers string
	Topic            string
	GroupID          string
	ClientID         string
	ServiceName      string
	// Mode sync 逐条等待 delivery report，async 由后台 goroutine 处理
	Mode            string
	Interval        time.Duration
	Duration        time.Duration
	Wait            retry.Policy
	MetadataTimeout time.Duration
	StopTimeout     time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BootstrapServers: cfg.KafkaBootstrapServers,
		Topic:            cfg.KafkaTopic,
		GroupID:          cfg.KafkaGroupID,
		ClientID:         cfg.KafkaClientID,
		ServiceName:      cfg.ServiceName,
		Mode:             cfg.KafkaDeliveryMode,
		Interval:         cfg.KafkaProduceInterval,
		Duration:         cfg.KafkaRunDuration,
	}
}

func (o Options) withDefaults() Options {
	if o.Topic == "" {
		o.Topic = "test-topic"
	}
	if o.GroupID == "" {
		o.GroupID = "test-group"
	}
	if o.ServiceName == "" {
		o.ServiceName = "kafka-sample"
	}
	if o.Mode == "" {
		o.Mode = ModeSync
	}
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.Wait.Attempts == 0 {
		o.Wait = retry.BrokerPolicy
	}
	if o.MetadataTimeout <= 0 {
		o.MetadataTimeout = 5 * time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	return o
}

// WaitForKafka 反复请求集群元数据直到成功，次数用尽返回 BROKER_UNAVAILABLE
func WaitForKafka(ctx context.Context, opts Options) error {
	opts = opts.withDefaults()

	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": opts.BootstrapServers,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.BrokerUnavailable, err)
	}
	defer admin.Close()

	timeoutMs := int(opts.MetadataTimeout / time.Millisecond)
	err = retry.Do(ctx, "kafka "+opts.BootstrapServers, opts.Wait, func(ctx context.Context) error {
		_, err := admin.GetMetadata(nil, true, timeoutMs)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.BrokerUnavailable, err)
	}
	return nil
}
