package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/internal/bootstrap"
	"otelsamples/internal/queue"
	"otelsamples/pkg/logger"
)

var (
	mode     string
	duration time.Duration
	topic    string
)

func runRole(role queue.Role) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		switch mode {
		case queue.ModeSync, queue.ModeAsync:
		default:
			return fmt.Errorf("unknown mode %q, want sync or async", mode)
		}

		ctx, cancel := bootstrap.SignalContext()
		defer cancel()

		shutdown := bootstrap.Init(ctx, "")
		defer shutdown()

		opts := queue.OptionsFromConfig(config.Cfg)
		opts.Mode = mode
		opts.Duration = duration
		opts.Topic = topic

		logger.Logger.Info("Kafka sample starting",
			zap.String("role", role.String()),
			zap.String("mode", mode),
			zap.String("topic", topic),
			zap.Duration("duration", duration),
		)
		return queue.Run(ctx, opts, role, nil)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "kafka",
		Short: "Kafka producer and consumer with OpenTelemetry tracing",
		Long:  "Produces a message every interval and consumes it in the same process, propagating trace context through Kafka headers",
	}

	rootCmd.PersistentFlags().StringVar(&mode, "mode", config.Cfg.KafkaDeliveryMode, "Delivery mode: sync waits on each delivery report, async drains them in the background")
	rootCmd.PersistentFlags().DurationVar(&duration, "duration", config.Cfg.KafkaRunDuration, "How long to run, 0 runs until interrupted")
	rootCmd.PersistentFlags().StringVar(&topic, "topic", config.Cfg.KafkaTopic, "Kafka topic")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run producer and consumer together",
			RunE:  runRole(queue.RoleBoth),
		},
		&cobra.Command{
			Use:   "produce",
			Short: "Run only the producer",
			RunE:  runRole(queue.RoleProducer),
		},
		&cobra.Command{
			Use:   "consume",
			Short: "Run only the consumer",
			RunE:  runRole(queue.RoleConsumer),
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
