package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"otelsamples/config"
	"otelsamples/internal/bootstrap"
	"otelsamples/pkg/logger"
	pkgotel "otelsamples/pkg/otel"
)

var scenario string

// emit 一个 test_operation span，带两个事件
func emit(ctx context.Context, tracer trace.Tracer, label string) {
	_, span := tracer.Start(ctx, "test_operation", trace.WithAttributes(
		attribute.String("scenario", label),
		attribute.String("test.attribute", "test_value"),
		attribute.Int("test.number", 42),
	))
	span.AddEvent("operation started")
	time.Sleep(10 * time.Millisecond)
	span.AddEvent("operation completed", trace.WithAttributes(attribute.Bool("success", true)))
	span.End()
}

// scenarioA 用户只调用 InitOpenTelemetry，托管导出器自动挂上
func scenarioA(ctx context.Context) error {
	cfg := bootstrap.OTelConfig(config.Cfg, "managed-demo")
	cfg.TracesExporter = pkgotel.ExporterConsole
	cfg.MetricsExporter = pkgotel.ExporterNone

	shutdown, err := pkgotel.InitOpenTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(ctx) }()

	emit(ctx, otel.Tracer("managed-demo.a"), "automatic")
	return pkgotel.ForceFlush(ctx)
}

// scenarioB 用户自建 provider，再手动注入
func scenarioB(ctx context.Context) error {
	exporter, err := pkgotel.NewConsoleExporter()
	if err != nil {
		return err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	defer func() { _ = tp.Shutdown(ctx) }()

	injector := pkgotel.NewInjector(pkgotel.ManagedConfig{
		Disabled:    config.Cfg.ManagedDisabled,
		Endpoint:    config.Cfg.ManagedEndpoint,
		ServiceName: config.Cfg.ManagedService,
	})
	injected := injector.Inject(tp)
	// 第二次注入应被忽略
	again := injector.Inject(tp)
	logger.Logger.Info("Manual injection",
		zap.Bool("injected", injected),
		zap.Bool("second_inject", again),
	)

	emit(ctx, tp.Tracer("managed-demo.b"), "manual")
	return tp.ForceFlush(ctx)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "managed-demo",
		Short: "Show how the managed exporter is injected into a tracer provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			logger.Init()
			defer logger.Sync()

			switch strings.ToLower(scenario) {
			case "a":
				return scenarioA(ctx)
			case "b":
				return scenarioB(ctx)
			case "both":
				fmt.Println("=== Scenario A: automatic injection ===")
				if err := scenarioA(ctx); err != nil {
					return err
				}
				fmt.Println("=== Scenario B: manual provider with injection ===")
				return scenarioB(ctx)
			default:
				return fmt.Errorf("unknown scenario %q, want a, b or both", scenario)
			}
		},
	}
	rootCmd.Flags().StringVar(&scenario, "scenario", "both", "Scenario to run: a, b or both")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
