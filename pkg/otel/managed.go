package otel

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"otelsamples/pkg/logger"
)

const (
	DefaultManagedEndpoint = "https://managed-backend.example.com/traces"
	DefaultManagedService  = "managed-service"

	maxLoggedEvents = 3
)

var errExporterShutdown = errors.New("managed exporter is shut down")

// ManagedConfig 托管导出器配置
type ManagedConfig struct {
	Disabled    bool
	Endpoint    string
	ServiceName string
}

// ManagedExporter 托管环境的 SpanExporter，目前只把 span 摘要写到日志
type ManagedExporter struct {
	endpoint    string
	serviceName string
	log         *zap.Logger

	mu       sync.Mutex
	shutdown bool
}

// NewManagedExporter 创建托管导出器，空字段使用默认值
func NewManagedExporter(cfg ManagedConfig) *ManagedExporter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultManagedEndpoint
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultManagedService
	}

	e := &ManagedExporter{
		endpoint:    cfg.Endpoint,
		serviceName: cfg.ServiceName,
	}
	e.logger().Info("ManagedExporter initialized", zap.String("endpoint", e.endpoint))
	return e
}

// WithLogger 替换输出 logger
func (e *ManagedExporter) WithLogger(l *zap.Logger) *ManagedExporter {
	e.log = l
	return e
}

// logger 延迟取全局 logger，exporter 可能早于 logger.Init 创建
func (e *ManagedExporter) logger() *zap.Logger {
	if e.log != nil {
		return e.log
	}
	return logger.Logger.Named("managed_exporter")
}

func (e *ManagedExporter) Endpoint() string    { return e.endpoint }
func (e *ManagedExporter) ServiceName() string { return e.serviceName }

// ExportSpans 实现 sdktrace.SpanExporter
func (e *ManagedExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	closed := e.shutdown
	e.mu.Unlock()
	if closed {
		return errExporterShutdown
	}

	log := e.logger()
	log.Info("Exporting spans to managed backend",
		zap.Int("count", len(spans)),
		zap.String("endpoint", e.endpoint),
	)

	for _, s := range spans {
		fields := []zap.Field{
			zap.String("name", s.Name()),
			zap.String("trace_id", s.SpanContext().TraceID().String()),
			zap.String("span_id", s.SpanContext().SpanID().String()),
			zap.String("status", s.Status().Code.String()),
			zap.Float64("duration_ms", float64(s.EndTime().Sub(s.StartTime()).Microseconds())/1000),
			zap.String("service_name", e.serviceName),
		}

		if attrs := s.Attributes(); len(attrs) > 0 {
			fields = append(fields, zap.Any("attributes", attributeMap(attrs)))
		}
		if parent := s.Parent(); parent.IsValid() {
			fields = append(fields, zap.String("parent", parent.SpanID().String()))
		}
		if events := s.Events(); len(events) > 0 {
			names := make([]string, 0, maxLoggedEvents)
			for i, ev := range events {
				if i == maxLoggedEvents {
					break
				}
				names = append(names, ev.Name)
			}
			fields = append(fields,
				zap.Int("event_count", len(events)),
				zap.Strings("events", names),
			)
		}

		log.Info("Span", fields...)
	}

	// TODO: 按 endpoint 做真正的 HTTP 上报
	log.Info("Successfully exported spans", zap.Int("count", len(spans)))
	return nil
}

// Shutdown 实现 sdktrace.SpanExporter，可重复调用
func (e *ManagedExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.shutdown {
		e.shutdown = true
		e.logger().Info("ManagedExporter shutting down")
	}
	return nil
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

// MultiExporter 同时导出到多个后端，全部成功才算成功
type MultiExporter struct {
	exporters []sdktrace.SpanExporter
}

func NewMultiExporter(exporters ...sdktrace.SpanExporter) *MultiExporter {
	logger.Logger.Info("MultiExporter initialized", zap.Int("exporters", len(exporters)))
	return &MultiExporter{exporters: exporters}
}

func (m *MultiExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	var errs []error
	for _, exp := range m.exporters {
		if err := exp.ExportSpans(ctx, spans); err != nil {
			logger.Logger.Error("Exporter failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiExporter) Shutdown(ctx context.Context) error {
	var errs []error
	for _, exp := range m.exporters {
		if err := exp.Shutdown(ctx); err != nil {
			logger.Logger.Error("Error shutting down exporter", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// 已注入托管处理器的 provider，跨 Injector 共享
var (
	injectMu sync.Mutex
	injected = make(map[*sdktrace.TracerProvider]*ManagedExporter)
)

// Injector 在配置阶段为 TracerProvider 挂载托管导出器
type Injector struct {
	cfg ManagedConfig
}

func NewInjector(cfg ManagedConfig) *Injector {
	return &Injector{cfg: cfg}
}

// Inject 为 tp 注册托管 BatchSpanProcessor，同一个 provider 只注册一次。
// 返回本次是否真正注册。
func (in *Injector) Inject(tp *sdktrace.TracerProvider) bool {
	if tp == nil {
		return false
	}
	if in.cfg.Disabled {
		logger.Logger.Info("Managed OpenTelemetry injection is disabled via MANAGED_OTEL_DISABLED")
		return false
	}

	injectMu.Lock()
	defer injectMu.Unlock()

	if _, ok := injected[tp]; ok {
		return false
	}

	exporter := NewManagedExporter(in.cfg)
	tp.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	injected[tp] = exporter

	logger.Logger.Info("Managed span processor added to tracer provider")
	return true
}

// InjectedExporter 返回已注入 tp 的托管导出器
func InjectedExporter(tp *sdktrace.TracerProvider) (*ManagedExporter, bool) {
	injectMu.Lock()
	defer injectMu.Unlock()
	exp, ok := injected[tp]
	return exp, ok
}
