package otel

// Resource 描述产生 telemetry 数据的实体（服务、主机等），
// 会附加到所有 span 和 metric 上，用于标识数据来源。
/*
Resource
    ↓
TracerProvider
    ├── Sampler (ParentBased + TraceIDRatio)
    ├── BatchSpanProcessor → Exporter (otlp / console)
    └── BatchSpanProcessor → ManagedExporter (托管注入)
*/

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const serviceNamespace = "otelsamples"

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(GetServiceAttributes(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)...),
		resource.WithAttributes(semconv.TelemetrySDKLanguageGo),
		resource.WithHost(),
		resource.WithOSType(),
		resource.WithProcessPID(),
	)
}

// GetServiceAttributes 获取服务属性
func GetServiceAttributes(serviceName, serviceVersion, environment string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
		semconv.DeploymentEnvironment(environment),
		semconv.ServiceNamespace(serviceNamespace),
	}
}
