package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WithSpan 在名为 spanName 的 span 内执行 fn，错误会记录到 span 上
func WithSpan(ctx context.Context, tracerName, spanName string, fn func(ctx context.Context) error, opts ...trace.SpanStartOption) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, opts...)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// RecordError 把错误写到当前 span 上
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
