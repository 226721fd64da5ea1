package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzap "github.com/hertz-contrib/logger/zap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"otelsamples/config"
)

var (
	// Init 之前是 Nop，库代码和测试里直接用不会 panic
	Logger   = zap.NewNop()
	logClose io.Closer
)

// Options 日志输出配置
type Options struct {
	Level       string
	Format      string // json, text
	OutputPath  string // stdout 或文件路径
	Development bool   // 开发环境强制彩色文本输出
	ServiceName string
}

// OptionsFromConfig 从全局配置取日志参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Level:       cfg.LoggerLevel,
		Format:      cfg.LoggerFormat,
		OutputPath:  cfg.LoggerOutputPath,
		Development: cfg.IsDevelopment(),
		ServiceName: cfg.ServiceName,
	}
}

// Init 以全局配置初始化，并同时接管 hertz 的 hlog
func Init() {
	if err := Setup(OptionsFromConfig(&config.Cfg)); err != nil {
		// 日志文件打不开时退回 stdout，不阻塞示例启动
		opts := OptionsFromConfig(&config.Cfg)
		opts.OutputPath = "stdout"
		_ = Setup(opts)
		Logger.Warn("Failed to open log output, using stdout", zap.Error(err))
	}
}

// Setup 按 opts 构建 logger 并替换全局实例
func Setup(opts Options) error {
	ws, closer, err := writeSyncer(opts.OutputPath)
	if err != nil {
		return err
	}

	level := zap.NewAtomicLevelAt(parseZapLevel(opts.Level))
	hzLogger := hertzzap.NewLogger(
		hertzzap.WithCoreEnc(encoder(opts)),
		hertzzap.WithCoreWs(ws),
		hertzzap.WithCoreLevel(level),
		hertzzap.WithZapOptions(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
			zap.Fields(zap.String("service", opts.ServiceName)),
		),
	)
	hlog.SetLogger(hzLogger)
	hlog.SetLevel(toHlogLevel(level.Level()))

	if logClose != nil {
		_ = logClose.Close()
	}
	logClose = closer
	Logger = hzLogger.Logger()

	Logger.Info("Logger initialized",
		zap.String("level", level.Level().CapitalString()),
		zap.String("format", opts.Format),
		zap.String("output", opts.OutputPath),
	)
	return nil
}

// WithContext 返回带 trace_id / span_id 的 logger，用于日志与链路关联
func WithContext(ctx context.Context) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return Logger
	}
	return Logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

func Sync() {
	_ = Logger.Sync()
	if logClose != nil {
		_ = logClose.Close()
		logClose = nil
	}
}

func encoder(opts Options) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder

	if opts.Development || strings.EqualFold(opts.Format, "text") {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}

func writeSyncer(path string) (zapcore.WriteSyncer, io.Closer, error) {
	if path == "" || strings.EqualFold(path, "stdout") {
		return zapcore.AddSync(os.Stdout), nil, nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return zapcore.AddSync(file), file, nil
}

func parseZapLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func toHlogLevel(level zapcore.Level) hlog.Level {
	switch level {
	case zapcore.DebugLevel:
		return hlog.LevelDebug
	case zapcore.WarnLevel:
		return hlog.LevelWarn
	case zapcore.ErrorLevel:
		return hlog.LevelError
	default:
		return hlog.LevelInfo
	}
}
