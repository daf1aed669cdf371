// Package telemetry backs core.Logger/core.Telemetry with zap and
// OpenTelemetry, and exposes the prometheus metrics the orchestration core
// emits. The logger's env-driven level/format selection and singleton
// construction are grounded on telemetry/logger.go's TelemetryLogger; the
// span helpers are grounded on telemetry/api.go's SetSpanAttributes /
// AddSpanEvent usage pattern observed in orchestration/workflow_engine.go.
package telemetry

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/veritas-eu/orchestrator-core/core"
)

var (
	baseOnce   sync.Once
	baseLogger *zap.Logger
)

// baseZapLogger builds the process-wide zap.Logger once: JSON encoding
// when running in Kubernetes (detected via KUBERNETES_SERVICE_HOST, same
// signal the teacher uses), console encoding otherwise; level from
// VERITAS_LOG_LEVEL (default info).
func baseZapLogger() *zap.Logger {
	baseOnce.Do(func() {
		level := zapcore.InfoLevel
		if v := os.Getenv("VERITAS_LOG_LEVEL"); v != "" {
			_ = level.UnmarshalText([]byte(strings.ToLower(v)))
		}

		var encoderCfg zapcore.EncoderConfig
		var encoder zapcore.Encoder
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			encoderCfg = zap.NewProductionEncoderConfig()
			encoderCfg.TimeKey = "timestamp"
			encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
			encoder = zapcore.NewJSONEncoder(encoderCfg)
		} else {
			encoderCfg = zap.NewDevelopmentEncoderConfig()
			encoder = zapcore.NewConsoleEncoder(encoderCfg)
		}

		core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
		baseLogger = zap.New(core, zap.AddCaller())
	})
	return baseLogger
}

// ZapLogger implements core.ComponentAwareLogger.
type ZapLogger struct {
	z         *zap.SugaredLogger
	component string
}

func NewZapLogger() *ZapLogger {
	return &ZapLogger{z: baseZapLogger().Sugar()}
}

func (l *ZapLogger) WithComponent(component string) core.Logger {
	return &ZapLogger{z: l.z, component: component}
}

func (l *ZapLogger) fields(extra map[string]interface{}) []interface{} {
	args := make([]interface{}, 0, 2*(len(extra)+1))
	if l.component != "" {
		args = append(args, "component", l.component)
	}
	for k, v := range extra {
		args = append(args, k, v)
	}
	return args
}

func (l *ZapLogger) Info(msg string, fields map[string]interface{}) {
	l.z.Infow(msg, l.fields(fields)...)
}
func (l *ZapLogger) Error(msg string, fields map[string]interface{}) {
	l.z.Errorw(msg, l.fields(fields)...)
}
func (l *ZapLogger) Warn(msg string, fields map[string]interface{}) {
	l.z.Warnw(msg, l.fields(fields)...)
}
func (l *ZapLogger) Debug(msg string, fields map[string]interface{}) {
	l.z.Debugw(msg, l.fields(fields)...)
}

func (l *ZapLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, withTraceFields(ctx, fields))
}
func (l *ZapLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, withTraceFields(ctx, fields))
}
func (l *ZapLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, withTraceFields(ctx, fields))
}
func (l *ZapLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, withTraceFields(ctx, fields))
}

func withTraceFields(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	sc := traceContext(ctx)
	if sc == nil {
		return fields
	}
	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["trace_id"] = sc.traceID
	out["span_id"] = sc.spanID
	return out
}
