package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger shared by every service. Each entry carries
// a service name, an action tag and the request id travelling in the context.
type Logger struct {
	zl *zap.Logger
}

// NewLogger creates a structured JSON logger for the named service.
func NewLogger(service string) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		zap.NewAtomicLevelAt(zapcore.DebugLevel),
	)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	zl := zap.New(core).With(
		zap.String("service", service),
		zap.String("hostname", hostname),
	)

	return &Logger{zl: zl}
}

// Sync flushes buffered entries; call it on shutdown.
func (logger *Logger) Sync() {
	_ = logger.zl.Sync()
}

// Define an unexported type for context keys.
type ctxKey string

// requestIDKey is the context key for the request ID.
const requestIDKey ctxKey = "request_id"

// WithRequestID returns a context carrying a request id (useful for HTTP/mq hops).
func (logger *Logger) WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// requestIDFrom returns a value saved in the context.
func requestIDFrom(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (logger *Logger) fields(ctx context.Context, action string, details any) []zap.Field {
	fields := []zap.Field{
		zap.String("action", action),
		zap.String("request_id", requestIDFrom(ctx)),
	}
	if details != nil {
		fields = append(fields, zap.Any("details", details))
	}
	return fields
}

// -- Logger helper functions --

func (logger *Logger) Info(ctx context.Context, action, msg string, details any) {
	logger.zl.Info(msg, logger.fields(ctx, action, details)...)
}

func (logger *Logger) Debug(ctx context.Context, action, msg string, details any) {
	logger.zl.Debug(msg, logger.fields(ctx, action, details)...)
}

func (logger *Logger) Error(ctx context.Context, action, msg string, err error) {
	fields := logger.fields(ctx, action, nil)
	fields = append(fields, zap.Error(err), zap.StackSkip("stack", 1))
	logger.zl.Error(msg, fields...)
}
