package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger with additional convenience methods.
type Logger struct {
	*zap.Logger
}

// loggerContextKey is the context key for storing logger instances.
type loggerContextKey struct{}

// GlobalLogger is the default logger instance. Exported for testing.
var GlobalLogger *Logger

// LoggerOptions configures the logger. The zero value is a production JSON
// logger at info level writing to stdout.
type LoggerOptions struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string

	// Format selects the encoder ("json" or "console").
	Format string

	// OutputPaths is a list of output destinations.
	OutputPaths []string

	// ErrorOutputPaths is a list of error output destinations.
	ErrorOutputPaths []string

	// EnableCaller adds caller information to log entries.
	EnableCaller bool

	// EnableStacktrace adds stacktraces on errors.
	EnableStacktrace bool

	// Development enables development mode.
	Development bool
}

// InitLogger initializes the global logger from options.
func InitLogger(opts LoggerOptions) (*Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if opts.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	if opts.Format != "" {
		cfg.Encoding = opts.Format
	}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}
	if len(opts.ErrorOutputPaths) > 0 {
		cfg.ErrorOutputPaths = opts.ErrorOutputPaths
	}
	cfg.DisableCaller = !opts.EnableCaller
	cfg.DisableStacktrace = !opts.EnableStacktrace

	zapLogger, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger := &Logger{Logger: zapLogger}
	GlobalLogger = logger

	return logger, nil
}

// GetLogger returns the global logger instance.
// Panics if InitLogger has not been called.
func GetLogger() *Logger {
	if GlobalLogger == nil {
		panic("logger not initialized - call InitLogger first")
	}
	return GlobalLogger
}

// WithFields creates a new logger with additional fields.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.With(fields...)}
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.With(zap.Error(err))}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(zap.String("component", component))}
}

// ContextWithLogger adds the logger to the context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext retrieves the logger from context.
// Returns the global logger if not found.
func LoggerFromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return logger
	}
	return GetLogger()
}

// Sync flushes any buffered log entries.
// Should be called before application shutdown.
func (l *Logger) Sync() error {
	if err := l.Logger.Sync(); err != nil {
		return fmt.Errorf("failed to sync logger: %w", err)
	}
	return nil
}

// Helper methods for common logging patterns

// LogRequest logs an HTTP request.
func (l *Logger) LogRequest(method, path string, statusCode int, duration float64) {
	l.Info("http request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Float64("duration_ms", duration),
	)
}

// LogTransition logs a lifecycle transition on a resource envelope.
func (l *Logger) LogTransition(operation, kind, id string, err error) {
	if err != nil {
		l.Error("transition rejected",
			zap.String("operation", operation),
			zap.String("kind", kind),
			zap.String("id", id),
			zap.Error(err),
		)
	} else {
		l.Info("transition applied",
			zap.String("operation", operation),
			zap.String("kind", kind),
			zap.String("id", id),
		)
	}
}

// LogRedisOperation logs a Redis operation.
func (l *Logger) LogRedisOperation(operation string, key string, err error) {
	if err != nil {
		l.Error("redis operation failed",
			zap.String("operation", operation),
			zap.String("key", key),
			zap.Error(err),
		)
	} else {
		l.Debug("redis operation completed",
			zap.String("operation", operation),
			zap.String("key", key),
		)
	}
}

// LogRegistryOperation logs a PID registry operation.
func (l *Logger) LogRegistryOperation(operation, pid string, err error) {
	if err != nil {
		l.Error("registry operation failed",
			zap.String("operation", operation),
			zap.String("pid", pid),
			zap.Error(err),
		)
	} else {
		l.Debug("registry operation completed",
			zap.String("operation", operation),
			zap.String("pid", pid),
		)
	}
}
