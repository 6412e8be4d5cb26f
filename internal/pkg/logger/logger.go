// Package logger provides a global, Sugared Zap logger that can be enriched
// through the context. Child loggers created with Derive travel with the
// context, and OpenTelemetry trace and span identifiers are attached to every
// entry logged under an active span.
package logger

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKeyType struct{}

// ctxKey is the context key under which derived loggers are stored.
var ctxKey = ctxKeyType{}

var (
	// baseLogger is the process-wide SugaredLogger. It is initialized once by Init.
	baseLogger *zap.SugaredLogger

	// initBaseLoggerOnce ensures the logger is only configured a single time.
	initBaseLoggerOnce sync.Once
)

// Init configures the global logger to emit JSON to stdout at the given
// level (debug, info, warn, error, panic, fatal). Calling Init multiple times
// has no effect after the first successful initialization.
//
// Returns an error if parsing the log level fails.
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	initBaseLoggerOnce.Do(func() {
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			lvl,
		)

		baseLogger = zap.New(core).Sugar()
	})

	return nil
}

// deriveFromCtx returns a child of the logger carried by ctx (or of the base
// logger) with keysAndValues and the active trace identifiers attached.
func deriveFromCtx(ctx context.Context, keysAndValues ...any) *zap.SugaredLogger {
	l, ok := ctx.Value(ctxKey).(*zap.SugaredLogger)
	if !ok {
		l = baseLogger
	}

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		keysAndValues = append(keysAndValues,
			"trace_id", spanCtx.TraceID().String(),
			"span_id", spanCtx.SpanID().String(),
		)
	}

	if len(keysAndValues) == 0 {
		return l
	}
	return l.With(keysAndValues...)
}

// Derive returns a copy of ctx carrying a logger enriched with keysAndValues.
// Every later call that receives the returned context logs those fields.
func Derive(ctx context.Context, keysAndValues ...any) context.Context {
	return context.WithValue(ctx, ctxKey, deriveFromCtx(ctx, keysAndValues...))
}

// Sync flushes any buffered log entries. It should be called on application
// shutdown to ensure all logs are written out.
func Sync() error {
	return baseLogger.Sync()
}

func log(ctx context.Context, level zapcore.Level, msg string, keysAndValues ...any) {
	deriveFromCtx(ctx).Logw(level, msg, keysAndValues...)
}

// Debug logs a debug-level message with optional key/value context.
func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.DebugLevel, msg, keysAndValues...)
}

// Info logs an info-level message with optional key/value context.
func Info(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.InfoLevel, msg, keysAndValues...)
}

// Warn logs a warn-level message with optional key/value context.
func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.WarnLevel, msg, keysAndValues...)
}

// Error logs an error-level message with optional key/value context.
func Error(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.ErrorLevel, msg, keysAndValues...)
}

// Panic logs a panic-level message (and then panics) with optional key/value context.
func Panic(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.PanicLevel, msg, keysAndValues...)
}

// Fatal logs a fatal-level message (and then exits) with optional key/value context.
func Fatal(ctx context.Context, msg string, keysAndValues ...any) {
	log(ctx, zapcore.FatalLevel, msg, keysAndValues...)
}
