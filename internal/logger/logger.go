// Package logger provides structured logging with optional OpenTelemetry
// trace correlation. Loggers are constructed explicitly and passed to the
// components that need them.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config holds logging configuration.
type Config struct {
	Level    string // DEBUG, INFO, WARN, ERROR
	Format   string // json or text
	Detailed bool   // debug records and caller source
	Tracing  bool   // OpenTelemetry spans exported to TraceOutput
	Service  string

	Output      io.Writer // defaults to os.Stderr
	TraceOutput io.Writer // defaults to os.Stderr
}

// ConfigFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_DETAILED and LOG_TRACING_ENABLED.
func ConfigFromEnv() Config {
	return Config{
		Level:    getEnvOrDefault("LOG_LEVEL", "INFO"),
		Format:   getEnvOrDefault("LOG_FORMAT", "text"),
		Detailed: getEnvOrDefault("LOG_DETAILED", "false") == "true",
		Tracing:  getEnvOrDefault("LOG_TRACING_ENABLED", "false") == "true",
	}
}

// Logger wraps slog with trace-aware helpers.
// A nil *Logger discards everything.
type Logger struct {
	base     *slog.Logger
	detailed bool
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// New creates a Logger. When tracing is requested but the exporter cannot be
// created, the logger falls back to plain logging and reports the failure.
func New(cfg Config) (*Logger, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Service == "" {
		cfg.Service = "wsb-sentiment-lab"
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Detailed {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	l := &Logger{
		base:     slog.New(handler).With("service", cfg.Service),
		detailed: cfg.Detailed,
	}

	if cfg.Tracing {
		if err := l.initTracer(cfg); err != nil {
			l.base.Warn("tracing disabled", "error", err)
			return l, err
		}
	}
	return l, nil
}

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	return &Logger{base: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *Logger) initTracer(cfg Config) error {
	w := cfg.TraceOutput
	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(attribute.String("service.name", cfg.Service)),
	)
	if err != nil {
		return err
	}

	l.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	l.tracer = l.provider.Tracer(cfg.Service)
	return nil
}

// Shutdown flushes pending spans.
func (l *Logger) Shutdown(ctx context.Context) error {
	if l == nil || l.provider == nil {
		return nil
	}
	return l.provider.Shutdown(ctx)
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.base
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	c := *l
	c.base = l.base.With(args...)
	return &c
}

// TracingEnabled reports whether spans are recorded.
func (l *Logger) TracingEnabled() bool {
	return l != nil && l.tracer != nil
}

// StartSpan starts a span, or returns the current one when tracing is off.
func (l *Logger) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !l.TracingEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}
	return l.tracer.Start(ctx, name, opts...)
}

// Debug logs only when detailed logging is on.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	if l == nil || !l.detailed {
		return
	}
	l.log(ctx, slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

// ErrorWithErr logs err and records it on the active span.
func (l *Logger) ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	if l == nil {
		return
	}
	if l.TracingEnabled() {
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	l.log(ctx, slog.LevelError, msg, append([]any{"error", err}, args...)...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if l == nil {
		return
	}
	if traceArgs := l.traceAttrs(ctx); traceArgs != nil {
		args = append(traceArgs, args...)
	}
	if l.detailed {
		// log -> Info/Warn/... -> caller
		if pc, file, line, ok := runtime.Caller(2); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				args = append(args, "source", slog.GroupValue(
					slog.String("function", fn.Name()),
					slog.String("file", file),
					slog.Int("line", line),
				))
			}
		}
	}
	l.base.Log(ctx, level, msg, args...)
}

func (l *Logger) traceAttrs(ctx context.Context) []any {
	if !l.TracingEnabled() {
		return nil
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []any{"trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String()}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
