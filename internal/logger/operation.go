package logger

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OperationTimer measures one operation and closes its span.
type OperationTimer struct {
	l      *Logger
	ctx    context.Context
	span   trace.Span
	op     string
	start  time.Time
	fields []any
}

// StartOperation starts timing op. fields are key/value pairs attached to
// the span and to the completion record.
func (l *Logger) StartOperation(ctx context.Context, op string, fields ...any) *OperationTimer {
	var span trace.Span
	if l.TracingEnabled() {
		ctx, span = l.StartSpan(ctx, op)
		span.SetAttributes(toAttributes(fields)...)
	}
	l.Debug(ctx, "operation started", append([]any{"operation", op}, fields...)...)

	return &OperationTimer{
		l:      l,
		ctx:    ctx,
		span:   span,
		op:     op,
		start:  time.Now(),
		fields: fields,
	}
}

// Context returns the context carrying the operation span.
func (ot *OperationTimer) Context() context.Context {
	return ot.ctx
}

// End completes the operation and returns its duration.
func (ot *OperationTimer) End(fields ...any) time.Duration {
	d := time.Since(ot.start)
	if ot.span != nil {
		ot.span.SetAttributes(attribute.Int64("duration_ms", d.Milliseconds()))
		ot.span.SetAttributes(toAttributes(fields)...)
		ot.span.SetStatus(codes.Ok, "completed")
		ot.span.End()
	}
	all := append([]any{"operation", ot.op, "duration_ms", d.Milliseconds()}, ot.fields...)
	ot.l.Debug(ot.ctx, "operation completed", append(all, fields...)...)
	return d
}

// EndWithError completes the operation as failed and logs err.
func (ot *OperationTimer) EndWithError(err error, fields ...any) time.Duration {
	d := time.Since(ot.start)
	if ot.span != nil {
		ot.span.SetAttributes(attribute.Int64("duration_ms", d.Milliseconds()))
		ot.span.RecordError(err)
		ot.span.SetStatus(codes.Error, err.Error())
		ot.span.End()
	}
	all := append([]any{"operation", ot.op, "duration_ms", d.Milliseconds()}, ot.fields...)
	ot.l.ErrorWithErr(ot.ctx, "operation failed", err, append(all, fields...)...)
	return d
}

func toAttributes(fields []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		}
	}
	return attrs
}
