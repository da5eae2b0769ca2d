package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanLogger is a [sdktrace.SpanExporter] that writes one log record per
// finished span. It keeps traces on stderr, next to the rest of the server's
// diagnostics, since stdout carries the protocol.
type SpanLogger struct {
	log *slog.Logger
}

var _ sdktrace.SpanExporter = (*SpanLogger)(nil)

// NewSpanLogger returns a SpanLogger writing to l, or to the default logger
// at export time when l is nil.
func NewSpanLogger(l *slog.Logger) *SpanLogger {
	return &SpanLogger{log: l}
}

// ExportSpans implements [sdktrace.SpanExporter].
func (e *SpanLogger) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	l := e.log
	if l == nil {
		l = slog.Default()
	}
	for _, s := range spans {
		sc := s.SpanContext()
		attrs := []slog.Attr{
			slog.String("span", s.Name()),
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
			slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
		}
		if p := s.Parent(); p.IsValid() {
			attrs = append(attrs, slog.String("parent_id", p.SpanID().String()))
		}
		level := slog.LevelInfo
		if st := s.Status(); st.Code == codes.Error {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("error", st.Description))
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, slog.Any(string(kv.Key), kv.Value.AsInterface()))
		}
		l.LogAttrs(ctx, level, "span finished", attrs...)
	}
	return nil
}

// Shutdown implements [sdktrace.SpanExporter].
func (e *SpanLogger) Shutdown(context.Context) error { return nil }
