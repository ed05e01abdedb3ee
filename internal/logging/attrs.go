package logging

import (
	"context"
	"log/slog"
)

// Attr is the attribute type every kvedit log call takes.
type Attr = slog.Attr

// Attribute constructors, re-exported so components only import logging.
var (
	Any      = slog.Any
	Duration = slog.Duration
	Int      = slog.Int
	Int64    = slog.Int64
	String   = slog.String
)

// Error records err under the "error" key. A nil error is written as "<nil>"
// so a log line never silently loses the field.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attributes into the variadic form slog.Logger methods take.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

// NewNop returns a logger that drops everything.
func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger tags logger with the component that owns its lines
// ("kvstore", "upload", "api-server"). A nil logger yields a silent one.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// HasAttrKey reports whether key is already set in attrs.
func HasAttrKey(attrs []Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

const defaultWarnImpact = "run continued without this step"

// WarnWithContext logs a side-step failure of a run, such as a dashboard
// refresh or a snapshot archive, that does not fail the run itself. The
// event_type is always set and impact falls back to a generic note.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	if !HasAttrKey(attrs, FieldEventType) {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	if !HasAttrKey(attrs, FieldImpact) {
		attrs = append(attrs, String(FieldImpact, defaultWarnImpact))
	}
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs a failure that needs an operator, like a backup
// that could not be restored, tagged with eventType.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	if !HasAttrKey(attrs, FieldEventType) {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	logger.Error(msg, Args(attrs...)...)
}

// NoopHandler is the handler behind NewNop.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }
func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler        { return NoopHandler{} }
func (NoopHandler) WithGroup(string) slog.Handler             { return NoopHandler{} }
