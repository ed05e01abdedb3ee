package logging

import (
	"context"
	"log/slog"

	"kvedit/internal/services"
)

// Keys shared by every kvedit log line.
const (
	FieldComponent     = "component"
	FieldRunID         = "run_id"
	FieldCollection    = "collection"
	FieldOperation     = "operation"
	FieldCorrelationID = "correlation_id"
	// FieldEventType names the failure kind so warnings can be grepped.
	FieldEventType = "event_type"
	// FieldImpact says what the operator should expect after a warning.
	FieldImpact = "impact"
)

// ContextFields lists the run, collection, operation and request ids carried
// by ctx, in that order. Missing values are skipped.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	add := func(key, value string, ok bool) {
		if ok {
			fields = append(fields, slog.String(key, value))
		}
	}
	id, ok := services.RunIDFromContext(ctx)
	add(FieldRunID, id, ok)
	collection, ok := services.CollectionFromContext(ctx)
	add(FieldCollection, collection, ok)
	op, ok := services.OperationFromContext(ctx)
	add(FieldOperation, op, ok)
	rid, ok := services.RequestIDFromContext(ctx)
	add(FieldCorrelationID, rid, ok)
	return fields
}

// WithContext binds the ids carried by ctx to logger so every line of a run
// or HTTP request can be correlated.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
